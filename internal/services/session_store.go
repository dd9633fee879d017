package services

import (
	"context"
	"sync"
	"time"

	"adrollup/internal/infrastructure"
)

type sessionEntry struct {
	run     *Run
	expires time.Time
}

// SessionStore keeps completed runs in memory for a fixed TTL. Expired runs
// are purged lazily on every access.
type SessionStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	runs    map[string]*sessionEntry
	metrics *infrastructure.BusinessMetrics
}

// NewSessionStore creates a store keeping runs for ttl.
func NewSessionStore(ttl time.Duration, metrics *infrastructure.BusinessMetrics) *SessionStore {
	return &SessionStore{
		ttl:     ttl,
		now:     time.Now,
		runs:    make(map[string]*sessionEntry),
		metrics: metrics,
	}
}

// Put stores run under its ID, replacing any previous entry.
func (s *SessionStore) Put(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()

	if _, exists := s.runs[run.Summary.ID]; !exists {
		s.track(1)
	}
	s.runs[run.Summary.ID] = &sessionEntry{run: run, expires: s.now().Add(s.ttl)}
}

// Get returns the run with id, or false when it is unknown or expired.
func (s *SessionStore) Get(id string) (*Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()

	entry, ok := s.runs[id]
	if !ok {
		return nil, false
	}
	return entry.run, true
}

// Delete removes the run with id and reports whether it was present.
func (s *SessionStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()

	if _, ok := s.runs[id]; !ok {
		return false
	}
	delete(s.runs, id)
	s.track(-1)
	return true
}

// Len returns the number of live runs.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
	return len(s.runs)
}

func (s *SessionStore) purgeLocked() {
	now := s.now()
	for id, entry := range s.runs {
		if now.After(entry.expires) {
			delete(s.runs, id)
			s.track(-1)
		}
	}
}

func (s *SessionStore) track(delta int64) {
	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(context.Background(), delta)
	}
}
