package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Backend kinds accepted by configuration.
const (
	KindFile   = "file"
	KindMemory = "memory"
)

// ErrStoreNotFound is returned when opening an identifier the backend does not
// hold.
var ErrStoreNotFound = errors.New("store not found")

// Backend creates, opens and removes stores by identifier.
type Backend interface {
	Kind() string
	Create(ctx context.Context, id string) (*Store, error)
	Open(ctx context.Context, id string) (*Store, error)
	Remove(id string) error
	// Release frees whatever the backend itself holds once all stores are
	// removed.
	Release() error
}

// NewBackend returns the backend of the given kind. dir is only used by file
// backends.
func NewBackend(kind, dir string) (Backend, error) {
	switch kind {
	case KindFile, "":
		return NewFileBackend(dir), nil
	case KindMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

// FileBackend keeps one SQLite file per store inside a directory.
type FileBackend struct {
	dir string
}

// NewFileBackend creates a backend rooted at dir.
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

func (b *FileBackend) Kind() string { return KindFile }

// Dir returns the directory holding the store files.
func (b *FileBackend) Dir() string { return b.dir }

// Path returns the file path of a store identifier.
func (b *FileBackend) Path(id string) string {
	return filepath.Join(b.dir, id)
}

func (b *FileBackend) Create(ctx context.Context, id string) (*Store, error) {
	if err := os.MkdirAll(b.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", b.dir, err)
	}
	return b.open(ctx, id)
}

func (b *FileBackend) Open(ctx context.Context, id string) (*Store, error) {
	if _, err := os.Stat(b.Path(id)); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, id)
		}
		return nil, fmt.Errorf("failed to stat store %s: %w", id, err)
	}
	return b.open(ctx, id)
}

func (b *FileBackend) open(ctx context.Context, id string) (*Store, error) {
	db, err := sql.Open(DriverName, b.Path(id))
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", id, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to store %s: %w", id, err)
	}
	return &Store{id: id, db: db}, nil
}

func (b *FileBackend) Remove(id string) error {
	return os.Remove(b.Path(id))
}

// Release removes the store directory when it is empty.
func (b *FileBackend) Release() error {
	err := os.Remove(b.dir)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// MemoryBackend keeps stores as in-memory SQLite databases. Each database is
// pinned to a single connection so its contents survive until Remove.
type MemoryBackend struct {
	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{dbs: make(map[string]*sql.DB)}
}

func (b *MemoryBackend) Kind() string { return KindMemory }

func (b *MemoryBackend) Create(ctx context.Context, id string) (*Store, error) {
	db, err := sql.Open(DriverName, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory store %s: %w", id, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to in-memory store %s: %w", id, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.dbs[id]; ok {
		old.Close()
	}
	b.dbs[id] = db
	return &Store{id: id, db: db, shared: true}, nil
}

func (b *MemoryBackend) Open(_ context.Context, id string) (*Store, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	db, ok := b.dbs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, id)
	}
	return &Store{id: id, db: db, shared: true}, nil
}

func (b *MemoryBackend) Remove(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	db, ok := b.dbs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrStoreNotFound, id)
	}
	delete(b.dbs, id)
	return db.Close()
}

// Release closes any store still held.
func (b *MemoryBackend) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for id, db := range b.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store %s: %w", id, err))
		}
		delete(b.dbs, id)
	}
	return errors.Join(errs...)
}
