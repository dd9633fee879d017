// Package archive persists exported report files outside the process, either
// in a local directory or in a Google Cloud Storage bucket. Objects are
// written once; an object that already exists is left untouched.
package archive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Backend kinds accepted by configuration.
const (
	KindNone  = "none"
	KindLocal = "local"
	KindGCS   = "gcs"
)

// ErrDisabled is returned by NewSink when archiving is switched off.
var ErrDisabled = errors.New("report archive is disabled")

// Object is one file to archive.
type Object struct {
	Name        string
	ContentType string
	Data        []byte
}

// Result lists what happened to each object of a Put.
type Result struct {
	Written  []string `json:"written"`
	Existing []string `json:"existing"`
}

// Sink stores objects under a run-scoped key.
type Sink interface {
	Kind() string
	Put(ctx context.Context, runID string, objects []Object) (*Result, error)
	Close() error
}

// Options configures NewSink.
type Options struct {
	Backend string
	// Dir is the root directory of a local sink.
	Dir    string
	Bucket string
	Prefix string
}

// NewSink returns the sink selected by opts.Backend.
func NewSink(ctx context.Context, opts Options) (Sink, error) {
	switch opts.Backend {
	case "", KindNone:
		return nil, ErrDisabled
	case KindLocal:
		if opts.Dir == "" {
			return nil, errors.New("local archive requires a directory")
		}
		return NewLocalSink(opts.Dir, opts.Prefix), nil
	case KindGCS:
		if opts.Bucket == "" {
			return nil, errors.New("gcs archive requires a bucket")
		}
		return NewGCSSink(ctx, opts.Bucket, opts.Prefix)
	default:
		return nil, fmt.Errorf("unsupported archive backend: %s", opts.Backend)
	}
}

// ObjectKey is the slash-separated key of an object of a run.
func ObjectKey(prefix, runID, name string) string {
	return path.Join(strings.Trim(prefix, "/"), runID, path.Base(name))
}
