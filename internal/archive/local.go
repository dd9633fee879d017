package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalSink writes objects below a directory.
type LocalSink struct {
	dir    string
	prefix string
}

// NewLocalSink creates a sink rooted at dir.
func NewLocalSink(dir, prefix string) *LocalSink {
	return &LocalSink{dir: dir, prefix: prefix}
}

func (s *LocalSink) Kind() string { return KindLocal }

func (s *LocalSink) Close() error { return nil }

// Path returns the file path of an archived object.
func (s *LocalSink) Path(runID, name string) string {
	return filepath.Join(s.dir, filepath.FromSlash(ObjectKey(s.prefix, runID, name)))
}

func (s *LocalSink) Put(ctx context.Context, runID string, objects []Object) (*Result, error) {
	result := &Result{}
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		target := s.Path(runID, obj.Name)
		if _, err := os.Stat(target); err == nil {
			result.Existing = append(result.Existing, target)
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return result, fmt.Errorf("failed to stat %s: %w", target, err)
		}

		if err := writeFileAtomic(target, obj.Data); err != nil {
			return result, err
		}
		result.Written = append(result.Written, target)
	}
	return result, nil
}

func writeFileAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".archive-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", target, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", target, err)
	}
	return nil
}
