package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GCSSink writes objects to a Cloud Storage bucket using DoesNotExist
// preconditions.
type GCSSink struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
}

// NewGCSSink opens a client with application default credentials.
func NewGCSSink(ctx context.Context, bucket, prefix string) (*GCSSink, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSSink{client: client, bucket: client.Bucket(bucket), prefix: prefix}, nil
}

func (s *GCSSink) Kind() string { return KindGCS }

func (s *GCSSink) Close() error {
	return s.client.Close()
}

func (s *GCSSink) Put(ctx context.Context, runID string, objects []Object) (*Result, error) {
	result := &Result{}
	for _, obj := range objects {
		key := ObjectKey(s.prefix, runID, obj.Name)
		created, err := s.putObject(ctx, key, obj)
		if err != nil {
			return result, err
		}
		if created {
			result.Written = append(result.Written, key)
		} else {
			result.Existing = append(result.Existing, key)
		}
	}
	return result, nil
}

// putObject reports false when the object already existed.
func (s *GCSSink) putObject(ctx context.Context, key string, obj Object) (bool, error) {
	writer := s.bucket.Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = obj.ContentType

	if _, err := io.Copy(writer, bytes.NewReader(obj.Data)); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to write gs object %s: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to finalize gs object %s: %w", key, err)
	}
	return true, nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
