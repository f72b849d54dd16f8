// Package gcs provides a blob store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/xraph/sluice"
	"github.com/xraph/sluice/blob"
	"github.com/xraph/sluice/id"
)

// Config captures the parameters required to address the bucket.
type Config struct {
	// Bucket is the GCS bucket name. Required.
	Bucket string

	// Prefix is prepended to every object name, e.g. "results/".
	Prefix string
}

// Store writes job payloads to a GCS bucket, one object per job.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ blob.Store = (*Store)(nil)

// New creates a GCS-backed blob store around an existing client.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("sluice/gcs: storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("sluice/gcs: bucket name is required")
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *Store) object(jobID id.JobID) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + jobID.String())
}

// Put uploads the payload, replacing any prior object for the job.
func (s *Store) Put(ctx context.Context, jobID id.JobID, data []byte) error {
	w := s.object(jobID).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("sluice/gcs: write blob %s: %w", jobID, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("sluice/gcs: close blob writer %s: %w", jobID, err)
	}
	return nil
}

// Get downloads the payload for the job.
func (s *Store) Get(ctx context.Context, jobID id.JobID) ([]byte, error) {
	r, err := s.object(jobID).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, sluice.ErrBlobNotFound
		}
		return nil, fmt.Errorf("sluice/gcs: open blob %s: %w", jobID, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("sluice/gcs: read blob %s: %w", jobID, err)
	}
	return data, nil
}

// Delete removes the payload. Missing objects are not an error.
func (s *Store) Delete(ctx context.Context, jobID id.JobID) error {
	if err := s.object(jobID).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return fmt.Errorf("sluice/gcs: delete blob %s: %w", jobID, err)
	}
	return nil
}
