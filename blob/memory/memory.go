// Package memory provides an in-process blob store for tests and
// single-node deployments.
package memory

import (
	"context"
	"sync"

	"github.com/xraph/sluice"
	"github.com/xraph/sluice/blob"
	"github.com/xraph/sluice/id"
)

// Store holds payloads in a map. Safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

var _ blob.Store = (*Store)(nil)

// New creates an empty in-memory blob store.
func New() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

// Put stores a copy of the payload under the job ID.
func (s *Store) Put(_ context.Context, jobID id.JobID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[jobID.String()] = append([]byte(nil), data...)
	return nil
}

// Get returns a copy of the payload for the job ID.
func (s *Store) Get(_ context.Context, jobID id.JobID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[jobID.String()]
	if !ok {
		return nil, sluice.ErrBlobNotFound
	}
	return append([]byte(nil), data...), nil
}

// Delete removes the payload for the job ID.
func (s *Store) Delete(_ context.Context, jobID id.JobID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, jobID.String())
	return nil
}

// Len reports how many payloads the store holds. Test helper.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
