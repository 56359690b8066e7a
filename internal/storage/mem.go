package storage

import (
	"context"
	"fmt"
	"sync"
)

// Compile-time interface assertion.
var _ BlobStore = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory [BlobStore]. Suitable for tests and
// single-process tooling. The zero value is ready to use.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string][]byte)}
}

// Read implements [BlobStore.Read].
func (s *MemStore) Read(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[key]
	if !ok {
		return nil, fmt.Errorf("storage: read %q: %w", key, ErrNotFound)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Write implements [BlobStore.Write].
func (s *MemStore) Write(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blobs == nil {
		s.blobs = make(map[string][]byte)
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	s.blobs[key] = stored
	return nil
}

// Create implements [BlobStore.Create].
func (s *MemStore) Create(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[key]; ok {
		return fmt.Errorf("storage: create %q: %w", key, ErrExists)
	}
	if s.blobs == nil {
		s.blobs = make(map[string][]byte)
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	s.blobs[key] = stored
	return nil
}

// Delete implements [BlobStore.Delete].
func (s *MemStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blobs, key)
	return nil
}

// Exists implements [BlobStore.Exists].
func (s *MemStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.blobs[key]
	return ok, nil
}
