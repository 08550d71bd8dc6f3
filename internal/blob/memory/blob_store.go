// Package memory contains an in-memory blob store for tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// BlobStore keeps written objects in a map for inspection.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// New returns an empty memory BlobStore.
func New() *BlobStore {
	return &BlobStore{objects: make(map[string][]byte)}
}

// PutObject records the object and returns a mem:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data []byte) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = append([]byte(nil), data...)
	return fmt.Sprintf("mem://%s", path), nil
}

// Object returns a stored object and whether it exists.
func (s *BlobStore) Object(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[path]
	return data, ok
}
