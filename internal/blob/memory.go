package blob

import (
	"context"
	"fmt"
	"sync"
)

// Memory keeps blobs in a map. Tests and the standalone CLI mode use it
// in place of a real backend.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory returns an empty in-memory blob store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// PutObject stores a copy of data and returns a mem:// URI.
func (s *Memory) PutObject(_ context.Context, path string, _ string, data []byte) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	s.mu.Lock()
	s.objects[path] = append([]byte(nil), data...)
	s.mu.Unlock()
	return fmt.Sprintf("mem://%s", path), nil
}

// Get returns a stored blob and whether it exists.
func (s *Memory) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[path]
	return data, ok
}

// Len reports the number of stored blobs.
func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
