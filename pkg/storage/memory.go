package storage

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// MemoryStorage keeps files in a map. It backs tests and the CLI dry runs.
type MemoryStorage struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{files: make(map[string][]byte)}
}

func clean(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func (s *MemoryStorage) Read(_ context.Context, p string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[clean(p)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStorage) Write(_ context.Context, p string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[clean(p)] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStorage) Delete(_ context.Context, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := clean(p)
	if _, ok := s.files[key]; !ok {
		return fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	delete(s.files, key)
	return nil
}

func (s *MemoryStorage) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dir := clean(prefix)
	var paths []string
	for k := range s.files {
		if path.Dir(k) == dir {
			paths = append(paths, k)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *MemoryStorage) Exists(_ context.Context, p string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.files[clean(p)]
	return ok, nil
}
