package cursor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
)

// MemoryStore keeps cursors in process memory only.
type MemoryStore struct {
	mu      sync.RWMutex
	cursors map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cursors: make(map[string]string)}
}

func (s *MemoryStore) LoadCursors(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.cursors), nil
}

func (s *MemoryStore) SaveCursor(_ context.Context, token, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[token] = signature
	return nil
}

func (s *MemoryStore) DeleteCursor(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cursors, token)
	return nil
}

// FileStore keeps cursors as a JSON object {token: signature} in one file.
// Every write rewrites the file through a temp file and rename.
type FileStore struct {
	mu      sync.Mutex
	path    string
	cursors map[string]string
}

// NewFileStore creates a store backed by path. The file is created on the
// first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) LoadCursors(_ context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	return maps.Clone(s.cursors), nil
}

func (s *FileStore) SaveCursor(_ context.Context, token, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}
	s.cursors[token] = signature
	return s.writeLocked()
}

func (s *FileStore) DeleteCursor(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}
	if _, ok := s.cursors[token]; !ok {
		return nil
	}
	delete(s.cursors, token)
	return s.writeLocked()
}

func (s *FileStore) loadLocked() error {
	if s.cursors != nil {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.cursors = make(map[string]string)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cursor file: %w", err)
	}

	cursors := make(map[string]string)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &cursors); err != nil {
			return fmt.Errorf("failed to decode cursor file %s: %w", s.path, err)
		}
	}
	s.cursors = cursors
	return nil
}

func (s *FileStore) writeLocked() error {
	data, err := json.MarshalIndent(s.cursors, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cursors: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cursor file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace cursor file: %w", err)
	}
	return nil
}
