package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps every slot in a single JSON file. Each write rewrites the
// whole file through a temp file and rename, so a multi-slot update is atomic.
// This is suitable for single-instance deployments.
type FileStore struct {
	mu       sync.RWMutex
	filePath string
}

// NewFile creates a file-backed store, creating the parent directory if needed.
func NewFile(cfg FileConfig) (*FileStore, error) {
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().File.Path
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	return &FileStore{filePath: cfg.Path}, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.filePath
}

func (s *FileStore) Get(_ context.Context, slot string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slots, err := s.load()
	if err != nil {
		return nil, false, err
	}
	data, ok := slots[slot]
	return data, ok, nil
}

func (s *FileStore) Set(ctx context.Context, slot string, data []byte) error {
	return s.SetMany(ctx, map[string][]byte{slot: data})
}

func (s *FileStore) SetMany(_ context.Context, values map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slots, err := s.load()
	if err != nil {
		return err
	}
	for slot, data := range values {
		slots[slot] = data
	}
	return s.save(slots)
}

func (s *FileStore) Remove(ctx context.Context, slot string) error {
	return s.RemoveAll(ctx, slot)
}

func (s *FileStore) RemoveAll(_ context.Context, slots ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load()
	if err != nil {
		return err
	}
	for _, slot := range slots {
		delete(current, slot)
	}
	return s.save(current)
}

func (s *FileStore) Type() string {
	return TypeFile
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}

// load reads the slot file. A missing file is an empty store.
func (s *FileStore) load() (map[string][]byte, error) {
	slots := make(map[string][]byte)

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return slots, nil
		}
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}
	if len(data) == 0 {
		return slots, nil
	}

	if err := json.Unmarshal(data, &slots); err != nil {
		return nil, fmt.Errorf("failed to parse store file: %w", err)
	}
	return slots, nil
}

// save writes the slot file atomically using temp file + rename
func (s *FileStore) save(slots map[string][]byte) error {
	data, err := json.MarshalIndent(slots, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	tmpFile := s.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmpFile, s.filePath); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename store file: %w", err)
	}
	return nil
}
