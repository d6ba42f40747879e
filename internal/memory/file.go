package memory

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the memory as a single JSON blob in the installation's
// private data directory. Flushes are serialized so a write in progress is
// never interrupted by the next one.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(dataDir, filename string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{path: filepath.Join(dataDir, filename)}, nil
}

func (s *FileStore) Load(_ context.Context, visitorID string) Memory {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Printf("memory: read %s failed, starting fresh: %v", s.path, err)
		}
		return NewMemory(visitorID)
	}
	var m Memory
	if err := json.Unmarshal(raw, &m); err != nil {
		log.Printf("memory: %s is corrupt, starting fresh: %v", s.path, err)
		return NewMemory(visitorID)
	}
	if m.VisitorID == "" {
		m.VisitorID = visitorID
	}
	return m
}

func (s *FileStore) Save(_ context.Context, m Memory) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Write-then-rename so a crash mid-flush never corrupts the blob.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) Clear(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (s *FileStore) Close() error { return nil }
