package checksum

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store defines persistence operations for the last installed change token.
type Store interface {
	// Load returns the stored token or an empty string when nothing was stored.
	Load(ctx context.Context) (string, error)
	// Save replaces the stored token.
	Save(ctx context.Context, token string) error
}

const (
	// filePermissions is the mode of token files.
	filePermissions = 0o600
	// dirPermissions is the mode of directories created for token files.
	dirPermissions = 0o750
)

// FileStore persists the token as raw text at a fixed path.
type FileStore struct {
	// path is the filesystem location of the token file.
	path string
	// mu protects concurrent access to the token file.
	mu sync.Mutex
}

// NewFileStore creates a store that reads and writes the token at the provided path.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: filepath.Clean(path),
	}
}

// Path returns the token file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the token from disk.
func (s *FileStore) Load(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}

		return "", fmt.Errorf("read checksum file: %w", err)
	}

	return string(contents), nil
}

// Save overwrites the token file.
func (s *FileStore) Save(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), dirPermissions); err != nil {
		return fmt.Errorf("create checksum directory: %w", err)
	}

	if err := os.WriteFile(s.path, []byte(token), filePermissions); err != nil {
		return fmt.Errorf("write checksum file: %w", err)
	}

	return nil
}

// MemoryStore keeps the token in memory.
type MemoryStore struct {
	token string
	mu    sync.RWMutex
}

// NewMemoryStore creates a store holding the provided initial token.
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

// Load returns the held token.
func (s *MemoryStore) Load(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token, nil
}

// Save replaces the held token.
func (s *MemoryStore) Save(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token

	return nil
}
