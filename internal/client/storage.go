package client

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// StorageKey is the well-known key the access token persists under so a
// restarted process can resume a session without re-login.
const StorageKey = "accessToken"

// TokenStorage is the local-storage equivalent holding the cached access
// token across process restarts.
type TokenStorage interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// MemoryStorage keeps the token in process memory only.
type MemoryStorage struct {
	mu    sync.Mutex
	token string
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemoryStorage) Save(token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

func (s *MemoryStorage) Clear() error {
	return s.Save("")
}

// FileStorage persists the token under dir/<StorageKey> with owner-only
// permissions.
type FileStorage struct {
	path string
}

// NewFileStorage stores the token inside dir, creating it when absent.
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileStorage{path: filepath.Join(dir, StorageKey)}, nil
}

func (s *FileStorage) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

func (s *FileStorage) Save(token string) error {
	if token == "" {
		return s.Clear()
	}
	return os.WriteFile(s.path, []byte(token), 0o600)
}

func (s *FileStorage) Clear() error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
