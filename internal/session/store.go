// Package session holds the admin session: the identity and bearer token
// obtained at login, and the local store they are persisted to.
package session

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Persisted keys. Both are written and cleared together.
const (
	KeyAdmin = "admin_user"
	KeyToken = "admin_token"
)

// Store is a small durable key-value area for session state.
type Store interface {
	// Get returns the value under key and whether it was present.
	Get(key string) (string, bool, error)
	// Set writes all pairs in one operation.
	Set(kv map[string]string) error
	// Clear removes the given keys. Missing keys are not an error.
	Clear(keys ...string) error
}

// MemoryStore keeps values in process memory.
type MemoryStore struct {
	mu sync.Mutex
	m  map[string]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore { return &MemoryStore{m: map[string]string{}} }

func (s *MemoryStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(kv map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range kv {
		s.m[k] = v
	}
	return nil
}

func (s *MemoryStore) Clear(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.m, k)
	}
	return nil
}

// FileStore keeps all values in one JSON file readable only by the owner.
// Writes go to a temp file that is renamed over the original.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store backed by path. The file is created on first Set.
func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

// DefaultPath is $XDG_CONFIG_HOME/lytoranea/session.json, falling back to ~/.config.
func DefaultPath() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "lytoranea", "session.json")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "lytoranea", "session.json")
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load()
	if err != nil {
		return "", false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

func (s *FileStore) Set(kv map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load()
	if err != nil {
		// an unreadable file is replaced rather than blocking a fresh login
		m = map[string]string{}
	}
	for k, v := range kv {
		m[k] = v
	}
	return s.save(m)
}

func (s *FileStore) Clear(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load()
	if err != nil {
		return os.Remove(s.path)
	}
	for _, k := range keys {
		delete(m, k)
	}
	if len(m) == 0 {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}
	return s.save(m)
}

func (s *FileStore) load() (map[string]string, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	m := map[string]string{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *FileStore) save(m map[string]string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Chmod(0o600); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.path)
}
