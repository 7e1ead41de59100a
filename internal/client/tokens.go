package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TokenStore holds the bearer token between requests.
type TokenStore interface {
	Token() string
	SetToken(token string) error
	Clear() error
}

// MemoryStore keeps the token for the life of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

func (m *MemoryStore) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

func (m *MemoryStore) SetToken(token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear() error { return m.SetToken("") }

// FileStore persists the token as JSON so separate CLI invocations share a
// login. The file is written with mode 0600.
type FileStore struct {
	Path string

	mu sync.Mutex
}

type tokenFile struct {
	Token   string    `json:"token"`
	SavedAt time.Time `json:"saved_at"`
}

// DefaultTokenPath is ~/.config/erpctl/token.json, or the working directory
// when no config dir is known.
func DefaultTokenPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "erpctl-token.json"
	}
	return filepath.Join(dir, "erpctl", "token.json")
}

// Token returns the stored token, or "" when the file is missing or unreadable.
func (f *FileStore) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return ""
	}
	var tf tokenFile
	if json.Unmarshal(data, &tf) != nil {
		return ""
	}
	return tf.Token
}

func (f *FileStore) SetToken(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	data, err := json.MarshalIndent(tokenFile{Token: token, SavedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, data, 0o600)
}

func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}
