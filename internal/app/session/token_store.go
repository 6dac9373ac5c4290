package session

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"chatsync/internal/pkg/errs"
)

// TokenFileName is the name of the file that holds the cached session token.
const TokenFileName = "session.json"

// TokenStore persists the bearer token between runs.
// Load returns "" with a nil error when nothing is stored.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// DefaultTokenPath returns <user config dir>/chatsync/session.json.
func DefaultTokenPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errs.Wrap(errs.ErrTokenStorage, err)
	}
	return filepath.Join(dir, "chatsync", TokenFileName), nil
}

type tokenFile struct {
	Token string `json:"token"`
}

// FileTokenStore keeps the token in a single JSON file readable only by the owner.
type FileTokenStore struct {
	path string
}

// NewFileTokenStore creates a store backed by path.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// Path returns the backing file.
func (s *FileTokenStore) Path() string { return s.path }

func (s *FileTokenStore) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", errs.Wrap(errs.ErrTokenStorage, err)
	}

	var f tokenFile
	if err := json.Unmarshal(data, &f); err != nil {
		return "", errs.Wrap(errs.ErrTokenStorage, err)
	}
	return f.Token, nil
}

func (s *FileTokenStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errs.Wrap(errs.ErrTokenStorage, err)
	}

	data, err := json.Marshal(tokenFile{Token: token})
	if err != nil {
		return errs.Wrap(errs.ErrTokenStorage, err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return errs.Wrap(errs.ErrTokenStorage, err)
	}
	return nil
}

func (s *FileTokenStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errs.Wrap(errs.ErrTokenStorage, err)
	}
	return nil
}

// MemoryTokenStore keeps the token in memory.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

func (s *MemoryTokenStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemoryTokenStore) Save(token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

func (s *MemoryTokenStore) Clear() error {
	return s.Save("")
}
