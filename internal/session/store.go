package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CredentialStorageKey is the fixed key the credential is persisted
// under. It matches the key the web client used for its local storage.
const CredentialStorageKey = "spotify_access_token"

var ErrNoCredential = errors.New("no persisted credential")

// Store persists exactly one credential value in a file named by the
// storage key. Replaced, never merged, on change.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path() string {
	return filepath.Join(s.dir, CredentialStorageKey)
}

func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoCredential
		}
		return "", fmt.Errorf("failed to read credential: %w", err)
	}

	credential := strings.TrimSpace(string(data))
	if credential == "" {
		return "", ErrNoCredential
	}

	return credential, nil
}

func (s *Store) Save(credential string) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create storage dir: %w", err)
	}

	if err := os.WriteFile(s.path(), []byte(credential), 0o600); err != nil {
		return fmt.Errorf("failed to write credential: %w", err)
	}

	return nil
}

func (s *Store) Clear() error {
	if err := os.Remove(s.path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credential: %w", err)
	}

	return nil
}
