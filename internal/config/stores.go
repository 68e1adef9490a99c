package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// FileCredentialStore persists rotated API keys to a JSON file mapping
// account names to keys. The session manager writes through it after a
// successful rotation so a restart picks up the new key. One store serves
// one account.
type FileCredentialStore struct {
	mu      sync.Mutex
	path    string
	account string
}

// NewFileCredentialStore creates a store for the given account backed by the
// file at path. The file is created on first write.
func NewFileCredentialStore(path, account string) *FileCredentialStore {
	return &FileCredentialStore{path: path, account: account}
}

// UpdateAPIKey records newKey for the store's account. When the file already
// holds a key for the account it must match oldKey; a mismatch means another
// writer rotated concurrently and is reported rather than overwritten.
func (s *FileCredentialStore) UpdateAPIKey(oldKey, newKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.read()
	if err != nil {
		return err
	}
	if current, ok := keys[s.account]; ok && current != oldKey {
		return fmt.Errorf("config: stored key for %s does not match the rotated key", s.account)
	}
	keys[s.account] = newKey

	return s.write(keys)
}

func (s *FileCredentialStore) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read credentials: %w", err)
	}
	keys := map[string]string{}
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("config: parse credentials: %w", err)
	}
	return keys, nil
}

func (s *FileCredentialStore) write(keys map[string]string) error {
	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode credentials: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("config: write credentials: %w", err)
	}
	return nil
}

// FileBanListStore persists the operator ban list as a JSON string array.
type FileBanListStore struct {
	mu   sync.Mutex
	path string
}

// NewFileBanListStore creates a store backed by the file at path.
func NewFileBanListStore(path string) *FileBanListStore {
	return &FileBanListStore{path: path}
}

// Load reads the ban list. A missing file yields an empty list.
func (s *FileBanListStore) Load() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read ban list: %w", err)
	}
	var entries []string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("config: parse ban list: %w", err)
	}
	return entries, nil
}

// Save writes the full ban list.
func (s *FileBanListStore) Save(entries []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode ban list: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("config: write ban list: %w", err)
	}
	return nil
}
