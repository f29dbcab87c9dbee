package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Store persists secrets on disk keyed by opaque references. Callers hold
// only the reference; nothing outside this package reads the secret file.
type Store struct {
	mu   sync.Mutex
	path string
}

// KeyForConfig returns the credential reference mirroring how the desktop
// app keys provider secrets in the OS keychain.
func KeyForConfig(configID string) string {
	return "ai-key:" + configID
}

// NewStore creates a store backed by a JSON file at path. The parent
// directory is created on first write.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultStore places the secret file under the user config directory.
func DefaultStore() (*Store, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate user config dir: %w", err)
	}
	return NewStore(filepath.Join(configDir, "quill", "credentials.json")), nil
}

// Resolve returns the secret for ref, or an empty string when the ref is
// unknown. Unknown refs are not an error: requests proceed unauthenticated
// and the provider rejects them if auth was required.
func (s *Store) Resolve(ref string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	secrets, err := s.load()
	if err != nil {
		return "", err
	}
	return secrets[ref], nil
}

// Set stores a secret under ref, creating the file with 0600 permissions.
func (s *Store) Set(ref, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	secrets, err := s.load()
	if err != nil {
		return err
	}
	secrets[ref] = secret
	return s.save(secrets)
}

// Delete removes the secret under ref. Deleting an unknown ref is a no-op.
func (s *Store) Delete(ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	secrets, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := secrets[ref]; !ok {
		return nil
	}
	delete(secrets, ref)
	return s.save(secrets)
}

// List returns the stored refs, sorted. Secrets are never returned.
func (s *Store) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	secrets, err := s.load()
	if err != nil {
		return nil, err
	}
	refs := make([]string, 0, len(secrets))
	for ref := range secrets {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs, nil
}

func (s *Store) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	var secrets map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	if secrets == nil {
		secrets = map[string]string{}
	}
	return secrets, nil
}

func (s *Store) save(secrets map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create credentials dir: %w", err)
	}
	data, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace credentials file: %w", err)
	}
	return nil
}
