package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bookfinder/pkg/domain"
)

const credentialFile = "credential.json"

// Credential is what durable persistence keeps for the signed-in user.
type Credential struct {
	User         domain.User `json:"user"`
	IDToken      string      `json:"idToken"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresAt    time.Time   `json:"expiresAt"`
}

// CredentialStore persists one credential.
type CredentialStore interface {
	Prepare() error
	Load() (Credential, bool, error)
	Save(Credential) error
	Clear() error
}

// FileCredentialStore keeps the credential as a JSON file under a base directory.
type FileCredentialStore struct {
	basePath string
}

// NewFileCredentialStore validates basePath; the directory is created by Prepare.
func NewFileCredentialStore(basePath string) (*FileCredentialStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("credential store base path is required")
	}
	return &FileCredentialStore{basePath: basePath}, nil
}

// Prepare creates the base directory if missing.
func (f *FileCredentialStore) Prepare() error {
	if err := os.MkdirAll(f.basePath, 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	return nil
}

// Load returns the stored credential; ok is false when none is stored.
func (f *FileCredentialStore) Load() (Credential, bool, error) {
	data, err := os.ReadFile(f.path())
	if errors.Is(err, os.ErrNotExist) {
		return Credential{}, false, nil
	}
	if err != nil {
		return Credential{}, false, fmt.Errorf("read credential: %w", err)
	}
	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return Credential{}, false, fmt.Errorf("parse credential: %w", err)
	}
	if cred.RefreshToken == "" || cred.User.ID == "" {
		return Credential{}, false, nil
	}
	return cred, true, nil
}

// Save replaces the stored credential atomically.
func (f *FileCredentialStore) Save(cred Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.basePath, credentialFile+".*")
	if err != nil {
		return fmt.Errorf("create credential file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write credential: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write credential: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path()); err != nil {
		return fmt.Errorf("commit credential: %w", err)
	}
	return nil
}

// Clear removes the stored credential.
func (f *FileCredentialStore) Clear() error {
	if err := os.Remove(f.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credential: %w", err)
	}
	return nil
}

func (f *FileCredentialStore) path() string {
	return filepath.Join(f.basePath, credentialFile)
}
