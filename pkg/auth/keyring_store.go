package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "mediaharvest"
	keyringPrefix  = "site_"
)

// KeyringStore keeps site credentials in the OS keychain, one entry
// per domain.
type KeyringStore struct{}

// NewKeyringStore probes the keychain with a throwaway entry and fails
// if it is not usable, so callers can fall back to the encrypted file
// store.
func NewKeyringStore() (*KeyringStore, error) {
	probe := "probe_availability"
	if err := keyring.Set(keyringService, probe, "probe"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, probe)
	return &KeyringStore{}, nil
}

func (k *KeyringStore) Store(creds *SiteCredentials) error {
	if creds == nil || creds.Domain == "" {
		return ErrInvalidCredentials
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := keyring.Set(keyringService, keyringPrefix+creds.Domain, string(data)); err != nil {
		return fmt.Errorf("store in keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) Retrieve(domain string) (*SiteCredentials, error) {
	if domain == "" {
		return nil, ErrInvalidCredentials
	}
	data, err := keyring.Get(keyringService, keyringPrefix+domain)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("read from keyring: %w", err)
	}
	var creds SiteCredentials
	if err := json.Unmarshal([]byte(data), &creds); err != nil {
		return nil, fmt.Errorf("unmarshal credentials: %w", err)
	}
	return &creds, nil
}

// List returns no entries: go-keyring cannot enumerate keys.
func (k *KeyringStore) List() ([]*SiteCredentials, error) {
	return []*SiteCredentials{}, nil
}

func (k *KeyringStore) Delete(domain string) error {
	if domain == "" {
		return ErrInvalidCredentials
	}
	if err := keyring.Delete(keyringService, keyringPrefix+domain); err != nil {
		if err == keyring.ErrNotFound {
			return ErrCredentialsNotFound
		}
		return fmt.Errorf("delete from keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) Exists(domain string) bool {
	if domain == "" {
		return false
	}
	_, err := keyring.Get(keyringService, keyringPrefix+domain)
	return err == nil
}

// IsKeyringAvailable guesses whether this platform has a usable
// keychain. Linux needs a desktop session for the secret service.
func IsKeyringAvailable() bool {
	switch runtime.GOOS {
	case "darwin", "windows":
		return true
	case "linux":
		return os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
	default:
		return false
	}
}
