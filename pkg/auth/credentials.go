package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// LoginSteps describes how to drive a site's login form.
type LoginSteps struct {
	LoginURL         string `json:"login_url"`
	UsernameSelector string `json:"username_selector"`
	PasswordSelector string `json:"password_selector"`
	SubmitSelector   string `json:"submit_selector"`
	SuccessSelector  string `json:"success_selector,omitempty"`
}

// SiteCredentials represents the login credentials for a single site,
// keyed by its domain.
type SiteCredentials struct {
	Domain       string     `json:"domain"`
	Username     string     `json:"username"`
	Password     string     `json:"password"`
	Steps        LoginSteps `json:"steps"`
	LastModified time.Time  `json:"last_modified"`
}

// CredentialStore is the interface for storing and retrieving site credentials
type CredentialStore interface {
	// Store saves credentials for a given site
	Store(creds *SiteCredentials) error

	// Retrieve gets credentials for a specific domain
	Retrieve(domain string) (*SiteCredentials, error)

	// List returns all stored site credentials
	List() ([]*SiteCredentials, error)

	// Delete removes credentials for a specific domain
	Delete(domain string) error

	// Exists checks if credentials exist for a domain
	Exists(domain string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a new credential manager with appropriate storage backends
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	// Try keyring first (system keychain)
	keyringStore, err := NewKeyringStore()
	if err == nil {
		stores = append(stores, keyringStore)
	}

	// Always add encrypted file store as fallback
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	// Add environment store as last resort
	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithConfigFile builds the standard store chain with a
// user-maintained JSON credentials file consulted first. An empty path
// yields the standard chain.
func NewManagerWithConfigFile(path string) (*Manager, error) {
	m, err := NewManager()
	if err != nil {
		return nil, err
	}
	if path != "" {
		m.stores = append([]CredentialStore{NewFileStore(path)}, m.stores...)
	}
	return m, nil
}

// Store saves credentials using the first available store
func (m *Manager) Store(creds *SiteCredentials) error {
	if creds.Domain == "" {
		return errors.New("domain is required")
	}
	if creds.Username == "" {
		return errors.New("username is required")
	}
	if creds.Password == "" {
		return errors.New("password is required")
	}

	creds.LastModified = time.Now()

	// Try each store in order
	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(creds); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve gets credentials from the first store that has them
func (m *Manager) Retrieve(domain string) (*SiteCredentials, error) {
	for _, store := range m.stores {
		if creds, err := store.Retrieve(domain); err == nil && creds != nil {
			return creds, nil
		}
	}
	return nil, fmt.Errorf("credentials not found for domain: %s", domain)
}

// List returns all stored site credentials from all stores
func (m *Manager) List() ([]*SiteCredentials, error) {
	credsMap := make(map[string]*SiteCredentials)

	for _, store := range m.stores {
		all, err := store.List()
		if err != nil {
			continue
		}
		for _, creds := range all {
			// Use the most recently modified version
			if existing, ok := credsMap[creds.Domain]; !ok || creds.LastModified.After(existing.LastModified) {
				credsMap[creds.Domain] = creds
			}
		}
	}

	var result []*SiteCredentials
	for _, creds := range credsMap {
		result = append(result, creds)
	}

	return result, nil
}

// Delete removes credentials from all stores
func (m *Manager) Delete(domain string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(domain); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("credentials not found for domain: %s", domain)
	}

	return nil
}

// DeleteAll removes all stored credentials
func (m *Manager) DeleteAll() error {
	all, err := m.List()
	if err != nil {
		return err
	}

	for _, creds := range all {
		_ = m.Delete(creds.Domain) // Ignore individual errors
	}

	return nil
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "mediaharvest")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "mediaharvest")
	default: // Linux and others
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "mediaharvest")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "mediaharvest")
		}
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// SanitizeCredentials creates a copy of the credentials with the password masked
func SanitizeCredentials(creds *SiteCredentials) *SiteCredentials {
	if creds == nil {
		return nil
	}

	return &SiteCredentials{
		Domain:       creds.Domain,
		Username:     creds.Username,
		Password:     maskString(creds.Password),
		Steps:        creds.Steps,
		LastModified: creds.LastModified,
	}
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
