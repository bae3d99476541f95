package auth

import (
	"os"
	"time"
)

// EnvironmentStore implements CredentialStore using environment variables.
// It only ever holds a single site's credentials, which is enough for
// CI jobs and one-off runs.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(creds *SiteCredentials) error {
	return ErrStoreUnavailable
}

// Retrieve gets credentials from environment variables
func (e *EnvironmentStore) Retrieve(domain string) (*SiteCredentials, error) {
	envDomain := os.Getenv("MEDIAHARVEST_SITE_DOMAIN")
	username := os.Getenv("MEDIAHARVEST_SITE_USERNAME")
	password := os.Getenv("MEDIAHARVEST_SITE_PASSWORD")

	if username == "" || password == "" {
		return nil, ErrCredentialsNotFound
	}

	// The environment holds one site only; serve it for a matching
	// domain or when no specific domain was requested.
	if domain != "" && envDomain != "" && domain != envDomain {
		return nil, ErrCredentialsNotFound
	}
	if envDomain == "" {
		envDomain = domain
	}

	return &SiteCredentials{
		Domain:   envDomain,
		Username: username,
		Password: password,
		Steps: LoginSteps{
			LoginURL:         os.Getenv("MEDIAHARVEST_SITE_LOGIN_URL"),
			UsernameSelector: os.Getenv("MEDIAHARVEST_SITE_USERNAME_SELECTOR"),
			PasswordSelector: os.Getenv("MEDIAHARVEST_SITE_PASSWORD_SELECTOR"),
			SubmitSelector:   os.Getenv("MEDIAHARVEST_SITE_SUBMIT_SELECTOR"),
		},
		LastModified: time.Now(),
	}, nil
}

// List returns a single site's credentials if environment variables are set
func (e *EnvironmentStore) List() ([]*SiteCredentials, error) {
	creds, err := e.Retrieve("")
	if err != nil {
		return []*SiteCredentials{}, nil
	}
	return []*SiteCredentials{creds}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(domain string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(domain string) bool {
	username := os.Getenv("MEDIAHARVEST_SITE_USERNAME")
	password := os.Getenv("MEDIAHARVEST_SITE_PASSWORD")
	return username != "" && password != ""
}
