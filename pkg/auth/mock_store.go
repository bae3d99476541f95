package auth

import "sync"

// MockStore is an in-memory CredentialStore for tests, with per-method
// error injection.
type MockStore struct {
	mu    sync.RWMutex
	sites map[string]SiteCredentials

	StoreError    error
	RetrieveError error
	ListError     error
	DeleteError   error
}

func NewMockStore() *MockStore {
	return &MockStore{sites: map[string]SiteCredentials{}}
}

func (m *MockStore) Store(creds *SiteCredentials) error {
	if m.StoreError != nil {
		return m.StoreError
	}
	if creds == nil || creds.Domain == "" {
		return ErrInvalidCredentials
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sites[creds.Domain] = *creds
	return nil
}

func (m *MockStore) Retrieve(domain string) (*SiteCredentials, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}
	if domain == "" {
		return nil, ErrInvalidCredentials
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	creds, ok := m.sites[domain]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &creds, nil
}

func (m *MockStore) List() ([]*SiteCredentials, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*SiteCredentials, 0, len(m.sites))
	for _, creds := range m.sites {
		c := creds
		out = append(out, &c)
	}
	return out, nil
}

func (m *MockStore) Delete(domain string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	if domain == "" {
		return ErrInvalidCredentials
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sites[domain]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.sites, domain)
	return nil
}

func (m *MockStore) Exists(domain string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sites[domain]
	return ok
}

// Count reports how many sites are stored.
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sites)
}

// NewMockManager builds a Manager backed by a single mock store.
func NewMockManager() (*Manager, *MockStore) {
	store := NewMockStore()
	return &Manager{stores: []CredentialStore{store}}, store
}

// NewMockManagerWithStores builds a Manager over arbitrary stores.
func NewMockManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}
