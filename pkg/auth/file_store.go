package auth

import (
	"encoding/json"
	"fmt"
	"os"
)

// FileStore reads site credentials from a user-maintained JSON config
// file mapping domain to credentials. The store is read-only: edits
// happen in the file itself, so Store and Delete are unavailable.
type FileStore struct {
	path string
}

// NewFileStore wraps a credentials config file. The file does not have
// to exist yet; a missing file simply holds no credentials.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Store(creds *SiteCredentials) error {
	return ErrStoreUnavailable
}

func (f *FileStore) Retrieve(domain string) (*SiteCredentials, error) {
	if domain == "" {
		return nil, ErrInvalidCredentials
	}
	sites, err := f.load()
	if err != nil {
		return nil, err
	}
	creds, ok := sites[domain]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return creds, nil
}

func (f *FileStore) List() ([]*SiteCredentials, error) {
	sites, err := f.load()
	if err != nil {
		return nil, err
	}
	out := make([]*SiteCredentials, 0, len(sites))
	for _, creds := range sites {
		out = append(out, creds)
	}
	return out, nil
}

func (f *FileStore) Delete(domain string) error {
	return ErrStoreUnavailable
}

func (f *FileStore) Exists(domain string) bool {
	sites, err := f.load()
	if err != nil {
		return false
	}
	_, ok := sites[domain]
	return ok
}

// load parses the config file. The domain key wins over any domain
// field inside the entry, and the file's mtime stands in for entries
// without their own timestamp.
func (f *FileStore) load() (map[string]*SiteCredentials, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[string]*SiteCredentials{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials config: %w", err)
	}

	var raw map[string]*SiteCredentials
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse credentials config %s: %w", f.path, err)
	}

	info, statErr := os.Stat(f.path)
	for domain, creds := range raw {
		creds.Domain = domain
		if creds.LastModified.IsZero() && statErr == nil {
			creds.LastModified = info.ModTime()
		}
	}
	return raw, nil
}
