// Package session persists browser storage state per domain so logins
// survive across runs.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"mediaharvest/pkg/browser"
	errs "mediaharvest/pkg/errors"
	"mediaharvest/pkg/logger"
)

// metadataFileName indexes the stored sessions in the session dir.
const metadataFileName = "sessions_metadata.json"

// Entry describes one stored session in the metadata index.
type Entry struct {
	CreatedAt time.Time `json:"created_at"`
	// ExpiresAt zero means the session never expires.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Path      string    `json:"path"`
}

// Manager stores one session file per domain plus a metadata index.
// Safe for concurrent use.
type Manager struct {
	dir string
	log logger.Logger

	mu      sync.Mutex
	entries map[string]Entry
}

// NewManager loads (or initializes) the session directory.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	m := &Manager{
		dir:     dir,
		log:     logger.GetLogger(),
		entries: make(map[string]Entry),
	}

	data, err := os.ReadFile(m.metadataPath())
	if err == nil {
		if err := json.Unmarshal(data, &m.entries); err != nil {
			// A corrupt index means re-login, not a failed run.
			m.log.WarnWithFields("session metadata corrupt, starting fresh", map[string]interface{}{
				"path":  m.metadataPath(),
				"error": err.Error(),
			})
			m.entries = make(map[string]Entry)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read session metadata: %w", err)
	}
	return m, nil
}

func (m *Manager) metadataPath() string {
	return filepath.Join(m.dir, metadataFileName)
}

// sessionPath returns the per-domain state file path.
func (m *Manager) sessionPath(domain string) string {
	return filepath.Join(m.dir, sanitizeDomain(domain)+"_session.json")
}

// sanitizeDomain reduces a domain to filename-safe characters.
func sanitizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimPrefix(domain, "www."))
	var b strings.Builder
	for _, r := range domain {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// HasValidSession reports whether a stored session exists for the
// domain and has not expired. A zero expiry never expires.
func (m *Manager) HasValidSession(domain string) bool {
	m.mu.Lock()
	entry, ok := m.entries[sanitizeDomain(domain)]
	m.mu.Unlock()
	if !ok {
		return false
	}
	if !entry.ExpiresAt.IsZero() && !entry.ExpiresAt.After(time.Now()) {
		return false
	}
	_, err := os.Stat(entry.Path)
	return err == nil
}

// StoreSession persists the storage state for a domain. ttl <= 0
// stores a non-expiring session.
func (m *Manager) StoreSession(domain string, state *browser.StorageState, ttl time.Duration) error {
	if state == nil {
		return errs.New(errs.ErrorTypeAuth, "nil storage state")
	}

	path := m.sessionPath(domain)
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename session state: %w", err)
	}

	entry := Entry{CreatedAt: time.Now(), Path: path}
	if ttl > 0 {
		entry.ExpiresAt = time.Now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[sanitizeDomain(domain)] = entry
	err = m.saveMetadataLocked()
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.log.InfoWithFields("session stored", map[string]interface{}{
		"domain": domain,
		"path":   path,
	})
	return nil
}

// LoadState reads the stored storage state for a domain.
func (m *Manager) LoadState(domain string) (*browser.StorageState, error) {
	m.mu.Lock()
	entry, ok := m.entries[sanitizeDomain(domain)]
	m.mu.Unlock()
	if !ok {
		return nil, errs.Newf(errs.ErrorTypeAuth, "no stored session for %s", domain)
	}

	data, err := os.ReadFile(entry.Path)
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeAuth, "failed to read session for %s: %v", domain, err)
	}
	var state browser.StorageState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errs.Newf(errs.ErrorTypeAuth, "corrupt session file for %s: %v", domain, err)
	}
	return &state, nil
}

// LoadIntoContext restores the domain's stored state into a live
// browser session.
func (m *Manager) LoadIntoContext(ctx context.Context, sess *browser.Session, domain string) error {
	state, err := m.LoadState(domain)
	if err != nil {
		return err
	}
	return sess.ImportStorageState(ctx, state)
}

// DeleteSession removes a stored session; used when a restored
// session fails verification. Unknown domains are a no-op.
func (m *Manager) DeleteSession(domain string) error {
	key := sanitizeDomain(domain)

	m.mu.Lock()
	entry, ok := m.entries[key]
	if ok {
		delete(m.entries, key)
	}
	err := m.saveMetadataLocked()
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if err := os.Remove(entry.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	m.log.InfoWithFields("session deleted", map[string]interface{}{"domain": domain})
	return nil
}

// Domains lists the domains with stored sessions.
func (m *Manager) Domains() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for domain := range m.entries {
		out = append(out, domain)
	}
	return out
}

// saveMetadataLocked writes the index; caller holds the lock.
func (m *Manager) saveMetadataLocked() error {
	data, err := json.MarshalIndent(m.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session metadata: %w", err)
	}
	if err := os.WriteFile(m.metadataPath(), data, 0o600); err != nil {
		return fmt.Errorf("failed to write session metadata: %w", err)
	}
	return nil
}
