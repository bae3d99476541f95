package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	vaultSaltSize      = 32
	vaultKeySize       = 32
	vaultKDFIterations = 100000
	passphraseEnvVar   = "MEDIAHARVEST_PASSPHRASE"
	passphraseFileName = ".passphrase"
)

// EncryptedFileStore keeps site credentials in a single AES-GCM
// encrypted file, used when no OS keychain is available. The key is
// derived with PBKDF2 from a passphrase taken from the environment or
// a generated passphrase file.
type EncryptedFileStore struct {
	path       string
	passphrase string
	mu         sync.RWMutex
}

// fileEnvelope is the on-disk shape: everything sensitive lives inside
// Payload.
type fileEnvelope struct {
	Version  int       `json:"version"`
	Salt     string    `json:"salt"`
	Payload  string    `json:"encrypted"`
	Modified time.Time `json:"modified"`
}

// NewEncryptedFileStore opens or prepares the store at filePath.
func NewEncryptedFileStore(filePath string) (*EncryptedFileStore, error) {
	if dir := filepath.Dir(filePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create credential directory: %w", err)
		}
	}

	pass, err := resolvePassphrase()
	if err != nil {
		return nil, err
	}
	return &EncryptedFileStore{path: filePath, passphrase: pass}, nil
}

// Store upserts one site's credentials.
func (e *EncryptedFileStore) Store(creds *SiteCredentials) error {
	if creds == nil || creds.Domain == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	sites, err := e.load()
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if sites == nil {
		sites = map[string]SiteCredentials{}
	}
	sites[creds.Domain] = *creds
	return e.persist(sites)
}

// Retrieve returns one site's credentials.
func (e *EncryptedFileStore) Retrieve(domain string) (*SiteCredentials, error) {
	if domain == "" {
		return nil, ErrInvalidCredentials
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	sites, err := e.load()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCredentialsNotFound
		}
		return nil, err
	}
	creds, ok := sites[domain]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &creds, nil
}

// List returns every stored site.
func (e *EncryptedFileStore) List() ([]*SiteCredentials, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sites, err := e.load()
	if err != nil {
		if os.IsNotExist(err) {
			return []*SiteCredentials{}, nil
		}
		return nil, err
	}

	out := make([]*SiteCredentials, 0, len(sites))
	for _, creds := range sites {
		c := creds
		out = append(out, &c)
	}
	return out, nil
}

// Delete removes one site. The file itself is removed with the last
// entry.
func (e *EncryptedFileStore) Delete(domain string) error {
	if domain == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	sites, err := e.load()
	if err != nil {
		if os.IsNotExist(err) {
			return ErrCredentialsNotFound
		}
		return err
	}
	if _, ok := sites[domain]; !ok {
		return ErrCredentialsNotFound
	}
	delete(sites, domain)

	if len(sites) == 0 {
		return os.Remove(e.path)
	}
	return e.persist(sites)
}

// Exists reports whether credentials are stored for domain.
func (e *EncryptedFileStore) Exists(domain string) bool {
	creds, err := e.Retrieve(domain)
	return err == nil && creds != nil
}

func (e *EncryptedFileStore) load() (map[string]SiteCredentials, error) {
	content, err := os.ReadFile(e.path)
	if err != nil {
		return nil, err
	}

	var env fileEnvelope
	if err := json.Unmarshal(content, &env); err != nil {
		return nil, fmt.Errorf("parse credential file: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	plain, err := openSealed(sealed, e.deriveKey(salt))
	if err != nil {
		return nil, fmt.Errorf("decrypt credential file: %w", err)
	}

	var sites map[string]SiteCredentials
	if err := json.Unmarshal(plain, &sites); err != nil {
		return nil, fmt.Errorf("parse credential payload: %w", err)
	}
	return sites, nil
}

func (e *EncryptedFileStore) persist(sites map[string]SiteCredentials) error {
	salt := make([]byte, vaultSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}

	plain, err := json.Marshal(sites)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	sealed, err := seal(plain, e.deriveKey(salt))
	if err != nil {
		return fmt.Errorf("encrypt credentials: %w", err)
	}

	content, err := json.MarshalIndent(fileEnvelope{
		Version:  1,
		Salt:     base64.StdEncoding.EncodeToString(salt),
		Payload:  base64.StdEncoding.EncodeToString(sealed),
		Modified: time.Now(),
	}, "", "  ")
	if err != nil {
		return err
	}

	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o600); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}
	return os.Rename(tmp, e.path)
}

func (e *EncryptedFileStore) deriveKey(salt []byte) []byte {
	return pbkdf2.Key([]byte(e.passphrase), salt, vaultKDFIterations, vaultKeySize, sha256.New)
}

// resolvePassphrase prefers the environment, then the passphrase file
// in the config dir, generating and saving one on first use.
func resolvePassphrase() (string, error) {
	if pass := os.Getenv(passphraseEnvVar); pass != "" {
		return pass, nil
	}

	configDir, err := getConfigDir()
	if err != nil {
		return "", err
	}
	passFile := filepath.Join(configDir, passphraseFileName)

	if content, err := os.ReadFile(passFile); err == nil && len(content) > 0 {
		return string(content), nil
	}

	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("generate passphrase: %w", err)
	}
	pass := base64.URLEncoding.EncodeToString(b)
	if err := os.WriteFile(passFile, []byte(pass), 0o600); err != nil {
		return "", fmt.Errorf("save passphrase: %w", err)
	}
	return pass, nil
}

// seal encrypts plaintext with AES-GCM, nonce prepended.
func seal(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// openSealed reverses seal.
func openSealed(sealed, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
