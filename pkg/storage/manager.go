package storage

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// maxPrefixLen bounds the human-readable part of generated filenames.
const maxPrefixLen = 48

// Manager owns the run output directory: it generates stable
// filenames, writes files atomically, and tracks what is on disk.
type Manager struct {
	outputDir string

	mu    sync.RWMutex
	saved map[string]bool // filename -> present
}

// NewManager creates the output directory if needed and indexes any
// files already in it, so a continued run sees prior downloads.
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	m := &Manager{
		outputDir: outputDir,
		saved:     make(map[string]bool),
	}
	if err := m.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}
	return m, nil
}

// scanExistingFiles indexes regular files in the output directory.
// Subdirectories (including the duplicates folder) are ignored.
func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		m.saved[entry.Name()] = true
	}
	return nil
}

// Filename builds the stable on-disk name for a media URL:
// a sanitized prefix, a 10-character URL digest, and the extension.
// The digest keeps names unique while the prefix keeps them readable.
func Filename(prefix, mediaURL, ext string) string {
	prefix = slugify(prefix)
	if prefix == "" {
		prefix = "media"
	}
	sum := sha1.Sum([]byte(mediaURL))
	digest := hex.EncodeToString(sum[:])[:10]

	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s_%s.%s", prefix, digest, ext)
}

// slugify reduces a string to lowercase alphanumerics and hyphens.
func slugify(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
		if b.Len() >= maxPrefixLen {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}

// Exists reports whether a filename is already present in the output
// directory, consulting the index first and the filesystem second.
func (m *Manager) Exists(filename string) bool {
	m.mu.RLock()
	known := m.saved[filename]
	m.mu.RUnlock()
	if known {
		return true
	}

	// Same rules as the startup scan: only regular, fully-written
	// files count.
	if strings.HasSuffix(filename, ".tmp") {
		return false
	}
	info, err := os.Stat(filepath.Join(m.outputDir, filename))
	if err != nil || info.IsDir() {
		return false
	}
	m.mu.Lock()
	m.saved[filename] = true
	m.mu.Unlock()
	return true
}

// Save streams r to filename atomically: data lands in a .tmp sibling
// first and is renamed into place only on a clean write. Returns the
// final absolute path and bytes written.
func (m *Manager) Save(r io.Reader, filename string) (string, int64, error) {
	final := filepath.Join(m.outputDir, filename)
	tmp := final + ".tmp"

	out, err := os.Create(tmp)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temporary file: %w", err)
	}

	n, err := io.Copy(out, r)
	closeErr := out.Close()
	if err != nil {
		os.Remove(tmp)
		return "", 0, fmt.Errorf("failed to write file data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return "", 0, fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", 0, fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.mu.Lock()
	m.saved[filename] = true
	m.mu.Unlock()

	return final, n, nil
}

// Remove deletes a saved file and drops it from the index. Missing
// files are not an error.
func (m *Manager) Remove(filename string) error {
	if err := os.Remove(filepath.Join(m.outputDir, filename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", filename, err)
	}
	m.mu.Lock()
	delete(m.saved, filename)
	m.mu.Unlock()
	return nil
}

// OutputDir returns the absolute output directory path.
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// DuplicatesDir returns the path duplicates are moved into. The
// directory is not created until a duplicate actually lands there.
func (m *Manager) DuplicatesDir() string {
	return filepath.Join(m.outputDir, "_duplicates")
}

// ScreenshotsDir creates and returns the screenshots subdirectory.
func (m *Manager) ScreenshotsDir() (string, error) {
	dir := filepath.Join(m.outputDir, "_screenshots")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create screenshots dir: %w", err)
	}
	return dir, nil
}

// SavedCount returns the number of files known to be on disk.
func (m *Manager) SavedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.saved)
}
