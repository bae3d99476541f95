// Package phash computes perceptual image hashes used to detect
// visually-identical downloads regardless of size or re-encoding.
package phash

import (
	"fmt"
	"image"
	"io"
	"os"
	"strings"

	// Register decoders for every image format the pipeline accepts.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/corona10/goimagehash"
)

// Algorithm selects which perceptual hash to compute.
type Algorithm string

const (
	AlgorithmPHash   Algorithm = "phash"
	AlgorithmAverage Algorithm = "average"
	AlgorithmDHash   Algorithm = "dhash"
	AlgorithmNone    Algorithm = "none"
)

// DefaultMaxDistance is the Hamming distance at or below which two
// hashes are considered the same image.
const DefaultMaxDistance = 5

// Hasher computes hashes with a fixed algorithm.
type Hasher struct {
	algorithm Algorithm
}

// NewHasher validates the algorithm name and returns a hasher.
// AlgorithmNone yields a hasher whose Hash always returns "".
func NewHasher(algorithm string) (*Hasher, error) {
	switch Algorithm(algorithm) {
	case AlgorithmPHash, AlgorithmAverage, AlgorithmDHash, AlgorithmNone:
		return &Hasher{algorithm: Algorithm(algorithm)}, nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm: %s", algorithm)
	}
}

// Enabled reports whether hashing is active.
func (h *Hasher) Enabled() bool {
	return h.algorithm != AlgorithmNone
}

// Hash decodes an image and returns its perceptual hash in the
// goimagehash string form ("p:...", "a:...", "d:..."). Returns "" with
// no error when hashing is disabled.
func (h *Hasher) Hash(r io.Reader) (string, error) {
	if !h.Enabled() {
		return "", nil
	}
	img, _, err := image.Decode(r)
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}
	return h.HashImage(img)
}

// HashImage hashes an already-decoded image.
func (h *Hasher) HashImage(img image.Image) (string, error) {
	if !h.Enabled() {
		return "", nil
	}

	var ih *goimagehash.ImageHash
	var err error
	switch h.algorithm {
	case AlgorithmPHash:
		ih, err = goimagehash.PerceptionHash(img)
	case AlgorithmAverage:
		ih, err = goimagehash.AverageHash(img)
	case AlgorithmDHash:
		ih, err = goimagehash.DifferenceHash(img)
	}
	if err != nil {
		return "", fmt.Errorf("failed to compute %s: %w", h.algorithm, err)
	}
	return ih.ToString(), nil
}

// HashFile hashes the image stored at path.
func (h *Hasher) HashFile(path string) (string, error) {
	if !h.Enabled() {
		return "", nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return h.Hash(f)
}

// Distance returns the Hamming distance between two hash strings.
func Distance(a, b string) (int, error) {
	ha, err := parseHash(a)
	if err != nil {
		return 0, err
	}
	hb, err := parseHash(b)
	if err != nil {
		return 0, err
	}
	return ha.Distance(hb)
}

// Similar reports whether two hashes are within maxDistance of each
// other. Hashes of different kinds or empty hashes never match.
func Similar(a, b string, maxDistance int) bool {
	if a == "" || b == "" {
		return false
	}
	if kindOf(a) != kindOf(b) {
		return false
	}
	d, err := Distance(a, b)
	if err != nil {
		return false
	}
	return d <= maxDistance
}

func kindOf(hash string) string {
	if i := strings.IndexByte(hash, ':'); i > 0 {
		return hash[:i]
	}
	return ""
}

func parseHash(s string) (*goimagehash.ImageHash, error) {
	ih, err := goimagehash.ImageHashFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	return ih, nil
}

// DecodeInfo reads just enough of an image stream to report its pixel
// dimensions and format name.
func DecodeInfo(r io.Reader) (width, height int, format string, err error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return 0, 0, "", fmt.Errorf("failed to decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, format, nil
}
