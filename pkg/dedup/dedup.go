// Package dedup maintains the perceptual-hash index for a run and
// decides which copy of a visually-identical asset survives.
package dedup

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mediaharvest/pkg/logger"
	"mediaharvest/pkg/models"
	"mediaharvest/pkg/phash"
)

// DuplicatesDirName is the folder, under the run output directory,
// that displaced duplicates are moved into when moving is enabled.
const DuplicatesDirName = "_duplicates"

// Action says what to do with a freshly downloaded asset.
type Action int

const (
	// ActionKeep admits the new asset; nothing similar is indexed.
	ActionKeep Action = iota
	// ActionDiscardNew drops the new asset; an indexed copy has equal
	// or higher resolution. Ties always keep the existing copy.
	ActionDiscardNew
	// ActionReplaceExisting evicts the indexed copy; the new asset has
	// strictly higher resolution.
	ActionReplaceExisting
)

// Decision pairs an action with the indexed record it was made against.
type Decision struct {
	Action   Action
	Existing *models.DownloadRecord
}

// Index is the run-scoped duplicate index. Safe for concurrent use.
type Index struct {
	mu          sync.Mutex
	records     []*models.DownloadRecord
	maxDistance int

	moveDuplicates bool
	duplicatesDir  string

	log logger.Logger
}

// New builds an index. duplicatesDir is only used when moveDuplicates
// is set; maxDistance below zero falls back to the default.
func New(maxDistance int, moveDuplicates bool, duplicatesDir string) *Index {
	if maxDistance < 0 {
		maxDistance = phash.DefaultMaxDistance
	}
	return &Index{
		maxDistance:    maxDistance,
		moveDuplicates: moveDuplicates,
		duplicatesDir:  duplicatesDir,
		log:            logger.GetLogger(),
	}
}

// Add indexes a record. Records without a hash are never indexed.
func (idx *Index) Add(rec *models.DownloadRecord) {
	if rec == nil || rec.Hash == "" {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.records = append(idx.records, rec)
}

// Len returns the number of indexed records.
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.records)
}

// Resolve decides the fate of a new record against the index. It does
// not mutate the index or touch the filesystem; pass the decision to
// Apply once the caller is ready to commit it.
func (idx *Index) Resolve(rec *models.DownloadRecord) Decision {
	if rec == nil || rec.Hash == "" {
		return Decision{Action: ActionKeep}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	existing := idx.findSimilar(rec.Hash)
	if existing == nil {
		return Decision{Action: ActionKeep}
	}
	if rec.Resolution() > existing.Resolution() {
		return Decision{Action: ActionReplaceExisting, Existing: existing}
	}
	return Decision{Action: ActionDiscardNew, Existing: existing}
}

// Apply commits a decision: it updates the index and disposes of the
// losing file. Index mutations always land, even when disposal fails,
// so the index never diverges from the decided outcome. moved reports
// whether the losing file was actually relocated into the duplicates
// folder. The caller owns stats bookkeeping.
func (idx *Index) Apply(d Decision, rec *models.DownloadRecord) (moved bool, err error) {
	switch d.Action {
	case ActionKeep:
		idx.Add(rec)
		return false, nil

	case ActionDiscardNew:
		idx.log.DebugWithFields("Discarding lower-resolution duplicate", map[string]interface{}{
			"new":      rec.Filename,
			"existing": d.Existing.Filename,
		})
		return idx.dispose(rec.FilePath)

	case ActionReplaceExisting:
		idx.log.DebugWithFields("Replacing duplicate with higher resolution", map[string]interface{}{
			"new":      rec.Filename,
			"existing": d.Existing.Filename,
		})
		moved, err = idx.dispose(d.Existing.FilePath)
		idx.remove(d.Existing)
		idx.Add(rec)
		return moved, err
	}
	return false, fmt.Errorf("unknown dedup action: %d", d.Action)
}

// Moving reports whether losing duplicates are moved rather than deleted.
func (idx *Index) Moving() bool {
	return idx.moveDuplicates
}

// findSimilar returns the first indexed record within maxDistance of
// hash. Caller holds the lock.
func (idx *Index) findSimilar(hash string) *models.DownloadRecord {
	for _, rec := range idx.records {
		if phash.Similar(hash, rec.Hash, idx.maxDistance) {
			return rec
		}
	}
	return nil
}

// remove drops a record from the index by identity.
func (idx *Index) remove(target *models.DownloadRecord) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for i, rec := range idx.records {
		if rec == target {
			idx.records = append(idx.records[:i], idx.records[i+1:]...)
			return
		}
	}
}

// dispose moves the file into the duplicates folder, or deletes it
// when moving is disabled. A missing file is not an error. moved is
// true only when the file actually landed in the duplicates folder.
func (idx *Index) dispose(path string) (moved bool, err error) {
	if path == "" {
		return false, nil
	}
	if !idx.moveDuplicates {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return false, fmt.Errorf("failed to delete duplicate %s: %w", path, err)
		}
		return false, nil
	}

	if err := os.MkdirAll(idx.duplicatesDir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create duplicates dir: %w", err)
	}
	dest := filepath.Join(idx.duplicatesDir, filepath.Base(path))
	dest = uniquePath(dest)
	if err := os.Rename(path, dest); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to move duplicate %s: %w", path, err)
	}
	return true, nil
}

// uniquePath appends a numeric suffix until the path does not exist.
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	stem := path[:len(path)-len(ext)]
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
