// Package downloader is the download pipeline: it claims media items,
// fetches and classifies them, gates dimensions, hashes, dedups and
// records the survivors.
package downloader

import (
	"sync"

	"mediaharvest/pkg/frontier"
	"mediaharvest/pkg/models"
)

// RunContext is the per-run shared state: the processed-URL set, the
// accumulated records and the stats. It lives exactly one run and is
// passed explicitly, never global. One coarse mutex guards mutation;
// it is never held across network I/O.
type RunContext struct {
	mu        sync.Mutex
	processed map[string]bool
	records   []*models.DownloadRecord

	// Stats is mutated only by the pipeline's collector (or the
	// sequential loop), so finalization reads need no lock.
	Stats *models.RunStats

	maxFiles     int
	initialCount int
}

// NewRunContext builds run state. initialCount is the number of files
// loaded from a previous run; it counts against the max-files budget.
func NewRunContext(stats *models.RunStats, maxFiles, initialCount int) *RunContext {
	if stats == nil {
		stats = &models.RunStats{}
	}
	return &RunContext{
		processed:    make(map[string]bool),
		Stats:        stats,
		maxFiles:     maxFiles,
		initialCount: initialCount,
	}
}

// processedKey gives the at-most-once identity of a URL. One
// normalization policy everywhere: the same canonical form the crawl
// visited-set uses.
func processedKey(rawURL string) string {
	if norm, err := frontier.Normalize(rawURL); err == nil {
		return norm
	}
	return rawURL
}

// MarkProcessed records a URL as processed without claiming budget.
// Used when re-seeding from a previous run's records.
func (rc *RunContext) MarkProcessed(rawURL string) {
	rc.mu.Lock()
	rc.processed[processedKey(rawURL)] = true
	rc.mu.Unlock()
}

// IsProcessed reports whether the URL has been claimed or marked.
func (rc *RunContext) IsProcessed(rawURL string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.processed[rc.keyLocked(rawURL)]
}

func (rc *RunContext) keyLocked(rawURL string) string {
	return processedKey(rawURL)
}

// ClaimResult says what happened to a claim attempt.
type ClaimResult int

const (
	// Claimed: the caller owns this URL and must attempt it.
	Claimed ClaimResult = iota
	// AlreadyProcessed: another claim got there first.
	AlreadyProcessed
	// BudgetExhausted: the max-files budget leaves no room.
	BudgetExhausted
)

// Claim atomically checks the processed set and the max-files budget,
// marking the URL processed when claimed. Check-then-mark is a single
// critical section so no URL is attempted twice under contention.
func (rc *RunContext) Claim(rawURL string) ClaimResult {
	key := processedKey(rawURL)
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.processed[key] {
		return AlreadyProcessed
	}
	if rc.maxFiles > 0 && rc.initialCount+len(rc.records) >= rc.maxFiles {
		return BudgetExhausted
	}
	rc.processed[key] = true
	return Claimed
}

// BudgetLeft returns how many more records fit, or -1 for unlimited.
func (rc *RunContext) BudgetLeft() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.maxFiles <= 0 {
		return -1
	}
	left := rc.maxFiles - rc.initialCount - len(rc.records)
	if left < 0 {
		left = 0
	}
	return left
}

// AddRecord appends a successful download.
func (rc *RunContext) AddRecord(rec *models.DownloadRecord) {
	rc.mu.Lock()
	rc.records = append(rc.records, rec)
	rc.mu.Unlock()
}

// RemoveRecord drops a record displaced by a higher-resolution
// duplicate.
func (rc *RunContext) RemoveRecord(target *models.DownloadRecord) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for i, rec := range rc.records {
		if rec == target {
			rc.records = append(rc.records[:i], rc.records[i+1:]...)
			return
		}
	}
}

// Records returns a copy of the accumulated records.
func (rc *RunContext) Records() []*models.DownloadRecord {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]*models.DownloadRecord, len(rc.records))
	copy(out, rc.records)
	return out
}

// RecordCount returns the number of records accumulated this run.
func (rc *RunContext) RecordCount() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.records)
}
