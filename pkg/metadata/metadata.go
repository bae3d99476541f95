// Package metadata persists run manifests and per-file sidecars so a
// run can be resumed and its duplicate index rebuilt from disk.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mediaharvest/pkg/models"
)

// RunFileName is the manifest written at the root of the output dir.
const RunFileName = "mediaharvest_run.json"

// RunMetadata is the manifest of one harvest run. Record paths are
// stored relative to the output directory so the folder stays portable.
type RunMetadata struct {
	RunID      string                   `json:"run_id"`
	Seeds      []string                 `json:"seeds"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at,omitempty"`
	Stats      *models.RunStats         `json:"stats,omitempty"`
	Records    []*models.DownloadRecord `json:"records"`
}

// Store reads and writes run manifests for one output directory.
type Store struct {
	outputDir string
}

// NewStore returns a store rooted at outputDir.
func NewStore(outputDir string) *Store {
	return &Store{outputDir: outputDir}
}

// Path returns the manifest location.
func (s *Store) Path() string {
	return filepath.Join(s.outputDir, RunFileName)
}

// SaveRun writes the manifest atomically, relativizing record paths.
func (s *Store) SaveRun(meta *RunMetadata) error {
	clone := *meta
	clone.Records = make([]*models.DownloadRecord, len(meta.Records))
	for i, rec := range meta.Records {
		r := *rec
		if rel, err := filepath.Rel(s.outputDir, r.FilePath); err == nil {
			r.FilePath = rel
		}
		clone.Records[i] = &r
	}

	data, err := json.MarshalIndent(&clone, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run metadata: %w", err)
	}

	tmp := s.Path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run metadata: %w", err)
	}
	if err := os.Rename(tmp, s.Path()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename run metadata: %w", err)
	}
	return nil
}

// LoadRun reads the manifest and makes record paths absolute again.
// Returns os.ErrNotExist when no manifest is present.
func (s *Store) LoadRun() (*RunMetadata, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run metadata: %w", err)
	}
	for _, rec := range meta.Records {
		if rec.FilePath != "" && !filepath.IsAbs(rec.FilePath) {
			rec.FilePath = filepath.Join(s.outputDir, rec.FilePath)
		}
	}
	return &meta, nil
}

// LoadPreviousRun loads the manifest for a continued run, dropping
// records whose files have since been deleted. The surviving records
// are what re-seeds the processed-URL set and the duplicate index.
func (s *Store) LoadPreviousRun() (*RunMetadata, error) {
	meta, err := s.LoadRun()
	if err != nil {
		return nil, err
	}

	surviving := meta.Records[:0]
	for _, rec := range meta.Records {
		if _, err := os.Stat(rec.FilePath); err == nil {
			surviving = append(surviving, rec)
		}
	}
	meta.Records = surviving
	return meta, nil
}

// SaveSidecar writes a per-file metadata JSON next to the download.
func SaveSidecar(rec *models.DownloadRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sidecar: %w", err)
	}
	if err := os.WriteFile(rec.FilePath+".json", data, 0o644); err != nil {
		return fmt.Errorf("failed to write sidecar: %w", err)
	}
	return nil
}

// LoadSidecar reads the sidecar for a media file path.
func LoadSidecar(mediaPath string) (*models.DownloadRecord, error) {
	data, err := os.ReadFile(mediaPath + ".json")
	if err != nil {
		return nil, fmt.Errorf("failed to read sidecar: %w", err)
	}
	var rec models.DownloadRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sidecar: %w", err)
	}
	return &rec, nil
}

// RemoveSidecar deletes the sidecar for a media file, if present.
func RemoveSidecar(mediaPath string) error {
	if err := os.Remove(mediaPath + ".json"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove sidecar: %w", err)
	}
	return nil
}

// CleanOrphanedSidecars removes sidecar files whose media file is
// gone. The run manifest itself is never touched.
func CleanOrphanedSidecars(directory string) error {
	return filepath.Walk(directory, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		if filepath.Base(path) == RunFileName {
			return nil
		}

		mediaPath := path[:len(path)-len(".json")]
		if _, err := os.Stat(mediaPath); os.IsNotExist(err) {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to remove orphaned sidecar %s: %w", path, err)
			}
		}
		return nil
	})
}
