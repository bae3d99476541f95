package models

import (
	"fmt"
	"time"
)

// MediaType classifies a downloadable media asset.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
	MediaTypeAudio MediaType = "audio"
)

// MediaItem is a candidate media asset discovered by a handler or the
// crawl controller. Each item is consumed exactly once by the download
// pipeline.
type MediaItem struct {
	URL           string            `json:"url"`
	Type          MediaType         `json:"type,omitempty"`
	Alt           string            `json:"alt,omitempty"`
	Title         string            `json:"title,omitempty"`
	Credits       string            `json:"credits,omitempty"`
	SourcePageURL string            `json:"source_page_url,omitempty"`
	TrustedCDN    bool              `json:"trusted_cdn,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// DownloadRecord is the canonical unit persisted to run metadata,
// created for every successful download.
type DownloadRecord struct {
	Filename          string    `json:"filename"`
	FilePath          string    `json:"filepath"`
	URL               string    `json:"url"`
	Type              MediaType `json:"type"`
	Width             int       `json:"width"`
	Height            int       `json:"height"`
	Hash              string    `json:"hash,omitempty"`
	SourcePageURL     string    `json:"source_page_url,omitempty"`
	Alt               string    `json:"alt,omitempty"`
	Title             string    `json:"title,omitempty"`
	Credits           string    `json:"credits,omitempty"`
	OriginalSourceURL string    `json:"original_source_url,omitempty"`
	FileSize          int64     `json:"file_size,omitempty"`
	ExtractionMethod  string    `json:"extraction_method,omitempty"`
	DownloadedAt      time.Time `json:"downloaded_at"`
}

// Resolution returns the pixel area used for duplicate replacement
// decisions. Zero for video and audio records.
func (r *DownloadRecord) Resolution() int {
	return r.Width * r.Height
}

// Strategy identifies which extraction path was used for a seed URL.
type Strategy string

const (
	StrategyAPI             Strategy = "API"
	StrategyDirectBrowser   Strategy = "DirectBrowser"
	StrategyFallbackFetcher Strategy = "FallbackFetcher"
	StrategyNone            Strategy = "None"
)

// RunStats accumulates counters across every pipeline stage of a run.
// Pipeline workers never mutate it directly; outcomes are applied by a
// single collector, so reads at finalization need no synchronization.
type RunStats struct {
	FilesFound              int `json:"files_found"`
	DownloadsAttempted      int `json:"downloads_attempted"`
	ImagesDownloaded        int `json:"images_downloaded"`
	VideosDownloaded        int `json:"videos_downloaded"`
	AudioDownloaded         int `json:"audio_downloaded"`
	DuplicatesRemoved       int `json:"duplicates_removed"`
	DuplicatesMoved         int `json:"duplicates_moved"`
	SkippedSmall            int `json:"skipped_small"`
	SkippedOffDomain        int `json:"skipped_off_domain"`
	SkippedNotMedia         int `json:"skipped_not_media"`
	SkippedAlreadyProcessed int `json:"skipped_already_processed"`
	FailedDownloads         int `json:"failed_downloads"`
	ScreenshotsTaken        int `json:"screenshots_taken"`
	FilesLoadedFromMetadata int `json:"files_loaded_from_metadata"`
	PagesVisited            int `json:"pages_visited"`

	StrategyUsed Strategy `json:"strategy_used"`
	HandlerUsed  string   `json:"handler_used"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	Error string `json:"error,omitempty"`
}

// FilesDownloaded returns the total successful downloads across media types.
func (s *RunStats) FilesDownloaded() int {
	return s.ImagesDownloaded + s.VideosDownloaded + s.AudioDownloaded
}

// Merge folds another run's counters into s. Used when processing
// multiple seed URLs into a combined result.
func (s *RunStats) Merge(other *RunStats) {
	s.FilesFound += other.FilesFound
	s.DownloadsAttempted += other.DownloadsAttempted
	s.ImagesDownloaded += other.ImagesDownloaded
	s.VideosDownloaded += other.VideosDownloaded
	s.AudioDownloaded += other.AudioDownloaded
	s.DuplicatesRemoved += other.DuplicatesRemoved
	s.DuplicatesMoved += other.DuplicatesMoved
	s.SkippedSmall += other.SkippedSmall
	s.SkippedOffDomain += other.SkippedOffDomain
	s.SkippedNotMedia += other.SkippedNotMedia
	s.SkippedAlreadyProcessed += other.SkippedAlreadyProcessed
	s.FailedDownloads += other.FailedDownloads
	s.ScreenshotsTaken += other.ScreenshotsTaken
	s.FilesLoadedFromMetadata += other.FilesLoadedFromMetadata
	s.PagesVisited += other.PagesVisited
}

// Summary renders the human-readable run summary. A run always ends
// with this string, even when partially failed.
func (s *RunStats) Summary(outputPath string) string {
	duration := s.EndTime.Sub(s.StartTime).Round(10 * time.Millisecond)
	out := outputPath
	if out == "" {
		out = "N/A"
	}
	summary := fmt.Sprintf(
		"Finished in %s. Strategy: %s, Handler: %s.\n"+
			"Found: %d, Attempted: %d, Kept: %d (Img: %d, Vid: %d, Aud: %d).\n"+
			"Skipped (Small/OffDomain/NotMedia/Processed): %d/%d/%d/%d.\n"+
			"Duplicates (Removed/Moved): %d/%d.\n"+
			"Failed: %d, Screenshots: %d.\n"+
			"Output: %s",
		duration, s.StrategyUsed, s.HandlerUsed,
		s.FilesFound, s.DownloadsAttempted, s.FilesDownloaded(),
		s.ImagesDownloaded, s.VideosDownloaded, s.AudioDownloaded,
		s.SkippedSmall, s.SkippedOffDomain, s.SkippedNotMedia, s.SkippedAlreadyProcessed,
		s.DuplicatesRemoved, s.DuplicatesMoved,
		s.FailedDownloads, s.ScreenshotsTaken,
		out,
	)
	if s.Error != "" {
		summary += "\nError: " + s.Error
	}
	return summary
}

// RunResult is what a finished (or cancelled) run hands back to the caller.
type RunResult struct {
	RunID        string            `json:"run_id"`
	OutputPath   string            `json:"output_path"`
	MetadataPath string            `json:"metadata_path,omitempty"`
	Records      []*DownloadRecord `json:"records"`
	Stats        *RunStats         `json:"stats"`
	Cancelled    bool              `json:"cancelled,omitempty"`
	SummaryText  string            `json:"summary"`
}
