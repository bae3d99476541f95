package downloader

import (
	"bytes"
	"context"
	"sync"
	"time"

	"mediaharvest/pkg/config"
	"mediaharvest/pkg/dedup"
	errs "mediaharvest/pkg/errors"
	"mediaharvest/pkg/fetch"
	"mediaharvest/pkg/frontier"
	"mediaharvest/pkg/logger"
	"mediaharvest/pkg/metadata"
	"mediaharvest/pkg/models"
	"mediaharvest/pkg/phash"
	"mediaharvest/pkg/storage"
)

// stubbed in tests
var nowFunc = time.Now

// Pipeline downloads, validates and records media items. One pipeline
// serves a whole run; ProcessQueue is called once per crawled page.
type Pipeline struct {
	client *fetch.Client
	store  *storage.Manager
	index  *dedup.Index
	hasher *phash.Hasher
	cfg    *config.Config
	log    logger.Logger
}

// New wires the pipeline collaborators.
func New(client *fetch.Client, store *storage.Manager, index *dedup.Index, hasher *phash.Hasher, cfg *config.Config) *Pipeline {
	return &Pipeline{
		client: client,
		store:  store,
		index:  index,
		hasher: hasher,
		cfg:    cfg,
		log:    logger.GetLogger(),
	}
}

// outcome is one item's result, applied by a single collector so
// stats, records and the dedup index have exactly one writer.
type outcome struct {
	item      models.MediaItem
	record    *models.DownloadRecord
	skip      *errs.SkipError
	err       error
	attempted bool
}

// ProcessQueue runs every item through the pipeline. Sequential and
// parallel modes produce equivalent final state; parallel mode uses a
// bounded worker pool feeding one collector goroutine. Item failures
// never abort the batch; cancellation stops between items and
// preserves what already completed.
func (p *Pipeline) ProcessQueue(ctx context.Context, rc *RunContext, items []models.MediaItem, pageTitle string) {
	rc.Stats.FilesFound += len(items)

	if p.cfg.Download.Parallel && p.cfg.Download.Workers > 1 {
		p.processParallel(ctx, rc, items, pageTitle)
		return
	}

	for _, item := range items {
		if ctx.Err() != nil {
			return
		}
		switch rc.Claim(item.URL) {
		case AlreadyProcessed:
			rc.Stats.SkippedAlreadyProcessed++
			continue
		case BudgetExhausted:
			return
		}
		p.apply(rc, p.processOne(ctx, item, pageTitle))
	}
}

// processParallel claims items in bounded batches so the max-files
// budget and cancellation cut at batch granularity, then fans the
// batch out to workers and funnels outcomes through one collector.
func (p *Pipeline) processParallel(ctx context.Context, rc *RunContext, items []models.MediaItem, pageTitle string) {
	workers := p.cfg.Download.Workers
	next := 0

	for next < len(items) {
		if ctx.Err() != nil {
			return
		}

		// Claims do not reserve budget, so cap each batch at what is
		// left; at most BudgetLeft records can come out of it.
		size := workers
		if left := rc.BudgetLeft(); left >= 0 {
			if left == 0 {
				return
			}
			if left < size {
				size = left
			}
		}

		batch := make([]models.MediaItem, 0, size)
		for next < len(items) && len(batch) < size {
			item := items[next]
			next++
			switch rc.Claim(item.URL) {
			case AlreadyProcessed:
				rc.Stats.SkippedAlreadyProcessed++
			case BudgetExhausted:
				return
			case Claimed:
				batch = append(batch, item)
			}
		}
		if len(batch) == 0 {
			continue
		}

		results := make(chan outcome, len(batch))
		var wg sync.WaitGroup
		for _, item := range batch {
			wg.Add(1)
			go func(item models.MediaItem) {
				defer wg.Done()
				results <- p.processOne(ctx, item, pageTitle)
			}(item)
		}
		go func() {
			wg.Wait()
			close(results)
		}()

		// Single writer: only this loop touches stats and the index.
		for out := range results {
			p.apply(rc, out)
		}
	}
}

// processOne does the network and disk work for one claimed item. It
// touches no shared state; everything lands in the returned outcome.
func (p *Pipeline) processOne(ctx context.Context, item models.MediaItem, pageTitle string) outcome {
	out := outcome{item: item}

	// Domain policy
	if p.cfg.Crawl.SameDomainOnly && !item.TrustedCDN && item.SourcePageURL != "" &&
		!frontier.SameDomain(item.URL, item.SourcePageURL) {
		out.skip = errs.Skip(errs.SkipOffDomain, item.URL)
		return out
	}

	out.attempted = true
	data, contentType, err := p.client.Download(ctx, item.URL, item.SourcePageURL)
	if err != nil {
		out.err = err
		return out
	}

	mediaType, ok := resolveType(item, contentType)
	if !ok {
		out.skip = errs.Skip(errs.SkipNotMedia, item.URL)
		return out
	}
	if !p.typeEnabled(mediaType) {
		out.skip = errs.Skip(errs.SkipTypeDisabled, string(mediaType))
		return out
	}

	rec := &models.DownloadRecord{
		URL:           item.URL,
		Type:          mediaType,
		SourcePageURL: item.SourcePageURL,
		Alt:           item.Alt,
		Title:         item.Title,
		Credits:       item.Credits,
	}

	var imageFormat string
	if mediaType == models.MediaTypeImage {
		w, h, format, err := phash.DecodeInfo(bytes.NewReader(data))
		if err != nil {
			out.skip = errs.Skip(errs.SkipNotMedia, "undecodable image: "+item.URL)
			return out
		}
		if w < p.cfg.Download.MinWidth || h < p.cfg.Download.MinHeight {
			out.skip = errs.Skip(errs.SkipTooSmall, item.URL)
			return out
		}
		rec.Width, rec.Height = w, h
		imageFormat = format

		if hash, err := p.hasher.Hash(bytes.NewReader(data)); err == nil {
			rec.Hash = hash
		} else {
			p.log.WarnWithFields("hashing failed, dedup disabled for item", map[string]interface{}{
				"url":   item.URL,
				"error": err.Error(),
			})
		}
	}

	prefix := item.Title
	if prefix == "" {
		prefix = item.Alt
	}
	if prefix == "" {
		prefix = pageTitle
	}
	rec.Filename = storage.Filename(prefix, item.URL, extensionFor(mediaType, item.URL, contentType, imageFormat))

	path, size, err := p.store.Save(bytes.NewReader(data), rec.Filename)
	if err != nil {
		out.err = err
		return out
	}
	rec.FilePath = path
	rec.FileSize = size
	rec.DownloadedAt = nowFunc()

	out.record = rec
	return out
}

// apply folds one outcome into the run state. Single-threaded by
// construction (sequential loop or collector).
func (p *Pipeline) apply(rc *RunContext, out outcome) {
	if out.attempted {
		rc.Stats.DownloadsAttempted++
	}
	switch {
	case out.skip != nil:
		p.countSkip(rc, out.skip)

	case out.err != nil:
		rc.Stats.FailedDownloads++
		logger.LogDownload(out.item.URL, "", string(out.item.Type), false, out.err)

	case out.record != nil:
		p.admit(rc, out.record)
	}
}

// admit runs the dedup decision and records the survivor.
func (p *Pipeline) admit(rc *RunContext, rec *models.DownloadRecord) {
	decision := p.index.Resolve(rec)
	moved, err := p.index.Apply(decision, rec)
	if err != nil {
		p.log.WarnWithFields("duplicate disposal failed", map[string]interface{}{
			"file":  rec.Filename,
			"error": err.Error(),
		})
	}

	switch decision.Action {
	case dedup.ActionDiscardNew:
		rc.Stats.DuplicatesRemoved++
		if moved {
			rc.Stats.DuplicatesMoved++
		}
		return

	case dedup.ActionReplaceExisting:
		rc.Stats.DuplicatesRemoved++
		if moved {
			rc.Stats.DuplicatesMoved++
		}
		rc.RemoveRecord(decision.Existing)
		p.uncount(rc, decision.Existing.Type)
		if p.cfg.Output.WriteSidecars {
			if err := metadata.RemoveSidecar(decision.Existing.FilePath); err != nil {
				p.log.Warn(err.Error())
			}
		}
	}

	rc.AddRecord(rec)
	switch rec.Type {
	case models.MediaTypeImage:
		rc.Stats.ImagesDownloaded++
	case models.MediaTypeVideo:
		rc.Stats.VideosDownloaded++
	case models.MediaTypeAudio:
		rc.Stats.AudioDownloaded++
	}
	logger.LogDownload(rec.URL, rec.Filename, string(rec.Type), true, nil)

	if p.cfg.Output.WriteSidecars {
		if err := metadata.SaveSidecar(rec); err != nil {
			p.log.WarnWithFields("sidecar write failed", map[string]interface{}{
				"file":  rec.Filename,
				"error": err.Error(),
			})
		}
	}
}

func (p *Pipeline) uncount(rc *RunContext, t models.MediaType) {
	switch t {
	case models.MediaTypeImage:
		rc.Stats.ImagesDownloaded--
	case models.MediaTypeVideo:
		rc.Stats.VideosDownloaded--
	case models.MediaTypeAudio:
		rc.Stats.AudioDownloaded--
	}
}

func (p *Pipeline) countSkip(rc *RunContext, skip *errs.SkipError) {
	switch skip.Reason {
	case errs.SkipTooSmall:
		rc.Stats.SkippedSmall++
	case errs.SkipOffDomain:
		rc.Stats.SkippedOffDomain++
	case errs.SkipAlreadyProcessed:
		rc.Stats.SkippedAlreadyProcessed++
	default:
		// not-media and disabled types share a counter
		rc.Stats.SkippedNotMedia++
	}
	p.log.DebugWithFields("item skipped", map[string]interface{}{
		"reason": string(skip.Reason),
		"detail": skip.Detail,
	})
}

func (p *Pipeline) typeEnabled(t models.MediaType) bool {
	switch t {
	case models.MediaTypeImage:
		return p.cfg.Download.IncludeImages
	case models.MediaTypeVideo:
		return p.cfg.Download.IncludeVideos
	case models.MediaTypeAudio:
		return p.cfg.Download.IncludeAudio
	default:
		return false
	}
}
