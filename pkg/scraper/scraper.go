// Package scraper orchestrates a harvest run: it resolves seeds,
// selects handler and strategy per seed, drives the crawl, and
// finalizes stats and run metadata.
package scraper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"mediaharvest/internal/downloader"
	"mediaharvest/pkg/auth"
	"mediaharvest/pkg/browser"
	"mediaharvest/pkg/config"
	"mediaharvest/pkg/crawler"
	"mediaharvest/pkg/dedup"
	errs "mediaharvest/pkg/errors"
	"mediaharvest/pkg/fetch"
	"mediaharvest/pkg/frontier"
	"mediaharvest/pkg/handlers"
	"mediaharvest/pkg/logger"
	"mediaharvest/pkg/metadata"
	"mediaharvest/pkg/models"
	"mediaharvest/pkg/phash"
	"mediaharvest/pkg/ratelimit"
	"mediaharvest/pkg/session"
	"mediaharvest/pkg/storage"
)

// Scraper runs harvests. One Scraper owns at most one browser engine,
// created lazily on the first seed that needs it.
type Scraper struct {
	cfg      *config.Config
	registry *handlers.Registry
	client   *fetch.Client
	store    *storage.Manager
	meta     *metadata.Store
	index    *dedup.Index
	hasher   *phash.Hasher
	sessions *session.Manager
	creds    *auth.Manager
	attempts *auth.AttemptTracker
	limiter  *ratelimit.DomainLimiter
	log      logger.Logger

	engine        *browser.Engine
	page          *browser.Session
	browserBroken bool
	authedDomains map[string]bool
}

// New wires a scraper from configuration. Credential store failures
// are tolerated; runs then proceed unauthenticated.
func New(cfg *config.Config) (*Scraper, error) {
	log := logger.GetLogger()

	store, err := storage.NewManager(cfg.Output.BaseDirectory)
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeFatalInit, "output directory: %v", err)
	}
	hasher, err := phash.NewHasher(cfg.Dedup.HashAlgorithm)
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeFatalInit, "hash algorithm: %v", err)
	}

	dupDir := store.DuplicatesDir()
	if cfg.Dedup.DuplicatesFolder != "" {
		dupDir = filepath.Join(store.OutputDir(), cfg.Dedup.DuplicatesFolder)
	}

	sessions, err := session.NewManager(cfg.Session.Directory)
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeFatalInit, "session store: %v", err)
	}

	creds, err := auth.NewManagerWithConfigFile(cfg.Auth.ConfigFile)
	if err != nil {
		log.WithError(err).Warn("credential store unavailable, continuing without site logins")
		creds = nil
	}

	client := fetch.NewClient(cfg.Download.DownloadTimeout, cfg.Browser.UserAgent, log)
	if cfg.RateLimit.RequestsPerMinute > 0 {
		client.SetLimiter(ratelimit.NewSlidingWindow(cfg.RateLimit.RequestsPerMinute, time.Minute))
	}

	return &Scraper{
		cfg:      cfg,
		registry: handlers.NewDefaultRegistry(),
		client:   client,
		store:    store,
		meta:     metadata.NewStore(store.OutputDir()),
		index:    dedup.New(phash.DefaultMaxDistance, cfg.Dedup.MoveDuplicates, dupDir),
		hasher:   hasher,
		sessions: sessions,
		creds:    creds,
		attempts: auth.NewAttemptTracker(cfg.Auth.MaxLoginAttempts, cfg.Auth.LoginCooldown),
		limiter:  ratelimit.NewDomainLimiter(cfg.RateLimit.DefaultPageDelay, cfg.RateLimit.DomainPageDelays),
		log:      log,

		authedDomains: map[string]bool{},
	}, nil
}

// Close releases the browser. Safe to call multiple times and on a
// scraper that never opened one.
func (s *Scraper) Close() {
	if s.page != nil {
		s.page.Close()
		s.page = nil
	}
	if s.engine != nil {
		s.engine.Close()
		s.engine = nil
	}
}

// pipelineSink feeds crawled pages into the download pipeline.
type pipelineSink struct {
	pipe *downloader.Pipeline
	rc   *downloader.RunContext
}

func (p *pipelineSink) ProcessPage(ctx context.Context, items []models.MediaItem, pageTitle string) {
	p.pipe.ProcessQueue(ctx, p.rc, items, pageTitle)
}

// Run harvests every seed and always returns a result with a summary,
// even when seeds failed or the run was cancelled. The returned error
// is reserved for being unable to run at all.
func (s *Scraper) Run(ctx context.Context, seeds []string) (*models.RunResult, error) {
	if len(seeds) == 0 {
		return nil, errs.New(errs.ErrorTypeFatalInit, "no seed URLs given")
	}

	runID := uuid.NewString()
	stats := &models.RunStats{StartTime: time.Now()}
	rc := downloader.NewRunContext(stats, s.cfg.Download.MaxFiles, 0)

	if s.cfg.Output.ContinueRun {
		s.loadPreviousRun(rc, stats)
	}

	pipe := downloader.New(s.client, s.store, s.index, s.hasher, s.cfg)

	var seedErrs []string
	for _, seed := range seeds {
		if ctx.Err() != nil {
			break
		}
		if err := s.processSeed(ctx, seed, rc, pipe); err != nil {
			s.log.ErrorWithFields("seed failed", map[string]interface{}{
				"seed":  seed,
				"error": err.Error(),
			})
			seedErrs = append(seedErrs, fmt.Sprintf("%s: %v", seed, err))
		}
	}

	stats.EndTime = time.Now()
	if len(seedErrs) > 0 {
		stats.Error = strings.Join(seedErrs, "; ")
	}
	cancelled := ctx.Err() != nil

	records := rc.Records()
	meta := &metadata.RunMetadata{
		RunID:      runID,
		Seeds:      seeds,
		StartedAt:  stats.StartTime,
		FinishedAt: stats.EndTime,
		Stats:      stats,
		Records:    records,
	}
	if err := s.meta.SaveRun(meta); err != nil {
		s.log.WithError(err).Warn("failed to write run metadata")
	}

	summary := stats.Summary(s.store.OutputDir())
	if cancelled {
		summary = fmt.Sprintf("Cancelled after saving %d files.\n%s", stats.FilesDownloaded(), summary)
	}

	return &models.RunResult{
		RunID:        runID,
		OutputPath:   s.store.OutputDir(),
		MetadataPath: s.meta.Path(),
		Records:      records,
		Stats:        stats,
		Cancelled:    cancelled,
		SummaryText:  summary,
	}, nil
}

// loadPreviousRun seeds the run state from the previous manifest:
// surviving records rejoin the result set, the dedup index and the
// processed set, and count against the max-files budget.
func (s *Scraper) loadPreviousRun(rc *downloader.RunContext, stats *models.RunStats) {
	prev, err := s.meta.LoadPreviousRun()
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.WithError(err).Warn("could not load previous run metadata")
		}
		return
	}
	for _, rec := range prev.Records {
		rc.MarkProcessed(rec.URL)
		rc.AddRecord(rec)
		s.index.Add(rec)
		stats.FilesLoadedFromMetadata++
	}
	s.log.InfoWithFields("continuing previous run", map[string]interface{}{
		"run_id": prev.RunID,
		"files":  stats.FilesLoadedFromMetadata,
	})
}

// processSeed harvests one seed URL. Errors returned here are fatal
// for this seed only.
func (s *Scraper) processSeed(ctx context.Context, rawSeed string, rc *downloader.RunContext, pipe *downloader.Pipeline) error {
	seed, err := frontier.CleanSeed(rawSeed)
	if err != nil {
		return errs.Newf(errs.ErrorTypeFatalInit, "invalid seed %q: %v", rawSeed, err)
	}

	handler := s.registry.SelectHandler(seed)
	strategy, err := chooseStrategy(handler, s.capabilities())
	if err != nil {
		return err
	}

	ext, strategy, err := s.extractorFor(ctx, strategy, handler, seed, rc.Stats)
	if err != nil {
		return err
	}
	rc.Stats.StrategyUsed = strategy
	rc.Stats.HandlerUsed = handler.Name()
	s.log.InfoWithFields("starting seed", map[string]interface{}{
		"seed":     seed,
		"handler":  handler.Name(),
		"strategy": string(strategy),
	})

	ctl := crawler.NewController(s.cfg.Crawl, s.limiter, ext, &pipelineSink{pipe: pipe, rc: rc}, rc.Stats)
	if err := ctl.Crawl(ctx, seed); err != nil {
		if ctx.Err() != nil {
			// Cancellation is reported through the summary, not as a
			// seed failure.
			return nil
		}
		return err
	}
	return nil
}

func (s *Scraper) capabilities() capabilities {
	return capabilities{
		api:     s.client != nil,
		browser: !s.browserBroken,
		fetcher: s.client != nil,
	}
}

func (s *Scraper) extractionOptions() handlers.Options {
	return handlers.Options{
		MinWidth:        s.cfg.Download.MinWidth,
		MinHeight:       s.cfg.Download.MinHeight,
		ExtractMetadata: s.cfg.Download.ExtractMetadata,
		SameDomainOnly:  s.cfg.Crawl.SameDomainOnly,
		Timeout:         s.cfg.Browser.NavigationTimeout,
	}
}

// extractorFor binds handler and strategy to a page extractor. A
// browser that fails to start degrades the seed to the fallback
// fetcher instead of failing it.
func (s *Scraper) extractorFor(ctx context.Context, strategy models.Strategy, handler handlers.Handler, seed string, stats *models.RunStats) (crawler.Extractor, models.Strategy, error) {
	opts := s.extractionOptions()
	fallback := handlers.NewGenericHandler()

	switch strategy {
	case models.StrategyAPI:
		return &apiExtractor{handler: handler, fallback: fallback, client: s.client, opts: opts}, strategy, nil

	case models.StrategyDirectBrowser:
		sess, err := s.ensureBrowser(ctx)
		if err != nil {
			s.log.WithError(err).Warn("browser unavailable, falling back to plain fetcher")
			if s.client == nil {
				return nil, models.StrategyNone, errs.ErrNoStrategyAvailable
			}
			return &fetcherExtractor{handler: handler, fallback: fallback, client: s.client, opts: opts}, models.StrategyFallbackFetcher, nil
		}
		if domain, derr := frontier.Domain(seed); derr == nil {
			s.ensureAuthenticated(ctx, sess, domain)
		}
		var after func(context.Context)
		if s.cfg.Browser.ScreenshotElements {
			after = func(ctx context.Context) { s.captureScreenshots(ctx, sess, stats) }
		}
		return &browserExtractor{handler: handler, fallback: fallback, page: sess, opts: opts, after: after}, strategy, nil

	case models.StrategyFallbackFetcher:
		return &fetcherExtractor{handler: handler, fallback: fallback, client: s.client, opts: opts}, strategy, nil
	}
	return nil, models.StrategyNone, errs.ErrNoStrategyAvailable
}

// ensureBrowser starts the engine and session on first use. A failed
// start is remembered so later seeds skip straight to the fetcher.
func (s *Scraper) ensureBrowser(ctx context.Context) (*browser.Session, error) {
	if s.page != nil {
		return s.page, nil
	}
	if s.browserBroken {
		return nil, errs.New(errs.ErrorTypeFatalInit, "browser previously failed to start")
	}

	engine, err := browser.NewEngine(ctx, s.cfg.Browser, s.log)
	if err != nil {
		s.browserBroken = true
		return nil, err
	}
	sess, err := engine.NewSession()
	if err != nil {
		engine.Close()
		s.browserBroken = true
		return nil, err
	}
	s.engine = engine
	s.page = sess
	return sess, nil
}

// ensureAuthenticated restores or establishes a login for domain, once
// per run. Failures leave the run unauthenticated rather than aborting
// it; repeated failures are held off by the attempt tracker.
func (s *Scraper) ensureAuthenticated(ctx context.Context, sess *browser.Session, domain string) {
	if s.creds == nil || s.authedDomains[domain] {
		return
	}
	s.authedDomains[domain] = true

	creds, err := s.creds.Retrieve(domain)
	if err != nil || creds == nil {
		return // no credentials configured for this domain
	}

	if s.sessions.HasValidSession(domain) {
		if err := s.sessions.LoadIntoContext(ctx, sess, domain); err == nil {
			if creds.Steps.SuccessSelector == "" ||
				sess.VerifyLoggedIn(ctx, creds.Steps.LoginURL, creds.Steps.SuccessSelector) {
				s.log.WithField("domain", domain).Info("restored saved session")
				return
			}
		}
		s.log.WithField("domain", domain).Info("saved session is stale, deleting")
		if err := s.sessions.DeleteSession(domain); err != nil {
			s.log.WithError(err).Warn("failed to delete stale session")
		}
	}

	if !s.attempts.CanAttempt(domain) {
		s.log.WithField("domain", domain).Warn("login attempts exhausted, continuing unauthenticated")
		return
	}

	if err := sess.Login(ctx, creds); err != nil {
		s.attempts.RecordFailure(domain)
		s.log.WarnWithFields("login failed, continuing unauthenticated", map[string]interface{}{
			"domain": domain,
			"error":  err.Error(),
		})
		return
	}
	s.attempts.RecordSuccess(domain)

	state, err := sess.ExportStorageState(ctx)
	if err != nil {
		s.log.WithError(err).Warn("could not export session state")
		return
	}
	if err := s.sessions.StoreSession(domain, state, s.cfg.Session.TTL); err != nil {
		s.log.WithError(err).Warn("could not persist session state")
		return
	}
	s.log.WithField("domain", domain).Info("logged in, session saved")
}

// captureScreenshots snapshots the page's images into the screenshots
// subfolder. Failures only log; screenshots never block a harvest.
func (s *Scraper) captureScreenshots(ctx context.Context, sess *browser.Session, stats *models.RunStats) {
	dir, err := s.store.ScreenshotsDir()
	if err != nil {
		s.log.WithError(err).Warn("screenshots directory unavailable")
		return
	}
	shots, err := sess.ScreenshotElements(ctx, "img")
	if err != nil {
		s.log.WithError(err).Warn("element screenshots failed")
		return
	}
	stamp := time.Now().UnixMilli()
	for i, shot := range shots {
		name := fmt.Sprintf("shot_%d_%02d.png", stamp, i)
		if err := os.WriteFile(filepath.Join(dir, name), shot, 0o644); err != nil {
			s.log.WithError(err).Warn("failed to write screenshot")
			continue
		}
		stats.ScreenshotsTaken++
	}
}
