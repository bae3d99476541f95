package scraper

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaharvest/pkg/auth"
	"mediaharvest/pkg/config"
	"mediaharvest/pkg/dedup"
	errs "mediaharvest/pkg/errors"
	"mediaharvest/pkg/fetch"
	"mediaharvest/pkg/handlers"
	"mediaharvest/pkg/logger"
	"mediaharvest/pkg/metadata"
	"mediaharvest/pkg/models"
	"mediaharvest/pkg/phash"
	"mediaharvest/pkg/ratelimit"
	"mediaharvest/pkg/session"
	"mediaharvest/pkg/storage"
)

type flagHandler struct {
	handlers.Base
	requires bool
	prefers  bool
}

func (flagHandler) Name() string          { return "flags" }
func (flagHandler) CanHandle(string) bool { return true }
func (h flagHandler) RequiresAPI() bool   { return h.requires }
func (h flagHandler) PrefersAPI() bool    { return h.prefers }

func TestChooseStrategy(t *testing.T) {
	all := capabilities{api: true, browser: true, fetcher: true}

	tests := []struct {
		name    string
		handler flagHandler
		caps    capabilities
		want    models.Strategy
		wantErr bool
	}{
		{"requires api", flagHandler{requires: true}, all, models.StrategyAPI, false},
		{"requires api but none", flagHandler{requires: true}, capabilities{browser: true, fetcher: true}, models.StrategyNone, true},
		{"prefers api", flagHandler{prefers: true}, all, models.StrategyAPI, false},
		{"prefers api without api uses browser", flagHandler{prefers: true}, capabilities{browser: true, fetcher: true}, models.StrategyDirectBrowser, false},
		{"browser preferred over fetcher", flagHandler{}, all, models.StrategyDirectBrowser, false},
		{"fetcher fallback", flagHandler{}, capabilities{fetcher: true}, models.StrategyFallbackFetcher, false},
		{"nothing available", flagHandler{}, capabilities{}, models.StrategyNone, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := chooseStrategy(tt.handler, tt.caps)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errs.ErrNoStrategyAvailable)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// gallerySite serves a two-page site with three images total.
func gallerySite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Front</title></head><body>
			<img src="/img/one.png" alt="one">
			<img src="/img/two.png" alt="two">
			<a href="/gallery/page2.html">more</a>
			</body></html>`)
	})
	mux.HandleFunc("/gallery/page2.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Page Two</title></head><body>
			<img src="/img/three.png" alt="three">
			</body></html>`)
	})
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		switch r.URL.Path {
		case "/img/one.png":
			w.Write(testPNG(t, 640, 480))
		case "/img/two.png":
			w.Write(testPNG(t, 800, 600))
		case "/img/three.png":
			w.Write(testPNG(t, 1024, 768))
		default:
			http.NotFound(w, r)
		}
	})
	return httptest.NewServer(mux)
}

// newTestScraper builds a scraper with no browser and no credential
// store, so seeds run over the plain fetcher.
func newTestScraper(t *testing.T, cfg *config.Config) *Scraper {
	t.Helper()
	store, err := storage.NewManager(cfg.Output.BaseDirectory)
	require.NoError(t, err)
	hasher, err := phash.NewHasher(cfg.Dedup.HashAlgorithm)
	require.NoError(t, err)
	sessions, err := session.NewManager(cfg.Session.Directory)
	require.NoError(t, err)

	return &Scraper{
		cfg:           cfg,
		registry:      handlers.NewDefaultRegistry(),
		client:        fetch.NewClient(10*time.Second, "", logger.NewTestLogger()),
		store:         store,
		meta:          metadata.NewStore(store.OutputDir()),
		index:         dedup.New(phash.DefaultMaxDistance, cfg.Dedup.MoveDuplicates, store.DuplicatesDir()),
		hasher:        hasher,
		sessions:      sessions,
		attempts:      auth.NewAttemptTracker(cfg.Auth.MaxLoginAttempts, cfg.Auth.LoginCooldown),
		limiter:       ratelimit.NewDomainLimiter(time.Millisecond, nil),
		log:           logger.NewTestLogger(),
		browserBroken: true, // force the fetcher path in tests
		authedDomains: map[string]bool{},
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Output.BaseDirectory = t.TempDir()
	cfg.Session.Directory = t.TempDir()
	cfg.Dedup.HashAlgorithm = "none"
	cfg.Download.Parallel = false
	cfg.Crawl.MaxDepth = 1
	cfg.RateLimit.DefaultPageDelay = time.Millisecond
	cfg.RateLimit.DomainPageDelays = nil
	return cfg
}

func TestRunHarvestsSiteOverFetcher(t *testing.T) {
	srv := gallerySite(t)
	defer srv.Close()

	cfg := testConfig(t)
	s := newTestScraper(t, cfg)
	defer s.Close()

	result, err := s.Run(context.Background(), []string{srv.URL})
	require.NoError(t, err)

	assert.Equal(t, models.StrategyFallbackFetcher, result.Stats.StrategyUsed)
	assert.Equal(t, "generic", result.Stats.HandlerUsed)
	assert.Equal(t, 3, result.Stats.ImagesDownloaded)
	assert.Equal(t, 2, result.Stats.PagesVisited)
	assert.Len(t, result.Records, 3)
	assert.False(t, result.Cancelled)
	assert.Contains(t, result.SummaryText, "Finished in")
	assert.FileExists(t, result.MetadataPath)
	for _, rec := range result.Records {
		assert.FileExists(t, rec.FilePath)
	}
}

func TestRunContinuePreviousRun(t *testing.T) {
	srv := gallerySite(t)
	defer srv.Close()

	cfg := testConfig(t)
	first := newTestScraper(t, cfg)
	res1, err := first.Run(context.Background(), []string{srv.URL})
	require.NoError(t, err)
	require.Equal(t, 3, res1.Stats.ImagesDownloaded)

	// Second run over the same output dir downloads nothing new.
	cfg.Output.ContinueRun = true
	second := newTestScraper(t, cfg)
	res2, err := second.Run(context.Background(), []string{srv.URL})
	require.NoError(t, err)

	assert.Equal(t, 3, res2.Stats.FilesLoadedFromMetadata)
	assert.Equal(t, 0, res2.Stats.ImagesDownloaded)
	assert.Equal(t, 3, res2.Stats.SkippedAlreadyProcessed)
	assert.Len(t, res2.Records, 3)
}

func TestRunContinueRespectsMaxFiles(t *testing.T) {
	srv := gallerySite(t)
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Download.MaxFiles = 2
	first := newTestScraper(t, cfg)
	res1, err := first.Run(context.Background(), []string{srv.URL})
	require.NoError(t, err)
	require.Equal(t, 2, res1.Stats.ImagesDownloaded)

	cfg.Output.ContinueRun = true
	second := newTestScraper(t, cfg)
	res2, err := second.Run(context.Background(), []string{srv.URL})
	require.NoError(t, err)

	// Budget already spent by the previous run's files.
	assert.Equal(t, 2, res2.Stats.FilesLoadedFromMetadata)
	assert.Equal(t, 0, res2.Stats.ImagesDownloaded)
	assert.Len(t, res2.Records, 2)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := testConfig(t)
	s := newTestScraper(t, cfg)

	result, err := s.Run(ctx, []string{"https://example.com"})
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
	assert.Contains(t, result.SummaryText, "Cancelled after saving 0 files")
	assert.Empty(t, result.Records)
}

func TestRunMultipleSeedsCombinedStats(t *testing.T) {
	srv := gallerySite(t)
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Crawl.MaxDepth = 0 // each seed is a single page
	s := newTestScraper(t, cfg)

	result, err := s.Run(context.Background(), []string{
		srv.URL,
		srv.URL + "/gallery/page2.html",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Stats.ImagesDownloaded)
	assert.Equal(t, 2, result.Stats.PagesVisited)
	assert.Len(t, result.Records, 3)
}

func TestRunBadSeedDoesNotAbortOthers(t *testing.T) {
	srv := gallerySite(t)
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Crawl.MaxDepth = 0
	s := newTestScraper(t, cfg)

	result, err := s.Run(context.Background(), []string{"::not a url::", srv.URL})
	require.NoError(t, err)

	assert.NotEmpty(t, result.Stats.Error)
	assert.Equal(t, 2, result.Stats.ImagesDownloaded)
}

func TestRunNoSeeds(t *testing.T) {
	cfg := testConfig(t)
	s := newTestScraper(t, cfg)

	_, err := s.Run(context.Background(), nil)
	require.Error(t, err)
}
