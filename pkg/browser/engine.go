// Package browser drives a headless Chrome instance through chromedp.
// One Engine owns the process; Sessions are tabs created from it.
package browser

import (
	"context"

	"github.com/chromedp/chromedp"

	"mediaharvest/pkg/config"
	errs "mediaharvest/pkg/errors"
	"mediaharvest/pkg/logger"
)

// defaultUserAgent matches the fetch client so browser and plain-HTTP
// traffic look like the same visitor.
const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

// Engine owns a Chrome process via an exec allocator. Not safe for
// concurrent session creation; the run loop uses a single session at
// a time.
type Engine struct {
	cfg config.BrowserConfig
	log logger.Logger

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewEngine starts the allocator and a browser context. The returned
// engine must be released with Close.
func NewEngine(ctx context.Context, cfg config.BrowserConfig, log logger.Logger) (*Engine, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	execOpts := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(ua),
		chromedp.WindowSize(viewportOr(cfg.ViewportWidth, 1280), viewportOr(cfg.ViewportHeight, 900)),
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Start the browser now so failures surface here, not mid-crawl.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, errs.Newf(errs.ErrorTypeFatalInit, "failed to start browser: %v", err)
	}

	log.DebugWithFields("browser engine started", map[string]interface{}{
		"headless": cfg.Headless,
	})

	return &Engine{
		cfg:           cfg,
		log:           log,
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

func viewportOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// Close releases the browser then the allocator, logging failures and
// continuing; cleanup problems never abort a run.
func (e *Engine) Close() {
	if e.browserCancel != nil {
		e.browserCancel()
		e.browserCancel = nil
	}
	if e.allocCancel != nil {
		e.allocCancel()
		e.allocCancel = nil
	}
	e.log.Debug("browser engine closed")
}
