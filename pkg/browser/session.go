package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"mediaharvest/pkg/auth"
	errs "mediaharvest/pkg/errors"
	"mediaharvest/pkg/logger"
)

// stealthScript hides the most common automation tells before any
// page script runs.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3]});
window.chrome = window.chrome || { runtime: {} };
`

// Wait strategies accepted by Navigate.
const (
	WaitLoad             = "load"
	WaitDOMContentLoaded = "domcontentloaded"
	WaitNetworkIdle      = "networkidle"
)

// Session is one browser tab. Sessions are not reentrant: one page
// operation at a time.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
	engine *Engine
	log    logger.Logger
}

// NewSession opens a tab with the engine's viewport and, when
// configured, the stealth init script.
func (e *Engine) NewSession() (*Session, error) {
	ctx, cancel := chromedp.NewContext(e.browserCtx)

	actions := []chromedp.Action{
		chromedp.EmulateViewport(
			int64(viewportOr(e.cfg.ViewportWidth, 1280)),
			int64(viewportOr(e.cfg.ViewportHeight, 900)),
		),
	}
	if e.cfg.StealthMode {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}))
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		cancel()
		return nil, errs.Newf(errs.ErrorTypeFatalInit, "failed to open browser session: %v", err)
	}

	return &Session{ctx: ctx, cancel: cancel, engine: e, log: e.log}, nil
}

// Close releases the tab. Safe to call more than once.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// run executes actions under the session context bounded by the
// caller's context.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx := s.ctx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(s.ctx, deadline)
		defer cancel()
	}
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Navigate loads a URL and waits according to the engine's configured
// wait strategy, bounded by the navigation timeout.
func (s *Session) Navigate(ctx context.Context, url string) error {
	timeout := s.engine.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	actions := []chromedp.Action{chromedp.Navigate(url)}
	switch s.engine.cfg.WaitStrategy {
	case WaitDOMContentLoaded:
		actions = append(actions, waitForReadyState("interactive"))
	case WaitNetworkIdle:
		actions = append(actions,
			waitForReadyState("complete"),
			chromedp.Sleep(1500*time.Millisecond),
		)
	default: // WaitLoad
		actions = append(actions,
			waitForReadyState("complete"),
			chromedp.Sleep(250*time.Millisecond),
		)
	}

	if err := s.run(navCtx, actions...); err != nil {
		return errs.Newf(errs.ErrorTypeNetwork, "navigation to %s failed: %v", url, err)
	}
	s.log.DebugWithFields("navigated", map[string]interface{}{"url": url})
	return nil
}

// waitForReadyState polls document.readyState until it reaches the
// wanted state ("interactive" also accepts "complete").
func waitForReadyState(want string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			var state string
			if err := chromedp.Evaluate(`document.readyState`, &state).Do(ctx); err != nil {
				return err
			}
			if state == "complete" || state == want {
				return nil
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}

// HTML returns the current DOM serialized as outer HTML.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", errs.Newf(errs.ErrorTypeExtraction, "failed to read page HTML: %v", err)
	}
	return html, nil
}

// CurrentURL returns the page's location after redirects.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", errs.Newf(errs.ErrorTypeExtraction, "failed to read location: %v", err)
	}
	return loc, nil
}

// Evaluate runs a JavaScript expression, decoding the result into out.
// Pass nil when the result does not matter.
func (s *Session) Evaluate(ctx context.Context, expression string, out interface{}) error {
	if err := s.run(ctx, chromedp.Evaluate(expression, out)); err != nil {
		return errs.Newf(errs.ErrorTypeExtraction, "evaluate failed: %v", err)
	}
	return nil
}

// ScrollToBottom scrolls in steps until the page height stops growing,
// giving lazy loaders time to fire. Bounded to avoid infinite feeds.
func (s *Session) ScrollToBottom(ctx context.Context) error {
	const maxSteps = 20
	lastHeight := -1
	for i := 0; i < maxSteps; i++ {
		var height int
		err := s.run(ctx,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight`, &height),
			chromedp.Sleep(400*time.Millisecond),
		)
		if err != nil {
			return errs.Newf(errs.ErrorTypeExtraction, "scroll failed: %v", err)
		}
		if height == lastHeight {
			return nil
		}
		lastHeight = height
	}
	return nil
}

// ScrollBy scrolls a fixed number of pixels.
func (s *Session) ScrollBy(ctx context.Context, pixels int) error {
	return s.Evaluate(ctx, fmt.Sprintf("window.scrollBy(0, %d)", pixels), nil)
}

// WaitForTimeout sleeps inside the page session, respecting ctx.
func (s *Session) WaitForTimeout(ctx context.Context, d time.Duration) error {
	return s.run(ctx, chromedp.Sleep(d))
}

// Screenshot captures the full page as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, errs.Newf(errs.ErrorTypeExtraction, "screenshot failed: %v", err)
	}
	return buf, nil
}

// ScreenshotElements captures each element matching the selector.
// Elements that fail to capture are skipped.
func (s *Session) ScreenshotElements(ctx context.Context, selector string) ([][]byte, error) {
	var count int
	if err := s.Evaluate(ctx, fmt.Sprintf(`document.querySelectorAll(%q).length`, selector), &count); err != nil {
		return nil, err
	}

	var shots [][]byte
	for i := 0; i < count; i++ {
		var buf []byte
		sel := fmt.Sprintf(`document.querySelectorAll(%q)[%d]`, selector, i)
		if err := s.run(ctx, chromedp.Screenshot(sel, &buf, chromedp.ByJSPath)); err != nil {
			s.log.WarnWithFields("element screenshot failed", map[string]interface{}{
				"selector": selector,
				"index":    i,
				"error":    err.Error(),
			})
			continue
		}
		shots = append(shots, buf)
	}
	return shots, nil
}

// Login drives the credential steps: open the login page, fill the
// form, submit, and wait for the success indicator.
func (s *Session) Login(ctx context.Context, creds *auth.SiteCredentials) error {
	steps := creds.Steps
	if steps.LoginURL == "" || steps.UsernameSelector == "" || steps.SubmitSelector == "" {
		return errs.New(errs.ErrorTypeAuth, "incomplete login steps for domain "+creds.Domain)
	}

	if err := s.Navigate(ctx, steps.LoginURL); err != nil {
		return err
	}

	actions := []chromedp.Action{
		chromedp.WaitVisible(steps.UsernameSelector, chromedp.ByQuery),
		chromedp.SendKeys(steps.UsernameSelector, creds.Username, chromedp.ByQuery),
	}
	if steps.PasswordSelector != "" {
		actions = append(actions,
			chromedp.SendKeys(steps.PasswordSelector, creds.Password, chromedp.ByQuery))
	}
	actions = append(actions, chromedp.Click(steps.SubmitSelector, chromedp.ByQuery))
	if steps.SuccessSelector != "" {
		actions = append(actions,
			chromedp.WaitVisible(steps.SuccessSelector, chromedp.ByQuery))
	} else {
		actions = append(actions, chromedp.Sleep(2*time.Second))
	}

	if err := s.run(ctx, actions...); err != nil {
		return errs.Newf(errs.ErrorTypeAuth, "login flow for %s failed: %v", creds.Domain, err)
	}
	s.log.InfoWithFields("login flow completed", map[string]interface{}{
		"domain": creds.Domain,
	})
	return nil
}

// VerifyLoggedIn navigates to a probe URL and checks the success
// indicator, confirming a restored session is still authenticated.
func (s *Session) VerifyLoggedIn(ctx context.Context, probeURL, successSelector string) bool {
	if err := s.Navigate(ctx, probeURL); err != nil {
		return false
	}
	if successSelector == "" {
		return true
	}
	var visible bool
	err := s.Evaluate(ctx, fmt.Sprintf(`document.querySelector(%q) !== null`, successSelector), &visible)
	return err == nil && visible
}
