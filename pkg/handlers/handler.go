// Package handlers holds the per-site extraction handlers and the
// registry that picks one for a page URL.
package handlers

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"

	errs "mediaharvest/pkg/errors"
	"mediaharvest/pkg/models"
)

// Options carries the per-run extraction knobs a handler may consult.
type Options struct {
	MinWidth        int
	MinHeight       int
	ExtractMetadata bool
	SameDomainOnly  bool
	Timeout         time.Duration
}

// Result is what one extraction pass over a page yields.
type Result struct {
	// Items are candidate media assets found on the page.
	Items []models.MediaItem
	// Links are absolute URLs of pages discovered for further crawling.
	Links []string
	// Title is the page title, used as the filename prefix.
	Title string
}

// PageRenderer is the browser surface handlers use. Implemented by
// browser.Session.
type PageRenderer interface {
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	ScrollToBottom(ctx context.Context) error
}

// Fetcher is the plain-HTTP surface handlers use. Implemented by
// fetch.Client.
type Fetcher interface {
	GetDocument(ctx context.Context, url string) (*goquery.Document, error)
	GetJSON(ctx context.Context, url string, target interface{}) error
}

// Handler extracts media from pages of sites it recognizes. All
// methods must be safe to call; embed Base to get inert defaults for
// the paths a handler does not implement.
type Handler interface {
	// Name identifies the handler in logs and run stats.
	Name() string
	// CanHandle reports whether this handler wants the given page URL.
	CanHandle(url string) bool
	// PrefersAPI signals the API path should be tried before the browser.
	PrefersAPI() bool
	// RequiresAPI signals browser and fetcher paths are useless for
	// this site.
	RequiresAPI() bool

	ExtractWithBrowser(ctx context.Context, page PageRenderer, pageURL string, opts Options) (*Result, error)
	ExtractWithFetcher(ctx context.Context, client Fetcher, pageURL string, opts Options) (*Result, error)
	ExtractAPIData(ctx context.Context, client Fetcher, pageURL string, opts Options) (*Result, error)
}

// Base supplies safe defaults so concrete handlers only override what
// they support.
type Base struct{}

func (Base) Name() string              { return "base" }
func (Base) CanHandle(url string) bool { return false }
func (Base) PrefersAPI() bool          { return false }
func (Base) RequiresAPI() bool         { return false }

func (Base) ExtractWithBrowser(ctx context.Context, page PageRenderer, pageURL string, opts Options) (*Result, error) {
	return nil, errs.New(errs.ErrorTypeExtraction, "browser extraction not supported")
}

func (Base) ExtractWithFetcher(ctx context.Context, client Fetcher, pageURL string, opts Options) (*Result, error) {
	return nil, errs.New(errs.ErrorTypeExtraction, "fetcher extraction not supported")
}

func (Base) ExtractAPIData(ctx context.Context, client Fetcher, pageURL string, opts Options) (*Result, error) {
	return nil, errs.New(errs.ErrorTypeExtraction, "API extraction not supported")
}
