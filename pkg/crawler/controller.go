// Package crawler walks same-site pages depth-first from a seed URL,
// handing each page's media to the download pipeline and ranking
// outbound links so gallery-like pages are visited before boilerplate.
package crawler

import (
	"context"
	"sort"
	"strings"

	"mediaharvest/pkg/config"
	errs "mediaharvest/pkg/errors"
	"mediaharvest/pkg/frontier"
	"mediaharvest/pkg/handlers"
	"mediaharvest/pkg/logger"
	"mediaharvest/pkg/models"
	"mediaharvest/pkg/ratelimit"
)

// Extractor produces the media items and outbound links of one page.
// The orchestrator binds it to a concrete handler and strategy before
// the crawl starts.
type Extractor interface {
	ExtractPage(ctx context.Context, pageURL string) (*handlers.Result, error)
}

// Sink consumes the media found on a page, typically the download
// pipeline. It must tolerate repeated URLs across pages.
type Sink interface {
	ProcessPage(ctx context.Context, items []models.MediaItem, pageTitle string)
}

// Controller drives a bounded depth-first crawl.
type Controller struct {
	cfg       config.CrawlConfig
	limiter   *ratelimit.DomainLimiter
	extractor Extractor
	sink      Sink
	stats     *models.RunStats
	log       logger.Logger
}

// NewController wires a crawl over the given extractor and sink.
func NewController(cfg config.CrawlConfig, limiter *ratelimit.DomainLimiter, extractor Extractor, sink Sink, stats *models.RunStats) *Controller {
	return &Controller{
		cfg:       cfg,
		limiter:   limiter,
		extractor: extractor,
		sink:      sink,
		stats:     stats,
		log:       logger.GetLogger(),
	}
}

type queueEntry struct {
	url   string
	depth int
}

// Crawl visits pages starting at seedURL until the depth or page bound
// is hit, the frontier drains, or ctx is cancelled. Page-level
// extraction failures are logged and skipped; only fatal setup errors
// abort the crawl.
func (c *Controller) Crawl(ctx context.Context, seedURL string) error {
	seed, err := frontier.Normalize(seedURL)
	if err != nil {
		return errs.Newf(errs.ErrorTypeFatalInit, "invalid seed URL %q: %v", seedURL, err)
	}

	visited := map[string]bool{seed: true}
	queue := []queueEntry{{url: seed, depth: 0}}

	for len(queue) > 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.cfg.MaxPages > 0 && c.stats.PagesVisited >= c.cfg.MaxPages {
			c.log.InfoWithFields("page limit reached", map[string]interface{}{
				"max_pages": c.cfg.MaxPages,
			})
			return nil
		}

		entry := queue[0]
		queue = queue[1:]

		if c.limiter != nil {
			domain, _ := frontier.Domain(entry.url)
			if err := c.limiter.Wait(ctx, domain); err != nil {
				return err
			}
		}

		result, err := c.extractor.ExtractPage(ctx, entry.url)
		c.stats.PagesVisited++
		if err != nil {
			if typed, ok := err.(*errs.Error); ok && typed.Type == errs.ErrorTypeFatalInit {
				return err
			}
			c.log.WarnWithFields("page extraction failed", map[string]interface{}{
				"url":   entry.url,
				"depth": entry.depth,
				"error": err.Error(),
			})
			continue
		}

		logger.LogCrawlProgress(entry.url, entry.depth, c.stats.PagesVisited, c.cfg.MaxPages)
		c.log.DebugWithFields("page extracted", map[string]interface{}{
			"items":  len(result.Items),
			"links":  len(result.Links),
			"queued": len(queue),
		})

		c.sink.ProcessPage(ctx, result.Items, result.Title)

		if entry.depth >= c.cfg.MaxDepth {
			continue
		}
		links := c.selectLinks(entry.url, seed, result.Links, visited)
		if len(links) == 0 {
			continue
		}
		// Depth-first: this page's links, in tier order, go ahead of
		// everything already queued.
		next := make([]queueEntry, 0, len(links)+len(queue))
		for _, link := range links {
			visited[link] = true
			next = append(next, queueEntry{url: link, depth: entry.depth + 1})
		}
		queue = append(next, queue...)
	}
	return nil
}

// selectLinks resolves, filters, deduplicates and ranks a page's
// outbound links, capped at MaxLinksPerPage.
func (c *Controller) selectLinks(pageURL, seed string, links []string, visited map[string]bool) []string {
	out := make([]string, 0, len(links))
	seen := map[string]bool{}
	for _, raw := range links {
		resolved, err := frontier.Resolve(pageURL, raw)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(resolved, "http://") && !strings.HasPrefix(resolved, "https://") {
			continue
		}
		if c.cfg.SameDomainOnly && !frontier.SameDomain(resolved, seed) {
			continue
		}
		normalized, err := frontier.Normalize(resolved)
		if err != nil || visited[normalized] || seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return linkTier(out[i]) < linkTier(out[j])
	})

	max := c.cfg.MaxLinksPerPage
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

// galleryWords mark pages likely to hold media; boilerplateWords mark
// pages that almost never do.
var (
	galleryWords     = []string{"gallery", "exhibit", "artwork", "asset", "collection"}
	boilerplateWords = []string{"login", "about", "contact", "terms", "policy"}
)

// linkTier ranks a URL for visit ordering: 0 for gallery-like paths,
// 2 for boilerplate, 1 otherwise.
func linkTier(link string) int {
	lower := strings.ToLower(link)
	for _, w := range galleryWords {
		if strings.Contains(lower, w) {
			return 0
		}
	}
	for _, w := range boilerplateWords {
		if strings.Contains(lower, w) {
			return 2
		}
	}
	return 1
}
