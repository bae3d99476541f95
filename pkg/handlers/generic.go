package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	errs "mediaharvest/pkg/errors"
	"mediaharvest/pkg/frontier"
	"mediaharvest/pkg/models"
)

// mediaExtensions maps file extensions seen in hrefs to media types,
// so direct links to assets are picked up alongside inline tags.
var mediaExtensions = map[string]models.MediaType{
	".jpg": models.MediaTypeImage, ".jpeg": models.MediaTypeImage,
	".png": models.MediaTypeImage, ".gif": models.MediaTypeImage,
	".webp": models.MediaTypeImage, ".avif": models.MediaTypeImage,
	".mp4": models.MediaTypeVideo, ".webm": models.MediaTypeVideo,
	".mov": models.MediaTypeVideo, ".mkv": models.MediaTypeVideo,
	".mp3": models.MediaTypeAudio, ".ogg": models.MediaTypeAudio,
	".wav": models.MediaTypeAudio, ".flac": models.MediaTypeAudio,
	".m4a": models.MediaTypeAudio,
}

// GenericHandler extracts media from arbitrary HTML. It is the
// registry floor and accepts every URL.
type GenericHandler struct {
	Base
}

// NewGenericHandler returns the fallback handler.
func NewGenericHandler() *GenericHandler {
	return &GenericHandler{}
}

func (*GenericHandler) Name() string              { return "generic" }
func (*GenericHandler) CanHandle(url string) bool { return true }

// ExtractWithBrowser renders the page, scrolls to trigger lazy
// loading, and parses the resulting DOM.
func (h *GenericHandler) ExtractWithBrowser(ctx context.Context, page PageRenderer, pageURL string, opts Options) (*Result, error) {
	if err := page.Navigate(ctx, pageURL); err != nil {
		return nil, err
	}
	if err := page.ScrollToBottom(ctx); err != nil {
		return nil, err
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeParsing, "failed to parse rendered HTML: %v", err)
	}
	return h.extract(doc, pageURL), nil
}

// ExtractWithFetcher parses the page without a browser. Sites that
// render media client-side will come up empty here.
func (h *GenericHandler) ExtractWithFetcher(ctx context.Context, client Fetcher, pageURL string, opts Options) (*Result, error) {
	doc, err := client.GetDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return h.extract(doc, pageURL), nil
}

// extract walks the DOM once, collecting media items and crawl links.
func (h *GenericHandler) extract(doc *goquery.Document, pageURL string) *Result {
	result := &Result{Title: strings.TrimSpace(doc.Find("title").First().Text())}
	seen := make(map[string]bool)

	add := func(rawURL string, mediaType models.MediaType, alt, title string) {
		rawURL = strings.TrimSpace(rawURL)
		if rawURL == "" || strings.HasPrefix(rawURL, "data:") {
			return
		}
		abs, err := frontier.Resolve(pageURL, rawURL)
		if err != nil || seen[abs] {
			return
		}
		seen[abs] = true
		result.Items = append(result.Items, models.MediaItem{
			URL:           abs,
			Type:          mediaType,
			Alt:           alt,
			Title:         title,
			SourcePageURL: pageURL,
		})
	}

	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		alt, _ := sel.Attr("alt")
		title, _ := sel.Attr("title")
		add(bestImageSource(sel), models.MediaTypeImage, alt, title)
	})

	doc.Find("picture source").Each(func(_ int, sel *goquery.Selection) {
		if srcset, ok := sel.Attr("srcset"); ok {
			add(largestSrcsetCandidate(srcset), models.MediaTypeImage, "", "")
		}
	})

	doc.Find("video").Each(func(_ int, sel *goquery.Selection) {
		if src, ok := sel.Attr("src"); ok {
			add(src, models.MediaTypeVideo, "", "")
		}
		sel.Find("source").Each(func(_ int, source *goquery.Selection) {
			if src, ok := source.Attr("src"); ok {
				add(src, models.MediaTypeVideo, "", "")
			}
		})
	})

	doc.Find("audio").Each(func(_ int, sel *goquery.Selection) {
		if src, ok := sel.Attr("src"); ok {
			add(src, models.MediaTypeAudio, "", "")
		}
		sel.Find("source").Each(func(_ int, source *goquery.Selection) {
			if src, ok := source.Attr("src"); ok {
				add(src, models.MediaTypeAudio, "", "")
			}
		})
	})

	doc.Find(`meta[property="og:image"], meta[name="twitter:image"]`).Each(func(_ int, sel *goquery.Selection) {
		if content, ok := sel.Attr("content"); ok {
			add(content, models.MediaTypeImage, "", "")
		}
	})

	linkSeen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		abs, err := frontier.Resolve(pageURL, href)
		if err != nil {
			return
		}
		// Direct asset links become items, everything else crawl links.
		if mediaType, ok := mediaExtensions[extensionOf(abs)]; ok {
			add(abs, mediaType, "", strings.TrimSpace(sel.Text()))
			return
		}
		if !linkSeen[abs] {
			linkSeen[abs] = true
			result.Links = append(result.Links, abs)
		}
	})

	return result
}

// bestImageSource picks the highest-resolution source an img tag
// offers: largest srcset candidate, then src, then lazy-load attrs.
func bestImageSource(sel *goquery.Selection) string {
	if srcset, ok := sel.Attr("srcset"); ok {
		if best := largestSrcsetCandidate(srcset); best != "" {
			return best
		}
	}
	if src, ok := sel.Attr("src"); ok && strings.TrimSpace(src) != "" {
		return src
	}
	for _, attr := range []string{"data-src", "data-lazy-src", "data-original"} {
		if src, ok := sel.Attr(attr); ok && strings.TrimSpace(src) != "" {
			return src
		}
	}
	return ""
}

// largestSrcsetCandidate parses a srcset value and returns the URL
// with the greatest width (or pixel-density) descriptor.
func largestSrcsetCandidate(srcset string) string {
	var bestURL string
	var bestScore float64 = -1

	for _, candidate := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(candidate))
		if len(fields) == 0 {
			continue
		}
		url := fields[0]
		score := 1.0 // bare candidate counts as 1x
		if len(fields) > 1 {
			desc := fields[1]
			switch {
			case strings.HasSuffix(desc, "w"):
				if w, err := strconv.ParseFloat(strings.TrimSuffix(desc, "w"), 64); err == nil {
					score = w
				}
			case strings.HasSuffix(desc, "x"):
				if d, err := strconv.ParseFloat(strings.TrimSuffix(desc, "x"), 64); err == nil {
					score = d
				}
			}
		}
		if score > bestScore {
			bestScore = score
			bestURL = url
		}
	}
	return bestURL
}

// extensionOf returns the lowercased extension of a URL path, without
// query string noise.
func extensionOf(rawURL string) string {
	path := rawURL
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		path = path[i+1:]
	}
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return strings.ToLower(path[i:])
	}
	return ""
}
