package scraper

import (
	"context"

	errs "mediaharvest/pkg/errors"
	"mediaharvest/pkg/handlers"
	"mediaharvest/pkg/logger"
)

// isExtractionError reports whether err is a recoverable handler
// failure that warrants retrying the page with the generic handler.
func isExtractionError(err error) bool {
	typed, ok := err.(*errs.Error)
	return ok && typed.Type == errs.ErrorTypeExtraction
}

// apiExtractor drives a handler's API path. When the handler cannot
// serve a page through its API and does not require it, the page is
// retried through the fallback handler's fetcher path.
type apiExtractor struct {
	handler  handlers.Handler
	fallback handlers.Handler
	client   handlers.Fetcher
	opts     handlers.Options
}

func (e *apiExtractor) ExtractPage(ctx context.Context, pageURL string) (*handlers.Result, error) {
	res, err := e.handler.ExtractAPIData(ctx, e.client, pageURL, e.opts)
	if err != nil && isExtractionError(err) && !e.handler.RequiresAPI() && e.fallback != nil {
		logger.GetLogger().WarnWithFields("API extraction failed, using generic fallback", map[string]interface{}{
			"handler": e.handler.Name(),
			"url":     pageURL,
		})
		return e.fallback.ExtractWithFetcher(ctx, e.client, pageURL, e.opts)
	}
	return res, err
}

// browserExtractor drives a handler through the shared browser
// session. after runs once per successfully extracted page, for
// screenshot capture.
type browserExtractor struct {
	handler  handlers.Handler
	fallback handlers.Handler
	page     handlers.PageRenderer
	opts     handlers.Options
	after    func(ctx context.Context)
}

func (e *browserExtractor) ExtractPage(ctx context.Context, pageURL string) (*handlers.Result, error) {
	res, err := e.handler.ExtractWithBrowser(ctx, e.page, pageURL, e.opts)
	if err != nil && isExtractionError(err) && e.fallback != nil {
		logger.GetLogger().WarnWithFields("handler extraction failed, using generic fallback", map[string]interface{}{
			"handler": e.handler.Name(),
			"url":     pageURL,
		})
		res, err = e.fallback.ExtractWithBrowser(ctx, e.page, pageURL, e.opts)
	}
	if err == nil && e.after != nil {
		e.after(ctx)
	}
	return res, err
}

// fetcherExtractor drives a handler without a browser, over plain HTTP.
type fetcherExtractor struct {
	handler  handlers.Handler
	fallback handlers.Handler
	client   handlers.Fetcher
	opts     handlers.Options
}

func (e *fetcherExtractor) ExtractPage(ctx context.Context, pageURL string) (*handlers.Result, error) {
	res, err := e.handler.ExtractWithFetcher(ctx, e.client, pageURL, e.opts)
	if err != nil && isExtractionError(err) && e.fallback != nil {
		logger.GetLogger().WarnWithFields("handler extraction failed, using generic fallback", map[string]interface{}{
			"handler": e.handler.Name(),
			"url":     pageURL,
		})
		res, err = e.fallback.ExtractWithFetcher(ctx, e.client, pageURL, e.opts)
	}
	return res, err
}
