// Package fetch is the non-browser HTTP path: JSON API calls, fallback
// HTML fetching, and raw media downloads.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	errs "mediaharvest/pkg/errors"
	"mediaharvest/pkg/logger"
	"mediaharvest/pkg/ratelimit"
	"mediaharvest/pkg/retry"
)

// Client wraps http.Client with browser-like headers, typed errors and
// optional rate limiting. Safe for concurrent use once configured.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	limiter    ratelimit.Limiter
	logger     logger.Logger
}

// NewClient builds a client. An empty userAgent keeps the default; a
// nil log falls back to the global logger.
func NewClient(timeout time.Duration, userAgent string, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	headers := map[string]string{
		"User-Agent":      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
		"Cache-Control":   "no-cache",
		"Pragma":          "no-cache",
		"Sec-Fetch-Dest":  "document",
		"Sec-Fetch-Mode":  "navigate",
		"Sec-Fetch-Site":  "none",
		"Sec-Fetch-User":  "?1",
	}
	if userAgent != "" {
		headers["User-Agent"] = userAgent
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		headers:    headers,
		logger:     log,
	}
}

// SetHeader sets a custom header for every subsequent request.
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetHeaders sets multiple headers at once.
func (c *Client) SetHeaders(headers map[string]string) {
	for key, value := range headers {
		c.headers[key] = value
	}
}

// SetLimiter installs a rate limiter consulted before every request.
func (c *Client) SetLimiter(l ratelimit.Limiter) {
	c.limiter = l
}

// do performs one request with the configured headers.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}

	if c.limiter != nil {
		c.limiter.Wait()
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Newf(errs.ErrorTypeNetwork, "network error: %v", err)
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})
	return resp, nil
}

// doWithRetry retries transient failures with linear backoff, giving
// up early on context cancellation. Non-retryable statuses (404, auth
// errors) pass the response through for checkResponseStatus to map.
func (c *Client) doWithRetry(ctx context.Context, req *http.Request, maxRetries int) (*http.Response, error) {
	cfg := &retry.Config{
		MaxAttempts: maxRetries + 1,
		Backoff: &retry.LinearBackoff{
			BaseDelay: time.Second,
			MaxDelay:  10 * time.Second,
			Increment: time.Second,
		},
		RetryIf: retry.DefaultRetryIf,
		Context: ctx,
		Logger:  c.logger,
	}

	return retry.DoWithResult(func() (*http.Response, error) {
		resp, err := c.do(req.Clone(ctx))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 400 && errs.IsRetryableStatusCode(resp.StatusCode) {
			resp.Body.Close()
			return nil, &errs.Error{
				Type:    errs.ErrorTypeServerError,
				Message: fmt.Sprintf("server returned status %d", resp.StatusCode),
				Code:    resp.StatusCode,
			}
		}
		return resp, nil
	}, cfg)
}

// Get performs a GET request. The caller closes the body.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeUnknown, "failed to create request: %v", err)
	}
	return c.doWithRetry(ctx, req, 2)
}

// GetJSON performs a GET request and decodes the JSON response into target.
func (c *Client) GetJSON(ctx context.Context, url string, target interface{}) error {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("failed to read response body: %v", err),
			Code:    resp.StatusCode,
		}
	}

	if err := json.Unmarshal(body, target); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          url,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return &errs.Error{
			Type:    errs.ErrorTypeParsing,
			Message: fmt.Sprintf("failed to parse JSON: %v", err),
			Code:    resp.StatusCode,
		}
	}
	return nil
}

// GetDocument fetches a page and parses it with goquery. This is the
// fallback extraction path when no browser session is available.
func (c *Client) GetDocument(ctx context.Context, url string) (*goquery.Document, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &errs.Error{
			Type:    errs.ErrorTypeParsing,
			Message: fmt.Sprintf("failed to parse HTML: %v", err),
			Code:    resp.StatusCode,
		}
	}
	return doc, nil
}

// Download fetches a media asset, sending the page it was found on as
// the Referer. Returns the raw bytes and the response Content-Type.
func (c *Client) Download(ctx context.Context, mediaURL, referer string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", errs.Newf(errs.ErrorTypeUnknown, "failed to create request: %v", err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Sec-Fetch-Dest", "image")
	req.Header.Set("Sec-Fetch-Mode", "no-cors")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := c.doWithRetry(ctx, req, 2)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return nil, "", err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", errs.Newf(errs.ErrorTypeNetwork, "failed to read media data: %v", err)
	}

	c.logger.DebugWithFields("downloaded media", map[string]interface{}{
		"url":  mediaURL,
		"size": len(data),
	})
	return data, resp.Header.Get("Content-Type"), nil
}

// checkResponseStatus maps HTTP status codes to typed errors.
func (c *Client) checkResponseStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.logger.WarnWithFields("authentication error", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    resp.Request.URL.String(),
		})
		return &errs.Error{Type: errs.ErrorTypeAuth, Message: "authentication required", Code: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		return &errs.Error{Type: errs.ErrorTypeNotFound, Message: "resource not found", Code: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.WarnWithFields("rate limit exceeded", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    resp.Request.URL.String(),
		})
		return &errs.Error{Type: errs.ErrorTypeRateLimit, Message: "rate limit exceeded", Code: resp.StatusCode}
	case resp.StatusCode >= 500:
		return &errs.Error{Type: errs.ErrorTypeServerError, Message: "server error", Code: resp.StatusCode}
	case resp.StatusCode >= 400:
		return &errs.Error{
			Type:    errs.ErrorTypeUnknown,
			Message: fmt.Sprintf("unexpected status code: %d", resp.StatusCode),
			Code:    resp.StatusCode,
		}
	default:
		return nil
	}
}
