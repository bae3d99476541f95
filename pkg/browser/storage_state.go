package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	errs "mediaharvest/pkg/errors"
)

// Cookie is the serializable form of a browser cookie.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Expires  int64  `json:"expires,omitempty"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"http_only"`
	SameSite string `json:"same_site,omitempty"`
}

// StorageState is everything needed to restore an authenticated
// session: cookies plus per-origin localStorage.
type StorageState struct {
	Cookies      []Cookie          `json:"cookies"`
	LocalStorage map[string]string `json:"local_storage,omitempty"`
	Origin       string            `json:"origin,omitempty"`
}

// ExportStorageState captures cookies and the current origin's
// localStorage. Call after the page of interest is loaded.
func (s *Session) ExportStorageState(ctx context.Context) (*StorageState, error) {
	state := &StorageState{LocalStorage: make(map[string]string)}

	var cookies []*network.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeExtraction, "failed to export cookies: %v", err)
	}
	for _, c := range cookies {
		state.Cookies = append(state.Cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  int64(c.Expires),
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: string(c.SameSite),
		})
	}

	origin, err := s.CurrentURL(ctx)
	if err == nil {
		state.Origin = origin
	}

	var localJSON string
	if err := s.Evaluate(ctx, `JSON.stringify(Object.assign({}, localStorage))`, &localJSON); err == nil {
		if err := json.Unmarshal([]byte(localJSON), &state.LocalStorage); err != nil {
			s.log.WarnWithFields("failed to decode localStorage", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	return state, nil
}

// ImportStorageState restores cookies, then (when an origin is known)
// navigates there and replays localStorage so client-side auth tokens
// come back too.
func (s *Session) ImportStorageState(ctx context.Context, state *StorageState) error {
	if state == nil {
		return nil
	}

	err := s.run(ctx, network.Enable(), chromedp.ActionFunc(func(ctx context.Context) error {
		failed := 0
		for _, c := range state.Cookies {
			setCookie := network.SetCookie(c.Name, c.Value).
				WithDomain(strings.TrimPrefix(c.Domain, ".")).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly).
				WithExpires(cookieExpiry(c.Expires))
			switch strings.ToLower(c.SameSite) {
			case "strict":
				setCookie = setCookie.WithSameSite(network.CookieSameSiteStrict)
			case "lax":
				setCookie = setCookie.WithSameSite(network.CookieSameSiteLax)
			case "none":
				setCookie = setCookie.WithSameSite(network.CookieSameSiteNone)
			}
			if err := setCookie.Do(ctx); err != nil {
				failed++
				s.log.WarnWithFields("failed to restore cookie", map[string]interface{}{
					"cookie": c.Name,
					"domain": c.Domain,
					"error":  err.Error(),
				})
			}
		}
		if failed > 0 {
			s.log.WarnWithFields("some cookies failed to restore", map[string]interface{}{
				"failed": failed,
				"total":  len(state.Cookies),
			})
		}
		return nil
	}))
	if err != nil {
		return errs.Newf(errs.ErrorTypeAuth, "failed to import cookies: %v", err)
	}

	if len(state.LocalStorage) > 0 && state.Origin != "" {
		if err := s.Navigate(ctx, state.Origin); err != nil {
			return err
		}
		for key, value := range state.LocalStorage {
			script := fmt.Sprintf(`localStorage.setItem(%q, %q)`, key, value)
			if err := s.Evaluate(ctx, script, nil); err != nil {
				s.log.WarnWithFields("failed to restore localStorage key", map[string]interface{}{
					"key":   key,
					"error": err.Error(),
				})
			}
		}
	}

	s.log.DebugWithFields("storage state imported", map[string]interface{}{
		"cookies":       len(state.Cookies),
		"local_storage": len(state.LocalStorage),
	})
	return nil
}

// cookieExpiry converts a stored unix expiry into the CDP form; past
// or zero expiries yield nil (session cookie).
func cookieExpiry(unix int64) *cdp.TimeSinceEpoch {
	if unix <= 0 {
		return nil
	}
	t := time.Unix(unix, 0)
	if !t.After(time.Now()) {
		return nil
	}
	ts := cdp.TimeSinceEpoch(t)
	return &ts
}
