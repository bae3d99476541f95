package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DomainLimiter enforces a politeness delay between page requests to
// the same domain. Each domain gets its own limiter so a slow site
// never stalls the crawl of another.
type DomainLimiter struct {
	defaultDelay time.Duration
	overrides    map[string]time.Duration
	limiters     map[string]*rate.Limiter
	mu           sync.Mutex
}

// NewDomainLimiter creates a limiter with a default delay and optional
// per-domain overrides. Override keys match the domain and any of its
// subdomains.
func NewDomainLimiter(defaultDelay time.Duration, overrides map[string]time.Duration) *DomainLimiter {
	if defaultDelay <= 0 {
		defaultDelay = 2 * time.Second
	}
	return &DomainLimiter{
		defaultDelay: defaultDelay,
		overrides:    overrides,
		limiters:     make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the domain's politeness delay allows another
// request, or the context is cancelled.
func (dl *DomainLimiter) Wait(ctx context.Context, domain string) error {
	return dl.limiterFor(domain).Wait(ctx)
}

// Delay returns the configured delay for a domain.
func (dl *DomainLimiter) Delay(domain string) time.Duration {
	domain = canonicalDomain(domain)
	for suffix, delay := range dl.overrides {
		if domain == suffix || strings.HasSuffix(domain, "."+suffix) {
			return delay
		}
	}
	return dl.defaultDelay
}

func (dl *DomainLimiter) limiterFor(domain string) *rate.Limiter {
	key := canonicalDomain(domain)

	dl.mu.Lock()
	defer dl.mu.Unlock()

	if lim, ok := dl.limiters[key]; ok {
		return lim
	}

	// Burst of 1: the first request goes through immediately, every
	// subsequent one waits out the full delay.
	lim := rate.NewLimiter(rate.Every(dl.Delay(key)), 1)
	dl.limiters[key] = lim
	return lim
}

func canonicalDomain(domain string) string {
	return strings.ToLower(strings.TrimPrefix(domain, "www."))
}
