// Package ratelimit throttles the harvester's outbound traffic.
//
// Two layers are used together during a run. The DomainLimiter spaces
// page visits per domain with a politeness delay and per-site
// overrides:
//
//	dl := ratelimit.NewDomainLimiter(2*time.Second, map[string]time.Duration{
//		"reddit.com": 3 * time.Second,
//	})
//	dl.Wait(ctx, "www.reddit.com")
//
// A Limiter caps the fetch client's overall request rate. SlidingWindow
// counts requests against a moving interval; TokenBucket (on
// x/time/rate) spreads them evenly while allowing bursts after idle
// stretches:
//
//	sw := ratelimit.NewSlidingWindow(60, time.Minute)
//	sw.Wait() // blocks until a slot frees up
package ratelimit
