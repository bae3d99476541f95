package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter throttles outbound requests. Wait blocks until the next
// request may proceed; Allow is the non-blocking variant.
type Limiter interface {
	Allow() bool
	Wait()
	Reset()
}

// TokenBucket spreads capacity requests evenly over refillPeriod,
// backed by x/time/rate. Bursts up to capacity are allowed after idle
// stretches.
type TokenBucket struct {
	capacity     int
	refillPeriod time.Duration

	mu  sync.Mutex
	lim *rate.Limiter
}

// NewTokenBucket allows capacity requests per refillPeriod.
func NewTokenBucket(capacity int, refillPeriod time.Duration) *TokenBucket {
	tb := &TokenBucket{capacity: capacity, refillPeriod: refillPeriod}
	tb.Reset()
	return tb
}

func (tb *TokenBucket) limiter() *rate.Limiter {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lim
}

func (tb *TokenBucket) Allow() bool {
	return tb.limiter().Allow()
}

func (tb *TokenBucket) Wait() {
	// The underlying limiter only errors on cancellation or an
	// infeasible reservation, neither of which applies here.
	_ = tb.limiter().Wait(context.Background())
}

// Reset refills the bucket by replacing the underlying limiter.
func (tb *TokenBucket) Reset() {
	perToken := tb.refillPeriod / time.Duration(tb.capacity)
	tb.mu.Lock()
	tb.lim = rate.NewLimiter(rate.Every(perToken), tb.capacity)
	tb.mu.Unlock()
}

// SlidingWindow admits at most maxRequests within any windowSize
// interval, tracked against actual request timestamps.
type SlidingWindow struct {
	windowSize  time.Duration
	maxRequests int

	mu     sync.Mutex
	stamps []time.Time
}

// NewSlidingWindow allows maxRequests per windowSize.
func NewSlidingWindow(maxRequests int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		windowSize:  windowSize,
		maxRequests: maxRequests,
	}
}

func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if admitted, _ := sw.tryAdmit(time.Now()); admitted {
		return true
	}
	return false
}

func (sw *SlidingWindow) Wait() {
	for {
		sw.mu.Lock()
		admitted, retryIn := sw.tryAdmit(time.Now())
		sw.mu.Unlock()
		if admitted {
			return
		}
		time.Sleep(retryIn)
	}
}

func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	sw.stamps = nil
	sw.mu.Unlock()
}

// tryAdmit records now as a request if the window has room, otherwise
// returns how long until the oldest stamp ages out. Caller holds mu.
func (sw *SlidingWindow) tryAdmit(now time.Time) (bool, time.Duration) {
	cutoff := now.Add(-sw.windowSize)
	trim := 0
	for trim < len(sw.stamps) && sw.stamps[trim].Before(cutoff) {
		trim++
	}
	sw.stamps = sw.stamps[trim:]

	if len(sw.stamps) < sw.maxRequests {
		sw.stamps = append(sw.stamps, now)
		return true, 0
	}

	retryIn := sw.stamps[0].Sub(cutoff)
	if retryIn <= 0 {
		retryIn = time.Millisecond
	}
	return false, retryIn
}
