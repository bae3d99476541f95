package auth

import (
	"sync"
	"time"
)

// AttemptTracker enforces a per-domain login attempt budget with a
// cooldown after the budget is exhausted. It prevents a flaky login
// form from locking an account through repeated failed attempts.
type AttemptTracker struct {
	maxAttempts int
	cooldown    time.Duration
	mu          sync.Mutex
	attempts    map[string]int
	exhaustedAt map[string]time.Time

	now func() time.Time // injectable for tests
}

// NewAttemptTracker creates a tracker allowing maxAttempts failed logins
// per domain before the cooldown applies.
func NewAttemptTracker(maxAttempts int, cooldown time.Duration) *AttemptTracker {
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	return &AttemptTracker{
		maxAttempts: maxAttempts,
		cooldown:    cooldown,
		attempts:    make(map[string]int),
		exhaustedAt: make(map[string]time.Time),
		now:         time.Now,
	}
}

// CanAttempt reports whether a login attempt is currently allowed for
// the domain. Once the budget is spent, attempts stay blocked until the
// cooldown elapses, after which the budget resets.
func (t *AttemptTracker) CanAttempt(domain string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if exhausted, ok := t.exhaustedAt[domain]; ok {
		if t.now().Sub(exhausted) < t.cooldown {
			return false
		}
		// Cooldown served, reset the budget
		delete(t.exhaustedAt, domain)
		t.attempts[domain] = 0
	}

	return t.attempts[domain] < t.maxAttempts
}

// RecordFailure registers a failed login attempt for the domain.
func (t *AttemptTracker) RecordFailure(domain string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.attempts[domain]++
	if t.attempts[domain] >= t.maxAttempts {
		t.exhaustedAt[domain] = t.now()
	}
}

// RecordSuccess clears the failure history for the domain.
func (t *AttemptTracker) RecordSuccess(domain string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.attempts, domain)
	delete(t.exhaustedAt, domain)
}

// Remaining returns how many attempts are left for the domain.
func (t *AttemptTracker) Remaining(domain string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	remaining := t.maxAttempts - t.attempts[domain]
	if remaining < 0 {
		return 0
	}
	return remaining
}
