package retry

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy computes the delay before retry number attempt
// (1-based). Implementations must be safe to share across loops.
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff grows the delay by Multiplier per attempt, capped
// at MaxDelay, with optional jitter.
type ExponentialBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0 disables jitter, 1 allows +/-100%
}

// DefaultExponentialBackoff starts at one second and doubles, capped
// at a minute.
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := float64(b.BaseDelay) * math.Pow(b.Multiplier, float64(attempt-1))
	return clampAndJitter(d, b.MaxDelay, b.JitterFactor)
}

// LinearBackoff adds Increment per attempt on top of BaseDelay.
type LinearBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Increment    time.Duration
	JitterFactor float64
}

func (b *LinearBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := float64(b.BaseDelay + b.Increment*time.Duration(attempt-1))
	return clampAndJitter(d, b.MaxDelay, b.JitterFactor)
}

// ConstantBackoff waits the same delay before every retry.
type ConstantBackoff struct {
	Delay time.Duration
}

func (b *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return b.Delay
}

func clampAndJitter(delay float64, max time.Duration, jitterFactor float64) time.Duration {
	if max > 0 && delay > float64(max) {
		delay = float64(max)
	}
	if jitterFactor > 0 {
		spread := delay * jitterFactor
		delay += (rand.Float64()*2 - 1) * spread
	}
	if delay < 0 {
		return 0
	}
	return time.Duration(delay)
}
