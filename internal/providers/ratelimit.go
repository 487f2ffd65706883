package providers

import (
	"context"
	"math"
	"sync"
	"time"
)

// RateLimiter is a token bucket refilled at a fixed rate per second. The
// bucket holds at most one second of tokens (at least one).
type RateLimiter struct {
	mu sync.Mutex

	rps   float64
	burst float64

	tokens     float64
	lastUpdate time.Time
	// pausedUntil is set after a 429 carrying Retry-After.
	pausedUntil time.Time

	totalConsumed int64
	totalWaited   time.Duration
	last429Time   time.Time
}

// RateLimiterStatus reports current limiter state.
type RateLimiterStatus struct {
	RPS             float64       `json:"rps"`
	TokensAvailable int           `json:"tokens_available"`
	TimeUntilToken  time.Duration `json:"time_until_token"`
	TotalConsumed   int64         `json:"total_consumed"`
	TotalWaited     time.Duration `json:"total_waited"`
	Last429Time     time.Time     `json:"last_429_time,omitempty"`
}

// NewRateLimiter creates a limiter allowing rps requests per second.
func NewRateLimiter(rps float64) *RateLimiter {
	if rps <= 0 {
		rps = 2.0
	}
	burst := math.Max(1, rps)
	return &RateLimiter{
		rps:        rps,
		burst:      burst,
		tokens:     burst,
		lastUpdate: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		wait := r.reserve()
		r.mu.Unlock()
		if wait == 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			r.mu.Lock()
			r.totalWaited += wait
			r.mu.Unlock()
		}
	}
}

// TryConsume takes a token without blocking.
func (r *RateLimiter) TryConsume() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reserve() == 0
}

// Record429 drains the bucket and, when retryAfter is known, pauses the
// limiter for that long.
func (r *RateLimiter) Record429(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.last429Time = now
	r.tokens = 0
	r.lastUpdate = now
	if retryAfter > 0 {
		r.pausedUntil = now.Add(retryAfter)
	}
}

// Status returns current limiter status.
func (r *RateLimiter) Status() RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.refill(now)
	return RateLimiterStatus{
		RPS:             r.rps,
		TokensAvailable: int(r.tokens),
		TimeUntilToken:  r.timeUntilToken(now),
		TotalConsumed:   r.totalConsumed,
		TotalWaited:     r.totalWaited,
		Last429Time:     r.last429Time,
	}
}

// reserve consumes a token and returns 0, or returns how long to wait.
// Must be called with lock held.
func (r *RateLimiter) reserve() time.Duration {
	now := time.Now()
	r.refill(now)
	if d := r.timeUntilToken(now); d > 0 {
		return d
	}
	r.tokens--
	r.totalConsumed++
	return 0
}

// Must be called with lock held.
func (r *RateLimiter) refill(now time.Time) {
	if now.Before(r.pausedUntil) {
		r.lastUpdate = now
		return
	}
	from := r.lastUpdate
	if from.Before(r.pausedUntil) {
		from = r.pausedUntil
	}
	if elapsed := now.Sub(from).Seconds(); elapsed > 0 {
		r.tokens = math.Min(r.burst, r.tokens+elapsed*r.rps)
	}
	r.lastUpdate = now
}

// Must be called with lock held.
func (r *RateLimiter) timeUntilToken(now time.Time) time.Duration {
	if now.Before(r.pausedUntil) {
		return r.pausedUntil.Sub(now)
	}
	if r.tokens >= 1.0 {
		return 0
	}
	d := time.Duration((1.0 - r.tokens) / r.rps * float64(time.Second))
	if d <= 0 {
		d = time.Millisecond
	}
	return d
}
