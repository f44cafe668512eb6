package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter admits callers at a sustained rate while tolerating short bursts.
// It keeps the last `burst` admission timestamps: a caller is admitted
// immediately while fewer than `burst` admissions are recorded; once the
// history is full, the caller waits until the oldest admission falls outside
// the rolling window of burst/rate seconds, then evicts it and takes its slot.
//
// The mutex is held across the wait, so concurrent callers are serialized into
// FIFO admission order with correct spacing. State is per-instance: two
// limiters do not share budget even when they target the same vendor account.
type Limiter struct {
	mu      sync.Mutex
	window  time.Duration
	burst   int
	history []time.Time
}

// New creates a Limiter admitting at most `burst` callers in any rolling
// window of burst/rateLimit seconds. rateLimit is in admissions per second.
func New(rateLimit float64, burst int) (*Limiter, error) {
	if rateLimit <= 0 {
		return nil, fmt.Errorf("ratelimit: rate must be positive, got %v", rateLimit)
	}
	if burst < 1 {
		return nil, fmt.Errorf("ratelimit: burst must be at least 1, got %d", burst)
	}
	return &Limiter{
		window:  time.Duration(float64(burst) / rateLimit * float64(time.Second)),
		burst:   burst,
		history: make([]time.Time, 0, burst),
	}, nil
}

// Acquire blocks until admission is safe, then records the admission.
// It never fails under load, only delays; the sole error condition is
// cancellation of ctx while waiting.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if len(l.history) >= l.burst {
		deficit := l.window - time.Since(l.history[0])
		if deficit > 0 {
			timer := time.NewTimer(deficit)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
		l.history = l.history[1:]
	}

	l.history = append(l.history, time.Now())
	return nil
}

// Burst returns the configured burst size.
func (l *Limiter) Burst() int {
	return l.burst
}

// Window returns the rolling window burst/rate.
func (l *Limiter) Window() time.Duration {
	return l.window
}
