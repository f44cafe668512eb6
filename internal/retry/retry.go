package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"futuresync/internal/remote"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "futuresync_retries_total",
		Help: "Total number of retry attempts by error type",
	}, []string{"error_type"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "futuresync_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error type",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_type"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "futuresync_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error type",
	}, []string{"error_type"})
)

// Policy wraps an operation with bounded retries and exponential backoff.
// Attempt n waits BackoffFactor^(n-1) seconds before the next attempt.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BackoffFactor is the base of the exponential backoff, in seconds.
	BackoffFactor float64

	// Retryable decides whether an error is worth another attempt.
	// Errors it rejects propagate immediately. Defaults to remote.IsTransient.
	Retryable func(error) bool

	// OnRetry, when set, is invoked once per retry before the backoff wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Do runs op up to MaxAttempts times. The last error is returned unchanged
// once attempts are exhausted; a non-retryable error returns immediately.
// The backoff wait respects ctx cancellation.
func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = remote.IsTransient
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return err
		}
		if attempt >= attempts {
			break
		}

		errType := string(remote.TypeOf(err))
		wait := p.backoff(attempt)
		retriesTotal.WithLabelValues(errType).Inc()
		retryBackoffSeconds.WithLabelValues(errType).Observe(wait.Seconds())
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled on attempt %d: %w", attempt, ctx.Err())
		case <-timer.C:
		}
	}

	retryExhaustedTotal.WithLabelValues(string(remote.TypeOf(lastErr))).Inc()
	return lastErr
}

func (p Policy) backoff(attempt int) time.Duration {
	factor := p.BackoffFactor
	if factor <= 0 {
		factor = 1
	}
	return time.Duration(math.Pow(factor, float64(attempt-1)) * float64(time.Second))
}
