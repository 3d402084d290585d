// Package reliability wraps the transmitter with retry scheduling, disk
// fallback spill/replay, atomic metrics, and health aggregation.
package reliability

import (
	"math/rand"
	"net"
	"net/http"
	"time"
)

// RetryConfig tunes the exponential backoff schedule.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	JitterPct   float64 // fraction, e.g. 0.2 for ±20%
}

// DefaultRetryConfig mirrors the ported retry manager's defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		JitterPct:   0.2,
	}
}

// NextDelay computes the delay before the given attempt (1-indexed),
// applying exponential backoff capped at MaxDelay and ± jitter. A non-zero
// retryAfter (from an HTTP 429's Retry-After header) overrides the
// computed delay entirely.
func NextDelay(cfg RetryConfig, attempt int, retryAfter time.Duration, rng *rand.Rand) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}

	backoff := cfg.BaseDelay << uint(attempt-1)
	if backoff > cfg.MaxDelay || backoff <= 0 {
		backoff = cfg.MaxDelay
	}

	if cfg.JitterPct <= 0 {
		return backoff
	}

	jitterRange := float64(backoff) * cfg.JitterPct
	offset := (rng.Float64()*2 - 1) * jitterRange
	delay := float64(backoff) + offset
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// IsTransient reports whether a failure is eligible for retry: network
// errors, timeouts, and 5xx responses. 4xx other than 408/429 is not
// retried. A non-nil err with statusCode 0 means no HTTP response was
// received (a network or timeout failure), which is always transient;
// statusCode 0 with a nil err is not transient.
func IsTransient(statusCode int, err error) bool {
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return true
		}
		return statusCode == 0
	}
	if statusCode == 0 {
		return false
	}
	if statusCode == http.StatusRequestTimeout || statusCode == http.StatusTooManyRequests {
		return true
	}
	if statusCode >= 500 {
		return true
	}
	return false
}
