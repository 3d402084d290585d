package reliability

import (
	"errors"
	"math/rand"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextDelay_ExponentialBackoffCappedAtMax(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 1 * time.Second, JitterPct: 0}
	rng := rand.New(rand.NewSource(1))

	assert.Equal(t, 100*time.Millisecond, NextDelay(cfg, 1, 0, rng))
	assert.Equal(t, 200*time.Millisecond, NextDelay(cfg, 2, 0, rng))
	assert.Equal(t, 400*time.Millisecond, NextDelay(cfg, 3, 0, rng))
	assert.Equal(t, 800*time.Millisecond, NextDelay(cfg, 4, 0, rng))
	assert.Equal(t, 1*time.Second, NextDelay(cfg, 5, 0, rng)) // would be 1.6s, capped
}

func TestNextDelay_RetryAfterOverridesBackoff(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 1 * time.Second, JitterPct: 0.2}
	rng := rand.New(rand.NewSource(1))

	assert.Equal(t, 7*time.Second, NextDelay(cfg, 1, 7*time.Second, rng))
}

func TestNextDelay_JitterStaysWithinRange(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: 1 * time.Second, MaxDelay: 10 * time.Second, JitterPct: 0.2}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 50; i++ {
		d := NextDelay(cfg, 1, 0, rng)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(http.StatusRequestTimeout, nil))
	assert.True(t, IsTransient(http.StatusTooManyRequests, nil))
	assert.True(t, IsTransient(http.StatusInternalServerError, nil))
	assert.True(t, IsTransient(http.StatusBadGateway, nil))
	assert.False(t, IsTransient(http.StatusBadRequest, nil))
	assert.False(t, IsTransient(http.StatusNotFound, nil))
	assert.False(t, IsTransient(0, nil))
	assert.True(t, IsTransient(0, errors.New("dial tcp: connection refused")))
}
