// ABOUTME: Tests for retry backoff calculation and context-aware sleep
// ABOUTME: Verifies exponential growth, the ceiling, and jitter bounds

package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_ExponentialGrowth(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		JitterFraction: 0,
	}.normalize()

	assert.Equal(t, 100*time.Millisecond, cfg.backoff(0))
	assert.Equal(t, 200*time.Millisecond, cfg.backoff(1))
	assert.Equal(t, 400*time.Millisecond, cfg.backoff(2))
	assert.Equal(t, 800*time.Millisecond, cfg.backoff(3))
}

func TestBackoff_RespectsCeiling(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:    10,
		InitialBackoff: time.Second,
		MaxBackoff:     4 * time.Second,
		JitterFraction: 0,
	}.normalize()

	assert.Equal(t, 4*time.Second, cfg.backoff(5))
	assert.Equal(t, 4*time.Second, cfg.backoff(20))
}

func TestBackoff_JitterStaysInBounds(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     time.Minute,
		JitterFraction: 0.5,
	}.normalize()

	for i := 0; i < 100; i++ {
		d := cfg.backoff(1) // base 2s, jitter within 1s..3s
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 3*time.Second)
	}
}

func TestNormalize_FillsDefaults(t *testing.T) {
	cfg := RetryConfig{}.normalize()
	def := DefaultRetryConfig()

	assert.Equal(t, def.MaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, def.InitialBackoff, cfg.InitialBackoff)
	assert.Equal(t, def.MaxBackoff, cfg.MaxBackoff)
}

func TestSleep_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sleep(ctx, time.Minute)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSleep_ShortDurationCompletes(t *testing.T) {
	require.NoError(t, sleep(context.Background(), time.Millisecond))
}
