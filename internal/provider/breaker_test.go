package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(3, 30*time.Second)
	now := time.Now()

	require.True(t, b.Allow(now))
	b.RecordFailure(now)
	b.RecordFailure(now)
	require.Equal(t, StateClosed, b.State())
	b.RecordFailure(now)
	require.Equal(t, StateOpen, b.State())
	require.False(t, b.Allow(now))
}

func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	b := NewBreaker(1, 30*time.Second)
	start := time.Now()

	b.RecordFailure(start)
	require.Equal(t, StateOpen, b.State())
	require.False(t, b.Allow(start.Add(10*time.Second)))

	later := start.Add(31 * time.Second)
	require.True(t, b.Allow(later))
	require.Equal(t, StateHalfOpen, b.State())

	// A second Allow call while the trial is in flight must not admit
	// another concurrent probe.
	require.False(t, b.Allow(later))
}

func TestBreakerRecoversOnSuccess(t *testing.T) {
	b := NewBreaker(1, 30*time.Second)
	start := time.Now()

	b.RecordFailure(start)
	later := start.Add(31 * time.Second)
	require.True(t, b.Allow(later))

	b.RecordSuccess()
	require.Equal(t, StateClosed, b.State())
	require.True(t, b.Allow(later))
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(1, 30*time.Second)
	start := time.Now()

	b.RecordFailure(start)
	later := start.Add(31 * time.Second)
	require.True(t, b.Allow(later))

	b.RecordFailure(later)
	require.Equal(t, StateOpen, b.State())
}
