package enrich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBreakerSwitchesToFallbackAfterThreeFailuresWithinWindow(t *testing.T) {
	b := NewProviderBreaker()
	now := time.Now()
	b.now = func() time.Time { return now }

	require.True(t, b.ActivePrimary())
	b.RecordFailure(true, FailureTransient)
	require.True(t, b.ActivePrimary())
	now = now.Add(10 * time.Second)
	b.RecordFailure(true, FailureTimeout)
	require.True(t, b.ActivePrimary())
	now = now.Add(10 * time.Second)
	b.RecordFailure(true, FailureTransient)
	require.False(t, b.ActivePrimary())
}

func TestBreakerResetsWindowAfterSixtySeconds(t *testing.T) {
	b := NewProviderBreaker()
	now := time.Now()
	b.now = func() time.Time { return now }

	b.RecordFailure(true, FailureTransient)
	b.RecordFailure(true, FailureTransient)
	now = now.Add(61 * time.Second)
	b.RecordFailure(true, FailureTransient)
	require.True(t, b.ActivePrimary(), "failure window should have reset")
}

func TestBreakerSwitchesBackAfterSixtySecondsOfPrimarySuccess(t *testing.T) {
	b := NewProviderBreaker()
	now := time.Now()
	b.now = func() time.Time { return now }
	b.probeInterval = 0

	b.RecordFailure(true, FailureTransient)
	b.RecordFailure(true, FailureTransient)
	b.RecordFailure(true, FailureTransient)
	require.False(t, b.ActivePrimary())

	require.True(t, b.ShouldProbePrimary())
	b.RecordSuccess(true)
	require.False(t, b.ActivePrimary(), "one probe success is not enough")

	now = now.Add(61 * time.Second)
	require.True(t, b.ShouldProbePrimary())
	b.RecordSuccess(true)
	require.True(t, b.ActivePrimary())
}

func TestBreakerFallbackSuccessDoesNotAffectPrimaryState(t *testing.T) {
	b := NewProviderBreaker()
	b.RecordSuccess(false)
	require.True(t, b.ActivePrimary())
}
