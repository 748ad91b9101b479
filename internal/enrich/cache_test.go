package enrich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFingerprintCacheHitAfterPut(t *testing.T) {
	c := NewFingerprintCache(4, time.Hour)
	require.False(t, c.Hit("a"))
	c.Put("a")
	require.True(t, c.Hit("a"))
}

func TestFingerprintCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewFingerprintCache(2, time.Hour)
	c.Put("a")
	c.Put("b")
	c.Hit("a") // promote a
	c.Put("c") // evicts b, the least recently used

	require.True(t, c.Hit("a"))
	require.False(t, c.Hit("b"))
	require.True(t, c.Hit("c"))
}

func TestFingerprintCacheExpiresAfterTTL(t *testing.T) {
	c := NewFingerprintCache(4, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put("a")
	require.True(t, c.Hit("a"))

	now = now.Add(2 * time.Minute)
	require.False(t, c.Hit("a"))
}
