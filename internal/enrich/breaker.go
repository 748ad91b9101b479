package enrich

import (
	"sync"
	"time"
)

// ProviderBreaker decides whether a worker should call the primary or
// fallback LLM provider, per spec.md §4.3: switch to fallback on three
// consecutive transient/timeout failures within 60s of the primary,
// switch back after 60s of sustained primary success. Adapted from the
// teacher's threshold/resetTimeout circuit breaker, but keyed on the
// primary-vs-fallback pair rather than a single open/closed service.
type ProviderBreaker struct {
	mu sync.Mutex

	activePrimary bool

	consecutiveFailures int
	windowStart         time.Time

	primarySuccessSince time.Time
	probeInterval       time.Duration
	lastProbe           time.Time

	now func() time.Time
}

const (
	breakerFailureWindow  = 60 * time.Second
	breakerFailureLimit   = 3
	breakerRecoverWindow  = 60 * time.Second
	breakerDefaultProbeIv = 5 * time.Second
)

// NewProviderBreaker constructs a breaker that starts on the primary
// provider.
func NewProviderBreaker() *ProviderBreaker {
	return &ProviderBreaker{
		activePrimary: true,
		probeInterval: breakerDefaultProbeIv,
		now:           time.Now,
	}
}

// ActivePrimary reports whether the primary provider is currently the
// active choice.
func (b *ProviderBreaker) ActivePrimary() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activePrimary
}

// ShouldProbePrimary reports whether, while on fallback, enough time has
// passed to try the primary provider again as a recovery probe. Calling
// it marks the probe as taken.
func (b *ProviderBreaker) ShouldProbePrimary() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.activePrimary {
		return false
	}
	now := b.now()
	if b.lastProbe.IsZero() || now.Sub(b.lastProbe) >= b.probeInterval {
		b.lastProbe = now
		return true
	}
	return false
}

// RecordSuccess records a successful call. usedPrimary distinguishes a
// direct primary call (active state) from a fallback-state recovery
// probe.
func (b *ProviderBreaker) RecordSuccess(usedPrimary bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()

	if !usedPrimary {
		return
	}
	if b.activePrimary {
		b.consecutiveFailures = 0
		b.windowStart = time.Time{}
		return
	}

	if b.primarySuccessSince.IsZero() {
		b.primarySuccessSince = now
	}
	if now.Sub(b.primarySuccessSince) >= breakerRecoverWindow {
		b.activePrimary = true
		b.consecutiveFailures = 0
		b.windowStart = time.Time{}
		b.primarySuccessSince = time.Time{}
	}
}

// RecordFailure records a failed call. Only transient and timeout
// failures count toward the fallback threshold; permanent and malformed
// failures are provider-independent and left to the caller's drop path.
func (b *ProviderBreaker) RecordFailure(usedPrimary bool, kind FailureKind) {
	if !usedPrimary || (kind != FailureTransient && kind != FailureTimeout) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()

	if !b.activePrimary {
		b.primarySuccessSince = time.Time{}
		return
	}

	if b.windowStart.IsZero() || now.Sub(b.windowStart) > breakerFailureWindow {
		b.windowStart = now
		b.consecutiveFailures = 1
	} else {
		b.consecutiveFailures++
	}

	if b.consecutiveFailures >= breakerFailureLimit {
		b.activePrimary = false
		b.primarySuccessSince = time.Time{}
	}
}
