package enrich

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/flowmine/engine/internal/store"
)

const (
	lowConfidenceThreshold  = 0.5
	autoConfidenceThreshold = 0.8
)

// Pool is the fixed worker pool consuming a Queue, per spec.md §4.3 and
// §5's "one LLM worker pool (default 2)". Each worker holds at most one
// outstanding provider request at a time, so concurrency is bounded by
// the number of worker goroutines.
type Pool struct {
	queue    *Queue
	cache    *FingerprintCache
	breaker  *ProviderBreaker
	primary  Provider
	fallback Provider
	store    *store.Store
	workers  int
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	dropped int
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithLogger overrides the pool's logger.
func WithLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = l }
}

// NewPool constructs a worker pool. workers and timeout default to 2 and
// 30s respectively when non-positive.
func NewPool(q *Queue, cache *FingerprintCache, breaker *ProviderBreaker, primary, fallback Provider, st *store.Store, workers int, timeout time.Duration, opts ...PoolOption) *Pool {
	if workers <= 0 {
		workers = 2
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	p := &Pool{
		queue:    q,
		cache:    cache,
		breaker:  breaker,
		primary:  primary,
		fallback: fallback,
		store:    st,
		workers:  workers,
		timeout:  timeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts the worker pool and blocks until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.loop(ctx)
		}()
	}
	wg.Wait()
}

func (p *Pool) loop(ctx context.Context) {
	for {
		task, ok := p.queue.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-p.queue.Notify():
				continue
			}
		}
		p.process(ctx, task)
		if ctx.Err() != nil {
			return
		}
	}
}

// process runs the four-step worker contract of spec.md §4.3 for a
// single task. Workers never block the ingest path: every failure path
// ends in a drop, never a requeue.
func (p *Pool) process(ctx context.Context, task Task) {
	if p.cache.Hit(task.Fingerprint) {
		return
	}

	usedPrimary := p.breaker.ActivePrimary() || p.breaker.ShouldProbePrimary()
	provider := p.fallback
	if usedPrimary {
		provider = p.primary
	}
	if provider == nil {
		provider = p.fallback
		usedPrimary = false
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := Request{Text: task.SourceText, Image: task.ImageData}
	result, err := withRetry(callCtx, func(ctx context.Context) (any, FailureKind, error) {
		items, err := provider.Analyze(ctx, req)
		if err != nil {
			var pe *ProviderError
			if errors.As(err, &pe) {
				return nil, pe.Kind, err
			}
			return nil, FailureTransient, err
		}
		return items, FailureTransient, nil
	})

	if err != nil {
		kind := FailureTransient
		var pe *ProviderError
		if errors.As(err, &pe) {
			kind = pe.Kind
		} else if callCtx.Err() != nil {
			kind = FailureTimeout
		}
		p.breaker.RecordFailure(usedPrimary, kind)
		p.recordDrop()
		p.logger.Warn("enrich task dropped", "bucket_id", task.BucketID, "event_id", task.EventID, "kind", kind, "error", err)
		return
	}

	p.breaker.RecordSuccess(usedPrimary)
	p.cache.Put(task.Fingerprint)

	items, _ := result.([]Item)
	for _, item := range items {
		if item.Confidence < lowConfidenceThreshold {
			continue
		}
		if err := p.linkOrReview(ctx, task, item); err != nil {
			p.logger.Error("enrich link failed", "bucket_id", task.BucketID, "event_id", task.EventID, "error", err)
		}
	}
}

func (p *Pool) linkOrReview(ctx context.Context, task Task, item Item) error {
	if item.Confidence >= autoConfidenceThreshold {
		obj, err := p.store.UpsertObject(ctx, item.ObjectType, item.Identifier, nil, false)
		if err != nil {
			return err
		}
		return p.store.LinkEventToObject(ctx, task.BucketID, task.EventID, obj.ID, store.LinkLLM, item.Confidence)
	}
	_, err := p.store.EnqueueReviewTask(ctx, store.ReviewTask{
		BucketID:      task.BucketID,
		EventID:       task.EventID,
		ObjectType:    item.ObjectType,
		Identifier:    item.Identifier,
		IdentifierKey: item.IdentifierKey,
		Confidence:    item.Confidence,
		Reasoning:     "llm proposal below auto-link threshold",
		RiskLevel:     riskLevel(item.Confidence),
	})
	return err
}

func riskLevel(confidence float64) string {
	switch {
	case confidence < 0.6:
		return "high"
	case confidence < autoConfidenceThreshold:
		return "medium"
	default:
		return "low"
	}
}

func (p *Pool) recordDrop() {
	p.mu.Lock()
	p.dropped++
	p.mu.Unlock()
}

// Dropped returns the cumulative count of tasks dropped after exhausting
// retries or hitting a permanent/malformed failure.
func (p *Pool) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Fingerprint derives a stable content fingerprint for cache lookups
// from the task's source text and image bytes.
func Fingerprint(text string, image []byte) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write(image)
	return hex.EncodeToString(h.Sum(nil))
}
