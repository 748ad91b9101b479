package enrich

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/flowmine/engine/dbopen"
	"github.com/flowmine/engine/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	st, err := store.OpenMemoryForTest(db)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

type fakeProvider struct {
	items []Item
	err   error
	calls int
}

func (f *fakeProvider) Analyze(ctx context.Context, req Request) ([]Item, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func TestProcessLinksHighConfidenceImmediately(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	err := st.CreateObjectType(ctx, store.ObjectType{Name: "invoice", DisplayName: "Invoice"})
	require.NoError(t, err)
	ev := store.Event{BucketID: "b1", ID: 1, Timestamp: "2026-01-01T00:00:00Z", Data: map[string]any{"title": "inv"}}
	require.NoError(t, st.IngestEvent(ctx, ev))

	primary := &fakeProvider{items: []Item{{ObjectType: "invoice", Identifier: "INV-9", IdentifierKey: "inv-9", Confidence: 0.9}}}
	pool := NewPool(NewQueue(4), NewFingerprintCache(4, time.Hour), NewProviderBreaker(), primary, nil, st, 1, time.Second)

	pool.process(ctx, Task{BucketID: "b1", EventID: 1, Fingerprint: "fp1", SourceText: "inv"})

	require.Equal(t, 1, primary.calls)
	links, err := st.ObjectsForEvent(ctx, "b1", 1)
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, store.LinkLLM, links[0].Provenance)
}

func TestProcessQueuesReviewTaskBelowAutoThreshold(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	ev := store.Event{BucketID: "b1", ID: 2, Timestamp: "2026-01-01T00:00:01Z", Data: map[string]any{"title": "inv"}}
	require.NoError(t, st.IngestEvent(ctx, ev))

	primary := &fakeProvider{items: []Item{{ObjectType: "invoice", Identifier: "INV-low", IdentifierKey: "inv-low", Confidence: 0.6}}}
	pool := NewPool(NewQueue(4), NewFingerprintCache(4, time.Hour), NewProviderBreaker(), primary, nil, st, 1, time.Second)

	pool.process(ctx, Task{BucketID: "b1", EventID: 2, Fingerprint: "fp2", SourceText: "inv"})

	tasks, err := st.ListPendingReviewTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "INV-low", tasks[0].Identifier)
}

func TestProcessSkipsCachedFingerprint(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	primary := &fakeProvider{items: []Item{{ObjectType: "invoice", Identifier: "X", Confidence: 0.9}}}
	cache := NewFingerprintCache(4, time.Hour)
	cache.Put("seen")
	pool := NewPool(NewQueue(4), cache, NewProviderBreaker(), primary, nil, st, 1, time.Second)

	pool.process(ctx, Task{BucketID: "b1", EventID: 3, Fingerprint: "seen", SourceText: "inv"})

	require.Equal(t, 0, primary.calls)
}

func TestProcessDropsOnPermanentFailure(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	primary := &fakeProvider{err: &ProviderError{Kind: FailurePermanent, Err: context.DeadlineExceeded}}
	pool := NewPool(NewQueue(4), NewFingerprintCache(4, time.Hour), NewProviderBreaker(), primary, nil, st, 1, time.Second)

	pool.process(ctx, Task{BucketID: "b1", EventID: 4, Fingerprint: "fp4", SourceText: "inv"})

	require.Equal(t, 1, primary.calls)
	require.Equal(t, 1, pool.Dropped())
}
