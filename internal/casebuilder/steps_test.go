package casebuilder

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowmine/engine/internal/store"
)

func evWithData(id int64, ts string, dur float64, data map[string]any) store.Event {
	return store.Event{BucketID: "b1", ID: id, Timestamp: ts, Duration: dur, Data: data}
}

func TestSynthesizeStepsCollapsesConsecutiveSameApp(t *testing.T) {
	c := Case{Events: []store.Event{
		evWithData(1, "2026-01-01T09:00:00Z", 10, map[string]any{"app": "chrome"}),
		evWithData(2, "2026-01-01T09:00:10Z", 20, map[string]any{"app": "chrome"}),
		evWithData(3, "2026-01-01T09:00:30Z", 5, map[string]any{"app": "slack"}),
	}}
	steps, err := SynthesizeSteps(c, func(store.Event) []store.UUID { return nil })
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, "chrome", steps[0].Label)
	require.InDelta(t, 30.0, steps[0].Duration, 1e-9)
	require.Len(t, steps[0].Events, 2)
	require.Equal(t, "slack", steps[1].Label)
}

func TestActivityLabelPrefersAppThenURLThenTitle(t *testing.T) {
	require.Equal(t, "chrome", ActivityLabel(evWithData(1, "t", 0, map[string]any{"app": "chrome", "url": "https://x.com", "title": "x"})))
	require.Equal(t, "example.com", ActivityLabel(evWithData(1, "t", 0, map[string]any{"url": "https://example.com/path", "title": "x"})))
	require.Equal(t, "Review document", ActivityLabel(evWithData(1, "t", 0, map[string]any{"title": "Review document"})))
	require.Equal(t, "unknown", ActivityLabel(evWithData(1, "t", 0, nil)))
}

func TestActivityLabelTruncatesLongTitle(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "a"
	}
	got := ActivityLabel(evWithData(1, "t", 0, map[string]any{"title": long}))
	require.Len(t, got, 64)
}

func TestSynthesizeStepsUnionsObjectIDs(t *testing.T) {
	id1, id2 := store.NewUUID(), store.NewUUID()
	c := Case{Events: []store.Event{
		evWithData(1, "2026-01-01T09:00:00Z", 5, map[string]any{"app": "chrome"}),
		evWithData(2, "2026-01-01T09:00:05Z", 5, map[string]any{"app": "chrome"}),
	}}
	objectsOf := func(e store.Event) []store.UUID {
		if e.ID == 1 {
			return []store.UUID{id1}
		}
		return []store.UUID{id2}
	}
	steps, err := SynthesizeSteps(c, objectsOf)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	require.ElementsMatch(t, []store.UUID{id1, id2}, steps[0].ObjectIDs)
}
