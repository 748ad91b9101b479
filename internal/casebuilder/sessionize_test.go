package casebuilder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowmine/engine/internal/store"
)

func ev(id int64, ts string, dur float64) store.Event {
	return store.Event{BucketID: "b1", ID: id, Timestamp: ts, Duration: dur}
}

func TestSessionizeCutsOnGap(t *testing.T) {
	events := []store.Event{
		ev(1, "2026-01-01T09:00:00Z", 10),
		ev(2, "2026-01-01T09:00:20Z", 10),
		ev(3, "2026-01-01T09:10:00Z", 10), // gap > 120s from previous end
	}
	cases, err := Sessionize(events, 120*time.Second, nil, 60*time.Second)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	require.Len(t, cases[0].Events, 2)
	require.Len(t, cases[1].Events, 1)
}

func TestSessionizeKeepsWithinGap(t *testing.T) {
	events := []store.Event{
		ev(1, "2026-01-01T09:00:00Z", 10),
		ev(2, "2026-01-01T09:01:00Z", 10),
	}
	cases, err := Sessionize(events, 120*time.Second, nil, 60*time.Second)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	require.Len(t, cases[0].Events, 2)
}

func TestSessionizeCutsOnLongAFKEvenWithinGap(t *testing.T) {
	events := []store.Event{
		ev(1, "2026-01-01T09:00:00Z", 5),
		ev(2, "2026-01-01T09:01:00Z", 5),
	}
	afk := []AFKInterval{
		{Start: time.Date(2026, 1, 1, 9, 0, 10, 0, time.UTC), End: time.Date(2026, 1, 1, 9, 0, 50, 0, time.UTC)},
	}
	cases, err := Sessionize(events, 120*time.Second, afk, 30*time.Second)
	require.NoError(t, err)
	require.Len(t, cases, 2)
}

func TestSessionizeIgnoresShortAFK(t *testing.T) {
	events := []store.Event{
		ev(1, "2026-01-01T09:00:00Z", 5),
		ev(2, "2026-01-01T09:00:20Z", 5),
	}
	afk := []AFKInterval{
		{Start: time.Date(2026, 1, 1, 9, 0, 6, 0, time.UTC), End: time.Date(2026, 1, 1, 9, 0, 15, 0, time.UTC)},
	}
	cases, err := Sessionize(events, 120*time.Second, afk, 60*time.Second)
	require.NoError(t, err)
	require.Len(t, cases, 1)
}

func TestSessionizeOrdersOverlappingTimestampsByID(t *testing.T) {
	events := []store.Event{
		ev(2, "2026-01-01T09:00:00Z", 0),
		ev(1, "2026-01-01T09:00:00Z", 0),
	}
	cases, err := Sessionize(events, 120*time.Second, nil, 60*time.Second)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	require.Equal(t, int64(1), cases[0].Events[0].ID)
	require.Equal(t, int64(2), cases[0].Events[1].ID)
}

func TestRefineByObjectCoherenceKeepsOriginalWhenNoSharedObjects(t *testing.T) {
	c := Case{Events: []store.Event{ev(1, "2026-01-01T09:00:00Z", 0), ev(2, "2026-01-01T09:00:10Z", 0)}}
	objectsOf := func(e store.Event) []store.UUID { return nil }

	out := RefineByObjectCoherence([]Case{c}, objectsOf)
	require.Len(t, out, 1)
	require.Len(t, out[0].Events, 2)
}

func TestRefineByObjectCoherenceExtractsSharedObjectSubCase(t *testing.T) {
	orderID := store.NewUUID()
	e1, e2, e3 := ev(1, "2026-01-01T09:00:00Z", 0), ev(2, "2026-01-01T09:00:10Z", 0), ev(3, "2026-01-01T09:00:20Z", 0)
	c := Case{Events: []store.Event{e1, e2, e3}}
	objectsOf := func(e store.Event) []store.UUID {
		if e.ID == 1 || e.ID == 3 {
			return []store.UUID{orderID}
		}
		return nil
	}

	out := RefineByObjectCoherence([]Case{c}, objectsOf)
	require.Len(t, out, 1)
	require.Len(t, out[0].Events, 2)
	require.Equal(t, int64(1), out[0].Events[0].ID)
	require.Equal(t, int64(3), out[0].Events[1].ID)
}
