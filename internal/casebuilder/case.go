// Package casebuilder turns a bounded window of events into cases and
// steps, per spec.md §4.4: gap-based sessionisation, object-coherence
// sub-case refinement, and step synthesis.
package casebuilder

import (
	"sort"
	"time"

	"github.com/flowmine/engine/internal/store"
)

// Case is an ordered slice of events believed to belong to one process
// instance.
type Case struct {
	Events []store.Event
}

// AFKInterval is a period during which the user was away, as reported by
// an AFK-style watcher bucket. Only intervals at least AFKGapSeconds long
// force a session cut; shorter ones are ignored.
type AFKInterval struct {
	Start time.Time
	End   time.Time
}

func eventStart(ev store.Event) (time.Time, error) {
	return time.Parse(time.RFC3339, ev.Timestamp)
}

func eventEnd(ev store.Event) (time.Time, error) {
	start, err := eventStart(ev)
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(time.Duration(ev.Duration * float64(time.Second))), nil
}

// sortEvents orders events by timestamp ascending, tie-broken by id
// ascending, per spec.md §4.4's edge case for overlapping timestamps.
func sortEvents(events []store.Event) []store.Event {
	out := make([]store.Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}
