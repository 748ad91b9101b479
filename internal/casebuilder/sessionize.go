package casebuilder

import (
	"fmt"
	"time"

	"github.com/flowmine/engine/internal/store"
)

// Sessionize partitions events into gap-based cases: the boundary
// between two consecutive events is cut iff the gap between the first
// event's end and the second event's start exceeds maxGap, or an AFK
// interval of at least afkMinDuration falls between them. Events are
// re-sorted by timestamp ascending (id ascending on ties) before
// partitioning; zero-duration events are kept as single-instant steps.
func Sessionize(events []store.Event, maxGap time.Duration, afk []AFKInterval, afkMinDuration time.Duration) ([]Case, error) {
	sorted := sortEvents(events)
	if len(sorted) == 0 {
		return nil, nil
	}

	var cases []Case
	var current []store.Event
	var prevEnd time.Time

	for i, ev := range sorted {
		start, err := eventStart(ev)
		if err != nil {
			return nil, fmt.Errorf("casebuilder: parse event %d timestamp: %w", ev.ID, err)
		}
		end, err := eventEnd(ev)
		if err != nil {
			return nil, fmt.Errorf("casebuilder: parse event %d timestamp: %w", ev.ID, err)
		}

		if i > 0 {
			gap := start.Sub(prevEnd)
			if gap > maxGap || crossesAFK(prevEnd, start, afk, afkMinDuration) {
				cases = append(cases, Case{Events: current})
				current = nil
			}
		}
		current = append(current, ev)
		prevEnd = end
	}
	if len(current) > 0 {
		cases = append(cases, Case{Events: current})
	}
	return cases, nil
}

// crossesAFK reports whether an AFK interval of at least minDuration
// overlaps the (prevEnd, start) gap between two consecutive events.
func crossesAFK(prevEnd, start time.Time, afk []AFKInterval, minDuration time.Duration) bool {
	for _, iv := range afk {
		if iv.End.Sub(iv.Start) < minDuration {
			continue
		}
		if iv.Start.Before(start) && iv.End.After(prevEnd) {
			return true
		}
	}
	return false
}

// RefineByObjectCoherence finds, within each gap-derived case, the
// maximal event subsequences that all share a common object id. Each
// such subsequence of at least two events becomes its own overlapping
// sub-case; a gap-case that yields no qualifying sub-case is retained
// unchanged, per spec.md §4.4.
func RefineByObjectCoherence(cases []Case, objectsOf func(store.Event) []store.UUID) []Case {
	var out []Case
	for _, c := range cases {
		subs := subCasesByObject(c, objectsOf)
		if len(subs) == 0 {
			out = append(out, c)
			continue
		}
		out = append(out, subs...)
	}
	return out
}

func subCasesByObject(c Case, objectsOf func(store.Event) []store.UUID) []Case {
	order := make([]store.UUID, 0)
	grouped := make(map[store.UUID][]store.Event)
	for _, ev := range c.Events {
		for _, id := range objectsOf(ev) {
			if _, seen := grouped[id]; !seen {
				order = append(order, id)
			}
			grouped[id] = append(grouped[id], ev)
		}
	}

	var subs []Case
	for _, id := range order {
		if evs := grouped[id]; len(evs) >= 2 {
			subs = append(subs, Case{Events: evs})
		}
	}
	return subs
}
