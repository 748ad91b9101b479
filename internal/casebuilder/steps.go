package casebuilder

import (
	"net/url"
	"time"

	"github.com/flowmine/engine/internal/store"
)

const activityLabelMaxLen = 64

// Step is a synthesised grouping of consecutive same-activity events
// within a case, before it is persisted as a store.Step.
type Step struct {
	Label     string
	Start     string
	End       string
	Duration  float64
	Events    []store.Event
	ObjectIDs []store.UUID
}

// SynthesizeSteps collapses consecutive events sharing the same activity
// label into a single Step, per spec.md §4.4. A step's duration is the
// sum of its events' durations, not end minus start, to stay consistent
// with the watcher convention of durations as measured foreground time.
// objectsOf supplies the object ids linked to each event, used to union
// a step's object set from its member events.
func SynthesizeSteps(c Case, objectsOf func(store.Event) []store.UUID) ([]Step, error) {
	var steps []Step
	for _, ev := range c.Events {
		label := ActivityLabel(ev)
		end, err := eventEnd(ev)
		if err != nil {
			return nil, err
		}
		endStr := end.Format(time.RFC3339Nano)

		if n := len(steps); n > 0 && steps[n-1].Label == label {
			steps[n-1].End = endStr
			steps[n-1].Duration += ev.Duration
			steps[n-1].Events = append(steps[n-1].Events, ev)
			continue
		}
		steps = append(steps, Step{
			Label:    label,
			Start:    ev.Timestamp,
			End:      endStr,
			Duration: ev.Duration,
			Events:   []store.Event{ev},
		})
	}

	for i := range steps {
		steps[i].ObjectIDs = unionObjectIDs(steps[i].Events, objectsOf)
	}
	return steps, nil
}

// ActivityLabel derives a step's activity label from an event, per
// spec.md §4.4: data.app if present, else the data.url host, else
// data.title truncated to 64 characters, else "unknown".
func ActivityLabel(ev store.Event) string {
	if app := ev.App(); app != "" {
		return app
	}
	if raw := ev.URL(); raw != "" {
		if parsed, err := url.Parse(raw); err == nil && parsed.Host != "" {
			return parsed.Host
		}
	}
	if title := ev.Title(); title != "" {
		if len(title) > activityLabelMaxLen {
			return title[:activityLabelMaxLen]
		}
		return title
	}
	return "unknown"
}

func unionObjectIDs(events []store.Event, objectsOf func(store.Event) []store.UUID) []store.UUID {
	seen := make(map[store.UUID]bool)
	var ids []store.UUID
	for _, ev := range events {
		for _, id := range objectsOf(ev) {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}
