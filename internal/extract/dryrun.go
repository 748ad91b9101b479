package extract

import (
	"fmt"
	"regexp"

	"github.com/flowmine/engine/internal/store"
)

// Sample is one text fragment offered to POST /extraction-rules/{id}/test,
// shaped like the source fields of an Event without requiring a real one.
type Sample struct {
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	OCRText string `json:"ocr_text,omitempty"`
}

func (s Sample) asEvent() store.Event {
	return store.Event{Data: map[string]any{
		"title":    s.Title,
		"url":      s.URL,
		"ocr_text": s.OCRText,
	}}
}

// TestResult is the outcome of running one rule against one Sample.
type TestResult struct {
	Match bool
	Name  string
	Data  map[string]any
}

// TestRule compiles rule.Pattern and evaluates it against sample without
// touching the store, backing the dry-run endpoint spec.md §6 describes.
// A malformed pattern is returned as a wrapped compile error; the REST
// handler reports it to the caller as invalid_argument.
func TestRule(rule store.ExtractionRule, sample Sample) (TestResult, error) {
	pattern, err := regexp.Compile(rule.Pattern)
	if err != nil {
		return TestResult{}, fmt.Errorf("extract: compile pattern: %w", err)
	}
	ev := sample.asEvent()
	text := sourceText(ev, rule.SourceFields)
	if text == "" {
		return TestResult{}, nil
	}

	matches := nonOverlappingMatches(pattern, text)
	if len(matches) == 0 {
		return TestResult{}, nil
	}

	groupNames := pattern.SubexpNames()
	m := matches[0]
	groups := make(map[string]string, len(groupNames))
	for i, name := range groupNames {
		if name == "" || i >= len(m)/2 {
			continue
		}
		start, end := m[2*i], m[2*i+1]
		if start < 0 || end < 0 {
			continue
		}
		groups[name] = text[start:end]
	}

	name := renderTemplate(rule.NameTemplate, groups)
	if name == "" {
		return TestResult{}, nil
	}
	data := make(map[string]any, len(rule.DataMapping))
	for dataKey, groupName := range rule.DataMapping {
		if v, ok := groups[groupName]; ok {
			data[dataKey] = v
		}
	}
	return TestResult{Match: true, Name: name, Data: data}, nil
}
