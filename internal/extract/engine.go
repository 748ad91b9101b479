// Package extract applies extraction rules to events, turning raw text
// fields into Object bindings, and folds user feedback back into rule
// confidence and rule generalisation.
package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/flowmine/engine/internal/store"
)

// compiledRule is an ExtractionRule with its pattern pre-compiled, so the
// hot extraction path never calls regexp.Compile per event. The name
// template is parsed on each match.
type compiledRule struct {
	rule    store.ExtractionRule
	pattern *regexp.Regexp
}

// ruleSnapshot is an immutable view of the enabled rule set, swapped
// atomically on Reload so concurrent ExtractEvent calls never observe a
// half-updated rule list. It carries no version number; each Reload
// replaces it wholesale.
type ruleSnapshot struct {
	rules []compiledRule
}

// Engine applies rules to events and records the resulting links.
type Engine struct {
	store    *store.Store
	snapshot atomic.Pointer[ruleSnapshot]
}

// NewEngine constructs an Engine with an empty snapshot; call Reload
// before the first ExtractEvent.
func NewEngine(st *store.Store) *Engine {
	e := &Engine{store: st}
	e.snapshot.Store(&ruleSnapshot{})
	return e
}

// Reload recompiles every enabled rule, in priority order, and publishes
// the result as the engine's active snapshot.
func (e *Engine) Reload(ctx context.Context) error {
	rules, err := e.store.EnabledRulesByPriority(ctx)
	if err != nil {
		return fmt.Errorf("extract: load rules: %w", err)
	}
	snap := &ruleSnapshot{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		pat, err := regexp.Compile(r.Pattern)
		if err != nil {
			// A rule that fails to compile is skipped rather than aborting
			// the whole reload; it stays enabled in storage so the REST API
			// can surface and fix it.
			continue
		}
		snap.rules = append(snap.rules, compiledRule{rule: r, pattern: pat})
	}
	e.snapshot.Store(snap)
	return nil
}

// ExtractEvent runs every enabled rule over one event, in priority order,
// per spec.md §4.2. Rule failures on an individual match are skipped;
// store failures abort the whole call.
func (e *Engine) ExtractEvent(ctx context.Context, ev store.Event) error {
	snap := e.snapshot.Load()
	for _, cr := range snap.rules {
		if err := e.applyRule(ctx, cr, ev); err != nil {
			return fmt.Errorf("extract: rule %s: %w", cr.rule.ID, err)
		}
	}
	return nil
}

func (e *Engine) applyRule(ctx context.Context, cr compiledRule, ev store.Event) error {
	text := sourceText(ev, cr.rule.SourceFields)
	if text == "" {
		return nil
	}

	matches := nonOverlappingMatches(cr.pattern, text)
	if len(matches) == 0 {
		return nil
	}

	groupNames := cr.pattern.SubexpNames()
	for _, m := range matches {
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

		name := renderTemplate(cr.rule.NameTemplate, groups)
		if name == "" {
			continue
		}
		data := make(map[string]any, len(cr.rule.DataMapping))
		for dataKey, groupName := range cr.rule.DataMapping {
			if v, ok := groups[groupName]; ok {
				data[dataKey] = v
			}
		}

		obj, err := e.store.UpsertObject(ctx, cr.rule.ObjectType, name, data, false)
		if err != nil {
			return err
		}
		if err := e.store.LinkEventToObject(ctx, ev.BucketID, ev.ID, obj.ID, store.RuleProvenance(cr.rule.ID), cr.rule.Confidence); err != nil {
			return err
		}
		if err := e.store.RecordRuleMatch(ctx, cr.rule.ID); err != nil {
			return err
		}
	}
	return nil
}

// sourceText concatenates the named source fields with a single space,
// missing fields contributing an empty string, per spec.md §4.2 step 1.
func sourceText(ev store.Event, fields []string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		switch f {
		case "app":
			parts[i] = ev.App()
		case "url":
			parts[i] = ev.URL()
		case "title":
			parts[i] = ev.Title()
		case "ocr_text":
			parts[i] = ev.OCRText()
		default:
			if v, ok := ev.Data[f]; ok {
				if s, ok := v.(string); ok {
					parts[i] = s
				}
			}
		}
	}
	return strings.Join(parts, " ")
}

// nonOverlappingMatches collects every non-overlapping match of pattern
// in text, left to right. regexp.FindAllStringSubmatchIndex already
// guarantees non-overlap; this wraps it for a clearer call site.
func nonOverlappingMatches(pattern *regexp.Regexp, text string) [][]int {
	return pattern.FindAllStringSubmatchIndex(text, -1)
}

// renderTemplate substitutes {group_name} placeholders in tmpl with
// values from groups. A placeholder with no matching group renders empty.
func renderTemplate(tmpl string, groups map[string]string) string {
	var sb strings.Builder
	i := 0
	for i < len(tmpl) {
		if tmpl[i] == '{' {
			if end := strings.IndexByte(tmpl[i:], '}'); end >= 0 {
				name := tmpl[i+1 : i+end]
				sb.WriteString(groups[name])
				i += end + 1
				continue
			}
		}
		sb.WriteByte(tmpl[i])
		i++
	}
	return sb.String()
}
