package extract

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/flowmine/engine/internal/store"
)

const (
	confirmAlpha        = 0.1  // EMA gain on Confirm
	rejectBeta          = 0.2  // EMA decay on Reject
	demotionMinSamples  = 10
	demotionMaxRatio    = 0.25
	generalizeThreshold = 3
)

// Confirm records that the event-object link was correct, nudging the
// originating rule's confidence toward 1 via
// confidence <- min(0.99, confidence + alpha*(1-confidence)).
func (e *Engine) Confirm(ctx context.Context, bucket string, eventID int64, objectID store.UUID) error {
	link, err := e.store.GetLink(ctx, bucket, eventID, objectID)
	if err != nil {
		return err
	}
	if link == nil {
		return nil
	}
	ruleID, ok := store.ParseRuleProvenance(link.Provenance)
	if !ok {
		return nil
	}
	rule, err := e.store.GetExtractionRule(ctx, ruleID)
	if err != nil {
		return err
	}
	confidence := rule.Confidence + confirmAlpha*(1-rule.Confidence)
	if confidence > 0.99 {
		confidence = 0.99
	}
	confirmCount := rule.ConfirmCount + 1
	return e.store.SetRuleConfidenceAndCounters(ctx, ruleID, confidence, confirmCount, rule.RejectCount, false)
}

// Reject records that the event-object link was wrong, decaying the
// originating rule's confidence and demoting (disabling) the rule once
// its confirm ratio falls below 0.25 over at least 10 samples.
func (e *Engine) Reject(ctx context.Context, bucket string, eventID int64, objectID store.UUID) error {
	link, err := e.store.GetLink(ctx, bucket, eventID, objectID)
	if err != nil {
		return err
	}
	if link == nil {
		return nil
	}
	ruleID, ok := store.ParseRuleProvenance(link.Provenance)
	if !ok {
		return nil
	}
	rule, err := e.store.GetExtractionRule(ctx, ruleID)
	if err != nil {
		return err
	}
	confidence := rule.Confidence - rejectBeta*rule.Confidence
	if confidence < 0 {
		confidence = 0
	}
	rejectCount := rule.RejectCount + 1
	total := rule.ConfirmCount + rejectCount
	demote := false
	if total >= demotionMinSamples {
		ratio := float64(rule.ConfirmCount) / float64(total)
		if ratio < demotionMaxRatio {
			demote = true
			slog.Info("rule demoted", "rule_id", ruleID.String(), "confirm_count", rule.ConfirmCount, "reject_count", rejectCount)
		}
	}
	return e.store.SetRuleConfidenceAndCounters(ctx, ruleID, confidence, rule.ConfirmCount, rejectCount, demote)
}

// Correct replaces a link's object with a corrected one: the original
// link is deleted, a corrected object is upserted, and a manual link is
// created in its place. When the originating rule has now been corrected
// to the same type three or more times, a new learned rule is proposed
// by generalising the rule's matched source text.
func (e *Engine) Correct(ctx context.Context, bucket string, eventID int64, objectID store.UUID, correctedType, correctedName string, correctedData map[string]any, sourceText string) (*store.Object, error) {
	link, err := e.store.GetLink(ctx, bucket, eventID, objectID)
	if err != nil {
		return nil, err
	}
	if link != nil {
		if err := e.store.UnlinkEventFromObject(ctx, bucket, eventID, objectID); err != nil {
			return nil, err
		}
	}

	corrected, err := e.store.UpsertObject(ctx, correctedType, correctedName, correctedData, false)
	if err != nil {
		return nil, err
	}
	if err := e.store.LinkEventToObject(ctx, bucket, eventID, corrected.ID, store.LinkManual, 1.0); err != nil {
		return nil, err
	}

	if link == nil {
		return corrected, nil
	}
	ruleID, ok := store.ParseRuleProvenance(link.Provenance)
	if !ok {
		return corrected, nil
	}

	count, err := e.store.RecordRuleCorrection(ctx, ruleID, correctedType, sourceText)
	if err != nil {
		return corrected, err
	}
	if count >= generalizeThreshold {
		if err := e.proposeLearnedRule(ctx, ruleID, correctedType, sourceText); err != nil {
			return corrected, err
		}
		if err := e.store.ResetRuleCorrections(ctx, ruleID, correctedType); err != nil {
			return corrected, err
		}
	}
	return corrected, nil
}

// proposeLearnedRule generalises sampleText into a disabled candidate
// rule, per spec.md §4.2's deterministic generalisation: escape literals,
// replace digit runs with \d+, replace uppercase-letter runs with [A-Z]+.
func (e *Engine) proposeLearnedRule(ctx context.Context, originRuleID store.UUID, correctedType, sampleText string) error {
	origin, err := e.store.GetExtractionRule(ctx, originRuleID)
	if err != nil {
		return err
	}
	pattern := generalizePattern(sampleText)
	_, err = e.store.CreateExtractionRule(ctx, store.ExtractionRule{
		Name:         fmt.Sprintf("%s (learned from %s)", correctedType, origin.Name),
		ObjectType:   correctedType,
		SourceFields: origin.SourceFields,
		Pattern:      pattern,
		NameTemplate: "{match}",
		DataMapping:  map[string]string{},
		Enabled:      false,
		Priority:     origin.Priority,
		Provenance:   store.ProvenanceLearned,
		Confidence:   0.5,
	})
	return err
}

var (
	digitRun = regexp.MustCompile(`\d+`)
	upperRun = regexp.MustCompile(`[A-Z]+`)
)

// generalizePattern turns a literal sample into a regex: escape all
// regexp metacharacters, then loosen digit runs and uppercase runs into
// \d+ / [A-Z]+ so the learned rule matches siblings of the sample, not
// just the sample itself. The whole match is captured as "match" so the
// proposed rule's fixed NameTemplate ("{match}") renders directly.
func generalizePattern(sample string) string {
	escaped := regexp.QuoteMeta(sample)
	escaped = digitRun.ReplaceAllStringFunc(escaped, func(string) string { return `\d+` })
	escaped = upperRun.ReplaceAllStringFunc(escaped, func(string) string { return `[A-Z]+` })
	return "(?P<match>" + strings.TrimSpace(escaped) + ")"
}
