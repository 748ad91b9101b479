package store

import (
	"context"

	"github.com/flowmine/engine/dbopen"
)

// RecordRuleCorrection tallies one Correct() for (ruleID, correctedType),
// keeping one sample source text for later rule generalisation, and
// returns the running count. Grounded on domregistry/internal/store
// correction.go's ensureReputation upsert-and-mutate pattern.
func (s *Store) RecordRuleCorrection(ctx context.Context, ruleID UUID, correctedType, sampleText string) (int, error) {
	var count int
	err := s.withWriteLock(func() error {
		_, err := dbopen.Exec(ctx, s.db, `
			INSERT INTO rule_corrections (rule_id, corrected_type, sample_text, count)
			VALUES (?, ?, ?, 1)
			ON CONFLICT (rule_id, corrected_type) DO UPDATE SET
				count = count + 1,
				sample_text = excluded.sample_text
		`, ruleID, correctedType, sampleText)
		if err != nil {
			return err
		}
		return s.db.QueryRowContext(ctx, `
			SELECT count FROM rule_corrections WHERE rule_id = ? AND corrected_type = ?
		`, ruleID, correctedType).Scan(&count)
	})
	return count, err
}

// ResetRuleCorrections clears the tally after a learned rule has been
// proposed, so the next 3 corrections propose a fresh generalisation.
func (s *Store) ResetRuleCorrections(ctx context.Context, ruleID UUID, correctedType string) error {
	return s.withWriteLock(func() error {
		_, err := dbopen.Exec(ctx, s.db, `
			DELETE FROM rule_corrections WHERE rule_id = ? AND corrected_type = ?
		`, ruleID, correctedType)
		return err
	})
}
