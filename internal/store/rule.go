package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/flowmine/engine/dbopen"
	"github.com/flowmine/engine/internal/apierr"
)

// Provenance of an ExtractionRule: how it came to exist.
type Provenance string

const (
	ProvenanceSeed    Provenance = "seed"
	ProvenanceUser    Provenance = "user"
	ProvenanceLearned Provenance = "learned"
)

// ExtractionRule matches event text and yields candidate objects.
// Grounded on domkeeper's Rule shape (name, pattern, priority, version via
// usage counters), generalised to the regex-and-template binding this
// engine's extractor needs instead of a per-page selector rule.
type ExtractionRule struct {
	ID            UUID
	Name          string
	ObjectType    string
	SourceFields  []string
	Pattern       string
	NameTemplate  string
	DataMapping   map[string]string // capture group name -> object data key
	Enabled       bool
	Priority      int
	Provenance    Provenance
	MatchCount    int
	ConfirmCount  int
	RejectCount   int
	Confidence    float64
	CreatedAt     string
	UpdatedAt     string
}

// CreateExtractionRule inserts a new rule. The caller must have already
// validated that Pattern compiles and the NameTemplate's placeholders
// resolve (spec.md §3 invariant); store.go does not re-derive that here,
// it is the extractor package's job (internal/extract) before calling in.
func (s *Store) CreateExtractionRule(ctx context.Context, r ExtractionRule) (*ExtractionRule, error) {
	var result *ExtractionRule
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if r.ID.IsZero() {
			r.ID = NewUUID()
		}
		now := nowRFC3339()
		r.CreatedAt, r.UpdatedAt = now, now
		if r.Confidence == 0 {
			r.Confidence = 0.5
		}
		if r.Provenance == "" {
			r.Provenance = ProvenanceUser
		}

		fields, err := json.Marshal(r.SourceFields)
		if err != nil {
			return err
		}
		mapping, err := json.Marshal(r.DataMapping)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO extraction_rules
				(id, name, object_type, source_fields_json, pattern, name_template, data_mapping_json,
				 enabled, priority, provenance, match_count, confirm_count, reject_count, confidence,
				 created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, r.ID, r.Name, r.ObjectType, string(fields), r.Pattern, r.NameTemplate, string(mapping),
			boolInt(r.Enabled), r.Priority, string(r.Provenance), r.MatchCount, r.ConfirmCount, r.RejectCount,
			r.Confidence, r.CreatedAt, r.UpdatedAt)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO extraction_rules_fts (rowid, rule_id, name)
			SELECT rowid, id, name FROM extraction_rules WHERE id = ?
		`, r.ID)
		if err != nil {
			return err
		}
		result = &r
		return nil
	})
	return result, err
}

// GetExtractionRule fetches a rule by id.
func (s *Store) GetExtractionRule(ctx context.Context, id UUID) (*ExtractionRule, error) {
	row := s.db.QueryRowContext(ctx, ruleSelectColumns+`FROM extraction_rules WHERE id = ?`, id)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFoundf("extraction rule %s not found", id)
	}
	return r, err
}

const ruleSelectColumns = `
	SELECT id, name, object_type, source_fields_json, pattern, name_template, data_mapping_json,
	       enabled, priority, provenance, match_count, confirm_count, reject_count, confidence,
	       created_at, updated_at
`

// ListExtractionRules lists rules, optionally filtered by a name-prefix
// search, ordered for display by priority (not the matching order).
func (s *Store) ListExtractionRules(ctx context.Context, query string) ([]ExtractionRule, error) {
	q := ruleSelectColumns + `FROM extraction_rules`
	var args []any
	if query != "" {
		q += ` WHERE id IN (SELECT rule_id FROM extraction_rules_fts WHERE extraction_rules_fts MATCH ?)`
		args = append(args, query+"*")
	}
	q += ` ORDER BY priority DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list extraction rules: %w", err)
	}
	defer rows.Close()

	var out []ExtractionRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// EnabledRulesByPriority returns every enabled rule, ordered
// priority DESC, id ASC (stable) — the exact order spec.md §4.2 requires
// for extraction.
func (s *Store) EnabledRulesByPriority(ctx context.Context) ([]ExtractionRule, error) {
	rows, err := s.db.QueryContext(ctx, ruleSelectColumns+`
		FROM extraction_rules WHERE enabled = 1 ORDER BY priority DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: enabled rules: %w", err)
	}
	defer rows.Close()

	var out []ExtractionRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// UpdateExtractionRule replaces a rule's mutable fields.
func (s *Store) UpdateExtractionRule(ctx context.Context, r ExtractionRule) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		fields, err := json.Marshal(r.SourceFields)
		if err != nil {
			return err
		}
		mapping, err := json.Marshal(r.DataMapping)
		if err != nil {
			return err
		}
		r.UpdatedAt = nowRFC3339()
		res, err := tx.ExecContext(ctx, `
			UPDATE extraction_rules SET
				name = ?, object_type = ?, source_fields_json = ?, pattern = ?, name_template = ?,
				data_mapping_json = ?, enabled = ?, priority = ?, updated_at = ?
			WHERE id = ?
		`, r.Name, r.ObjectType, string(fields), r.Pattern, r.NameTemplate, string(mapping),
			boolInt(r.Enabled), r.Priority, r.UpdatedAt, r.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apierr.NotFoundf("extraction rule %s not found", r.ID)
		}
		_, err = tx.ExecContext(ctx, `UPDATE extraction_rules_fts SET name = ? WHERE rule_id = ?`, r.Name, r.ID)
		return err
	})
}

// DeleteExtractionRule removes a rule.
func (s *Store) DeleteExtractionRule(ctx context.Context, id UUID) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM extraction_rules WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apierr.NotFoundf("extraction rule %s not found", id)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM extraction_rules_fts WHERE rule_id = ?`, id)
		return err
	})
}

// RecordRuleMatch increments match_count for rule id.
func (s *Store) RecordRuleMatch(ctx context.Context, id UUID) error {
	return s.withWriteLock(func() error {
		_, err := dbopen.Exec(ctx, s.db, `
			UPDATE extraction_rules SET match_count = match_count + 1, updated_at = ? WHERE id = ?
		`, nowRFC3339(), id)
		return err
	})
}

// SetRuleConfidenceAndCounters applies the confidence/counter update the
// ontology learning algorithm computed, plus an optional disable when the
// rule has been demoted.
func (s *Store) SetRuleConfidenceAndCounters(ctx context.Context, id UUID, confidence float64, confirmCount, rejectCount int, disable bool) error {
	return s.withWriteLock(func() error {
		q := `UPDATE extraction_rules SET confidence = ?, confirm_count = ?, reject_count = ?, updated_at = ?`
		args := []any{confidence, confirmCount, rejectCount, nowRFC3339()}
		if disable {
			q += `, enabled = 0`
		}
		q += ` WHERE id = ?`
		args = append(args, id)
		res, err := dbopen.Exec(ctx, s.db, q, args...)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apierr.NotFoundf("extraction rule %s not found", id)
		}
		return nil
	})
}

func scanRule(row scanner) (*ExtractionRule, error) {
	var r ExtractionRule
	var fields, mapping string
	var enabled int
	var provenance string
	if err := row.Scan(
		&r.ID, &r.Name, &r.ObjectType, &fields, &r.Pattern, &r.NameTemplate, &mapping,
		&enabled, &r.Priority, &provenance, &r.MatchCount, &r.ConfirmCount, &r.RejectCount, &r.Confidence,
		&r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	r.Enabled = enabled != 0
	r.Provenance = Provenance(provenance)
	if err := json.Unmarshal([]byte(fields), &r.SourceFields); err != nil {
		return nil, fmt.Errorf("store: unmarshal source fields: %w", err)
	}
	if err := json.Unmarshal([]byte(mapping), &r.DataMapping); err != nil {
		return nil, fmt.Errorf("store: unmarshal data mapping: %w", err)
	}
	return &r, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
