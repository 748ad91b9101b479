package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/flowmine/engine/dbopen"
	"github.com/flowmine/engine/internal/apierr"
)

// OccurrenceStepInstance binds one abstract PatternStep position in a
// Workflow's pattern to the concrete Step that filled it during a match.
type OccurrenceStepInstance struct {
	Position int
	StepID   UUID
}

// Occurrence is one concrete match of a Workflow's pattern against a
// case's steps (spec.md §4.5/§4.6: workflow matching output).
type Occurrence struct {
	ID         UUID
	WorkflowID UUID
	CaseID     string
	Steps      []OccurrenceStepInstance
	ObjectIDs  []UUID
	Start      string
	End        string
	Duration   float64
	CreatedAt  string
}

// CreateOccurrence persists a workflow match and activates the workflow
// if this is its first occurrence (spec.md §4.5).
func (s *Store) CreateOccurrence(ctx context.Context, occ Occurrence) (*Occurrence, error) {
	var result *Occurrence
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		created, err := createOccurrenceTx(ctx, tx, occ)
		if err != nil {
			return err
		}
		result = created
		return nil
	})
	return result, err
}

// CreateOccurrences persists every occurrence a workflow-matching pass
// found in one transaction, per spec.md §4.6.
func (s *Store) CreateOccurrences(ctx context.Context, occs []Occurrence) ([]Occurrence, error) {
	out := make([]Occurrence, len(occs))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for i, occ := range occs {
			created, err := createOccurrenceTx(ctx, tx, occ)
			if err != nil {
				return fmt.Errorf("create occurrence %d: %w", i, err)
			}
			out[i] = *created
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func createOccurrenceTx(ctx context.Context, tx *sql.Tx, occ Occurrence) (*Occurrence, error) {
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM workflows WHERE id = ?`, occ.WorkflowID).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return nil, apierr.NotFoundf("workflow %s not found", occ.WorkflowID)
		}
		return nil, err
	}

	if occ.ID.IsZero() {
		occ.ID = NewUUID()
	}
	occ.CreatedAt = nowRFC3339()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO occurrences (id, workflow_id, case_id, start_ts, end_ts, duration_seconds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, occ.ID, occ.WorkflowID, occ.CaseID, occ.Start, occ.End, occ.Duration, occ.CreatedAt); err != nil {
		return nil, err
	}
	for _, si := range occ.Steps {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO occurrence_step_instances (occurrence_id, position, step_id) VALUES (?, ?, ?)
		`, occ.ID, si.Position, si.StepID); err != nil {
			return nil, err
		}
	}
	for _, objID := range occ.ObjectIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO occurrence_objects (occurrence_id, object_id) VALUES (?, ?)
		`, occ.ID, objID); err != nil {
			return nil, err
		}
	}

	var state string
	if err := tx.QueryRowContext(ctx, `SELECT state FROM workflows WHERE id = ?`, occ.WorkflowID).Scan(&state); err != nil {
		return nil, err
	}
	if WorkflowState(state) == WorkflowDraft {
		if _, err := tx.ExecContext(ctx, `UPDATE workflows SET state = ?, updated_at = ? WHERE id = ?`,
			string(WorkflowActive), occ.CreatedAt, occ.WorkflowID); err != nil {
			return nil, err
		}
	}

	return &occ, nil
}

// PersistReconciliation persists the workflows a mining pass discovered
// as new, followed by every occurrence matched against the (now
// complete) workflow registry, all in one transaction — the reconcile
// stage's batch write, per spec.md §4.6.
func (s *Store) PersistReconciliation(ctx context.Context, newWorkflows []Workflow, occs []Occurrence) ([]Workflow, []Occurrence, error) {
	createdWF := make([]Workflow, len(newWorkflows))
	createdOcc := make([]Occurrence, len(occs))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for i, wf := range newWorkflows {
			created, err := createWorkflowTx(ctx, tx, wf)
			if err != nil {
				return fmt.Errorf("create workflow %d: %w", i, err)
			}
			createdWF[i] = *created
		}
		for i, occ := range occs {
			created, err := createOccurrenceTx(ctx, tx, occ)
			if err != nil {
				return fmt.Errorf("create occurrence %d: %w", i, err)
			}
			createdOcc[i] = *created
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return createdWF, createdOcc, nil
}

// GetOccurrence fetches an Occurrence plus its step instances and objects.
func (s *Store) GetOccurrence(ctx context.Context, id UUID) (*Occurrence, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, case_id, start_ts, end_ts, duration_seconds, created_at FROM occurrences WHERE id = ?
	`, id)
	occ, err := scanOccurrence(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFoundf("occurrence %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if err := s.fillOccurrenceRefs(ctx, occ); err != nil {
		return nil, err
	}
	return occ, nil
}

// ListOccurrencesForWorkflow lists every recorded match of a workflow,
// most recent first.
func (s *Store) ListOccurrencesForWorkflow(ctx context.Context, workflowID UUID) ([]Occurrence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, case_id, start_ts, end_ts, duration_seconds, created_at
		FROM occurrences WHERE workflow_id = ? ORDER BY start_ts DESC
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("store: list occurrences: %w", err)
	}
	defer rows.Close()

	var out []Occurrence
	for rows.Next() {
		occ, err := scanOccurrence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *occ)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	for i := range out {
		if err := s.fillOccurrenceRefs(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DeleteOccurrence removes a single occurrence (independent of its
// workflow's own lifecycle; full cascade happens via DeleteWorkflow).
func (s *Store) DeleteOccurrence(ctx context.Context, id UUID) error {
	return s.withWriteLock(func() error {
		res, err := dbopen.Exec(ctx, s.db, `DELETE FROM occurrences WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apierr.NotFoundf("occurrence %s not found", id)
		}
		return nil
	})
}

func (s *Store) fillOccurrenceRefs(ctx context.Context, occ *Occurrence) error {
	stepRows, err := s.db.QueryContext(ctx, `
		SELECT position, step_id FROM occurrence_step_instances WHERE occurrence_id = ? ORDER BY position ASC
	`, occ.ID)
	if err != nil {
		return fmt.Errorf("store: occurrence step instances: %w", err)
	}
	defer stepRows.Close()
	for stepRows.Next() {
		var si OccurrenceStepInstance
		if err := stepRows.Scan(&si.Position, &si.StepID); err != nil {
			return err
		}
		occ.Steps = append(occ.Steps, si)
	}
	if err := stepRows.Err(); err != nil {
		return err
	}

	objRows, err := s.db.QueryContext(ctx, `SELECT object_id FROM occurrence_objects WHERE occurrence_id = ?`, occ.ID)
	if err != nil {
		return fmt.Errorf("store: occurrence objects: %w", err)
	}
	defer objRows.Close()
	for objRows.Next() {
		var id UUID
		if err := objRows.Scan(&id); err != nil {
			return err
		}
		occ.ObjectIDs = append(occ.ObjectIDs, id)
	}
	return objRows.Err()
}

func scanOccurrence(row scanner) (*Occurrence, error) {
	var occ Occurrence
	if err := row.Scan(&occ.ID, &occ.WorkflowID, &occ.CaseID, &occ.Start, &occ.End, &occ.Duration, &occ.CreatedAt); err != nil {
		return nil, err
	}
	return &occ, nil
}
