package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/flowmine/engine/dbopen"
	"github.com/flowmine/engine/internal/apierr"
)

// WorkflowState is a node in the lifecycle state machine of spec.md §4.5:
// draft -> active -> archived, with deleted terminal from any state.
type WorkflowState string

const (
	WorkflowDraft    WorkflowState = "draft"
	WorkflowActive   WorkflowState = "active"
	WorkflowArchived WorkflowState = "archived"
)

// allowedTransitions enumerates the only legal state-machine edges.
var allowedTransitions = map[WorkflowState]map[WorkflowState]bool{
	WorkflowDraft:    {WorkflowActive: true, WorkflowArchived: true},
	WorkflowActive:   {WorkflowArchived: true},
	WorkflowArchived: {},
}

// PatternStep is one abstract activity label in a Workflow's pattern.
type PatternStep struct {
	Label      string `json:"label"`
	AllowedGap int    `json:"allowed_gap"`
	Optional   bool   `json:"optional"`
}

// Workflow (a.k.a. process) is a named, saved pattern template.
type Workflow struct {
	ID          UUID
	Name        string
	Description string
	Pattern     []PatternStep
	StepIDs     []UUID // ordered step template ids
	ObjectIDs   []UUID
	State       WorkflowState
	CreatedAt   string
	UpdatedAt   string
}

// CreateWorkflow persists a new Workflow in the draft state. Pattern
// length must be >= 2, per spec.md §3.
func (s *Store) CreateWorkflow(ctx context.Context, wf Workflow) (*Workflow, error) {
	var result *Workflow
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		created, err := createWorkflowTx(ctx, tx, wf)
		if err != nil {
			return err
		}
		result = created
		return nil
	})
	return result, err
}

func createWorkflowTx(ctx context.Context, tx *sql.Tx, wf Workflow) (*Workflow, error) {
	if len(wf.Pattern) < 2 {
		return nil, apierr.InvalidArgumentf("workflow pattern must have at least 2 steps, got %d", len(wf.Pattern))
	}
	if wf.ID.IsZero() {
		wf.ID = NewUUID()
	}
	now := nowRFC3339()
	wf.CreatedAt, wf.UpdatedAt = now, now
	if wf.State == "" {
		wf.State = WorkflowDraft
	}
	pattern, err := json.Marshal(wf.Pattern)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO workflows (id, name, description, pattern_json, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, wf.ID, wf.Name, wf.Description, string(pattern), string(wf.State), wf.CreatedAt, wf.UpdatedAt); err != nil {
		return nil, err
	}
	for i, stepID := range wf.StepIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO workflow_steps (workflow_id, step_id, position) VALUES (?, ?, ?)
		`, wf.ID, stepID, i); err != nil {
			return nil, err
		}
	}
	for _, objID := range wf.ObjectIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO workflow_objects (workflow_id, object_id) VALUES (?, ?)
		`, wf.ID, objID); err != nil {
			return nil, err
		}
	}
	return &wf, nil
}

// GetWorkflow fetches a Workflow plus its step template ids and objects.
func (s *Store) GetWorkflow(ctx context.Context, id UUID) (*Workflow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, pattern_json, state, created_at, updated_at
		FROM workflows WHERE id = ?
	`, id)
	wf, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFoundf("workflow %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if err := s.fillWorkflowRefs(ctx, wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// ListWorkflows lists workflows, optionally excluding archived ones
// (spec.md §4.5: archived workflows are "excluded from default queries").
func (s *Store) ListWorkflows(ctx context.Context, includeArchived bool) ([]Workflow, error) {
	q := `SELECT id, name, description, pattern_json, state, created_at, updated_at FROM workflows`
	if !includeArchived {
		q += ` WHERE state != 'archived'`
	}
	q += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list workflows: %w", err)
	}
	defer rows.Close()

	var out []Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *wf)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	for i := range out {
		if err := s.fillWorkflowRefs(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// UpdateWorkflow replaces name/description and enforces the state
// machine edges of spec.md §4.5 when State differs from the stored value.
func (s *Store) UpdateWorkflow(ctx context.Context, wf Workflow) error {
	return s.withWriteLock(func() error {
		var currentState string
		if err := s.db.QueryRowContext(ctx, `SELECT state FROM workflows WHERE id = ?`, wf.ID).Scan(&currentState); err != nil {
			if err == sql.ErrNoRows {
				return apierr.NotFoundf("workflow %s not found", wf.ID)
			}
			return err
		}
		from := WorkflowState(currentState)
		if wf.State != "" && wf.State != from {
			if !allowedTransitions[from][wf.State] {
				return apierr.PreconditionFailedf("workflow %s cannot transition from %s to %s", wf.ID, from, wf.State)
			}
		} else {
			wf.State = from
		}

		wf.UpdatedAt = nowRFC3339()
		_, err := dbopen.Exec(ctx, s.db, `
			UPDATE workflows SET name = ?, description = ?, state = ?, updated_at = ? WHERE id = ?
		`, wf.Name, wf.Description, string(wf.State), wf.UpdatedAt, wf.ID)
		return err
	})
}

// ActivateWorkflow transitions a workflow to active; called when its
// first Occurrence is recorded (spec.md §4.5).
func (s *Store) ActivateWorkflow(ctx context.Context, id UUID) error {
	return s.withWriteLock(func() error {
		var current string
		if err := s.db.QueryRowContext(ctx, `SELECT state FROM workflows WHERE id = ?`, id).Scan(&current); err != nil {
			if err == sql.ErrNoRows {
				return apierr.NotFoundf("workflow %s not found", id)
			}
			return err
		}
		if WorkflowState(current) != WorkflowDraft {
			return nil
		}
		_, err := dbopen.Exec(ctx, s.db, `UPDATE workflows SET state = ?, updated_at = ? WHERE id = ?`, string(WorkflowActive), nowRFC3339(), id)
		return err
	})
}

// DeleteWorkflow deletes a workflow and, via cascade, exactly its
// occurrences and occurrence-step-instances (spec.md P7).
func (s *Store) DeleteWorkflow(ctx context.Context, id UUID) error {
	return s.withWriteLock(func() error {
		res, err := dbopen.Exec(ctx, s.db, `DELETE FROM workflows WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apierr.NotFoundf("workflow %s not found", id)
		}
		return nil
	})
}

// AddWorkflowObject / RemoveWorkflowObject manage the workflow-object
// junction directly (REST POST|DELETE /workflows/{id}/objects[/{obj}]).
func (s *Store) AddWorkflowObject(ctx context.Context, workflowID, objectID UUID) error {
	return s.withWriteLock(func() error {
		_, err := dbopen.Exec(ctx, s.db, `INSERT OR IGNORE INTO workflow_objects (workflow_id, object_id) VALUES (?, ?)`, workflowID, objectID)
		return err
	})
}

func (s *Store) RemoveWorkflowObject(ctx context.Context, workflowID, objectID UUID) error {
	return s.withWriteLock(func() error {
		_, err := dbopen.Exec(ctx, s.db, `DELETE FROM workflow_objects WHERE workflow_id = ? AND object_id = ?`, workflowID, objectID)
		return err
	})
}

func (s *Store) fillWorkflowRefs(ctx context.Context, wf *Workflow) error {
	stepRows, err := s.db.QueryContext(ctx, `SELECT step_id FROM workflow_steps WHERE workflow_id = ? ORDER BY position ASC`, wf.ID)
	if err != nil {
		return fmt.Errorf("store: workflow steps: %w", err)
	}
	defer stepRows.Close()
	for stepRows.Next() {
		var id UUID
		if err := stepRows.Scan(&id); err != nil {
			return err
		}
		wf.StepIDs = append(wf.StepIDs, id)
	}
	if err := stepRows.Err(); err != nil {
		return err
	}

	objRows, err := s.db.QueryContext(ctx, `SELECT object_id FROM workflow_objects WHERE workflow_id = ?`, wf.ID)
	if err != nil {
		return fmt.Errorf("store: workflow objects: %w", err)
	}
	defer objRows.Close()
	for objRows.Next() {
		var id UUID
		if err := objRows.Scan(&id); err != nil {
			return err
		}
		wf.ObjectIDs = append(wf.ObjectIDs, id)
	}
	return objRows.Err()
}

func scanWorkflow(row scanner) (*Workflow, error) {
	var wf Workflow
	var patternJSON, state string
	if err := row.Scan(&wf.ID, &wf.Name, &wf.Description, &patternJSON, &state, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
		return nil, err
	}
	wf.State = WorkflowState(state)
	if err := json.Unmarshal([]byte(patternJSON), &wf.Pattern); err != nil {
		return nil, fmt.Errorf("store: unmarshal workflow pattern: %w", err)
	}
	return &wf, nil
}
