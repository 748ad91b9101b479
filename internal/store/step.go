package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/flowmine/engine/dbopen"
	"github.com/flowmine/engine/internal/apierr"
)

// Step is a labelled grouping of consecutive same-activity events within
// a case, as synthesised by the case builder (or created manually).
type Step struct {
	ID        UUID
	Name      string
	Start     string
	End       string
	Duration  float64
	Data      map[string]any
	Events    []EventRef
	ObjectIDs []UUID
	CreatedAt string
	UpdatedAt string
}

// CreateStep persists a Step along with its event and object references.
func (s *Store) CreateStep(ctx context.Context, st Step) (*Step, error) {
	created, err := s.CreateSteps(ctx, []Step{st})
	if err != nil {
		return nil, err
	}
	return &created[0], nil
}

// CreateSteps persists many steps, each with its event and object
// references, in one transaction — the batch-persist unit the case
// builder and orchestrator use at the end of a sessionization pass, per
// spec.md §4.6 ("writing all results in one transaction at the end of
// each step").
func (s *Store) CreateSteps(ctx context.Context, steps []Step) ([]Step, error) {
	out := make([]Step, len(steps))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for i, st := range steps {
			created, err := createStepTx(ctx, tx, st)
			if err != nil {
				return fmt.Errorf("create step %d: %w", i, err)
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

func createStepTx(ctx context.Context, tx *sql.Tx, st Step) (*Step, error) {
	if st.ID.IsZero() {
		st.ID = NewUUID()
	}
	now := nowRFC3339()
	st.CreatedAt, st.UpdatedAt = now, now

	data, err := json.Marshal(st.Data)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO steps (id, name, start_ts, end_ts, duration_seconds, data_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, st.ID, st.Name, st.Start, st.End, st.Duration, string(data), st.CreatedAt, st.UpdatedAt); err != nil {
		return nil, err
	}
	for i, ev := range st.Events {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO step_events (step_id, bucket_id, event_id, position) VALUES (?, ?, ?, ?)
		`, st.ID, ev.BucketID, ev.EventID, i); err != nil {
			return nil, err
		}
	}
	for _, objID := range st.ObjectIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO step_objects (step_id, object_id) VALUES (?, ?)
		`, st.ID, objID); err != nil {
			return nil, err
		}
	}
	return &st, nil
}

// GetStep fetches a Step plus its event and object references.
func (s *Store) GetStep(ctx context.Context, id UUID) (*Step, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, start_ts, end_ts, duration_seconds, data_json, created_at, updated_at
		FROM steps WHERE id = ?
	`, id)
	st, err := scanStep(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFoundf("step %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if err := s.fillStepRefs(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// ListSteps lists every step, newest first.
func (s *Store) ListSteps(ctx context.Context, limit int) ([]Step, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, start_ts, end_ts, duration_seconds, data_json, created_at, updated_at
		FROM steps ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list steps: %w", err)
	}
	defer rows.Close()

	var out []Step
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	for i := range out {
		if err := s.fillStepRefs(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// UpdateStep replaces a step's name and data.
func (s *Store) UpdateStep(ctx context.Context, st Step) error {
	return s.withWriteLock(func() error {
		data, err := json.Marshal(st.Data)
		if err != nil {
			return err
		}
		st.UpdatedAt = nowRFC3339()
		res, err := dbopen.Exec(ctx, s.db, `
			UPDATE steps SET name = ?, data_json = ?, updated_at = ? WHERE id = ?
		`, st.Name, string(data), st.UpdatedAt, st.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apierr.NotFoundf("step %s not found", st.ID)
		}
		return nil
	})
}

// DeleteStep removes a step and its junction rows.
func (s *Store) DeleteStep(ctx context.Context, id UUID) error {
	return s.withWriteLock(func() error {
		res, err := dbopen.Exec(ctx, s.db, `DELETE FROM steps WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apierr.NotFoundf("step %s not found", id)
		}
		return nil
	})
}

// AddStepObject links an object to a step.
func (s *Store) AddStepObject(ctx context.Context, stepID, objectID UUID) error {
	return s.withWriteLock(func() error {
		_, err := dbopen.Exec(ctx, s.db, `INSERT OR IGNORE INTO step_objects (step_id, object_id) VALUES (?, ?)`, stepID, objectID)
		return err
	})
}

// RemoveStepObject unlinks an object from a step.
func (s *Store) RemoveStepObject(ctx context.Context, stepID, objectID UUID) error {
	return s.withWriteLock(func() error {
		_, err := dbopen.Exec(ctx, s.db, `DELETE FROM step_objects WHERE step_id = ? AND object_id = ?`, stepID, objectID)
		return err
	})
}

func (s *Store) fillStepRefs(ctx context.Context, st *Step) error {
	evRows, err := s.db.QueryContext(ctx, `
		SELECT bucket_id, event_id FROM step_events WHERE step_id = ? ORDER BY position ASC
	`, st.ID)
	if err != nil {
		return fmt.Errorf("store: step events: %w", err)
	}
	defer evRows.Close()
	for evRows.Next() {
		var r EventRef
		if err := evRows.Scan(&r.BucketID, &r.EventID); err != nil {
			return err
		}
		st.Events = append(st.Events, r)
	}
	if err := evRows.Err(); err != nil {
		return err
	}

	objRows, err := s.db.QueryContext(ctx, `SELECT object_id FROM step_objects WHERE step_id = ?`, st.ID)
	if err != nil {
		return fmt.Errorf("store: step objects: %w", err)
	}
	defer objRows.Close()
	for objRows.Next() {
		var id UUID
		if err := objRows.Scan(&id); err != nil {
			return err
		}
		st.ObjectIDs = append(st.ObjectIDs, id)
	}
	return objRows.Err()
}

func scanStep(row scanner) (*Step, error) {
	var st Step
	var dataJSON string
	if err := row.Scan(&st.ID, &st.Name, &st.Start, &st.End, &st.Duration, &dataJSON, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(dataJSON), &st.Data); err != nil {
		return nil, fmt.Errorf("store: unmarshal step data: %w", err)
	}
	return &st, nil
}
