package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"dario.cat/mergo"

	"github.com/flowmine/engine/internal/apierr"
)

// Object is a concrete business entity: an order, invoice, customer, etc.
// (type, name) is unique; the extractor and UpsertObject dedupe on it.
type Object struct {
	ID        UUID
	Type      string
	Name      string
	Data      map[string]any
	CreatedAt string
	UpdatedAt string
}

// UpsertObject enforces the (type, name) uniqueness invariant of
// spec.md §4.1: if no object exists, one is created; if one exists, its
// data is merged (new keys win, existing keys preserved unless replace is
// true) and updated_at is bumped. The merge itself is dario.cat/mergo
// rather than a hand-rolled map walk.
func (s *Store) UpsertObject(ctx context.Context, objType, name string, data map[string]any, replace bool) (*Object, error) {
	var result *Object
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := validateAgainstSchemaTx(ctx, tx, objType, data); err != nil {
			return err
		}

		existing, err := getObjectByTypeNameTx(ctx, tx, objType, name)
		if err != nil {
			return err
		}

		now := nowRFC3339()
		if existing == nil {
			obj := &Object{
				ID:        NewUUID(),
				Type:      objType,
				Name:      name,
				Data:      data,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := insertObjectTx(ctx, tx, obj); err != nil {
				return err
			}
			result = obj
			return nil
		}

		merged := cloneMap(existing.Data)
		if replace {
			if err := mergo.Merge(&merged, data, mergo.WithOverride); err != nil {
				return fmt.Errorf("store: merge object data: %w", err)
			}
		} else {
			if err := mergo.Merge(&merged, data); err != nil {
				return fmt.Errorf("store: merge object data: %w", err)
			}
		}
		existing.Data = merged
		existing.UpdatedAt = now
		if err := updateObjectDataTx(ctx, tx, existing); err != nil {
			return err
		}
		result = existing
		return nil
	})
	return result, err
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// insertObjectTx inserts an object and its FTS shadow row in one
// transaction, so an INSERT that succeeds never leaves the name
// unsearchable (spec.md §4.1).
func insertObjectTx(ctx context.Context, tx *sql.Tx, obj *Object) error {
	data, err := json.Marshal(obj.Data)
	if err != nil {
		return fmt.Errorf("store: marshal object data: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO objects (id, type, name, data_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, obj.ID, obj.Type, obj.Name, string(data), obj.CreatedAt, obj.UpdatedAt)
	if isUniqueViolation(err) {
		return apierr.Conflictf("object (%s, %s) already exists", obj.Type, obj.Name)
	}
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO objects_fts (rowid, object_id, name)
		SELECT rowid, id, name FROM objects WHERE id = ?
	`, obj.ID)
	return err
}

func updateObjectDataTx(ctx context.Context, tx *sql.Tx, obj *Object) error {
	data, err := json.Marshal(obj.Data)
	if err != nil {
		return fmt.Errorf("store: marshal object data: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE objects SET data_json = ?, updated_at = ? WHERE id = ?
	`, string(data), obj.UpdatedAt, obj.ID)
	return err
}

func getObjectByTypeNameTx(ctx context.Context, tx *sql.Tx, objType, name string) (*Object, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, type, name, data_json, created_at, updated_at
		FROM objects WHERE type = ? AND name = ?
	`, objType, name)
	obj, err := scanObject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return obj, err
}

// GetObject fetches an Object by id.
func (s *Store) GetObject(ctx context.Context, id UUID) (*Object, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, name, data_json, created_at, updated_at
		FROM objects WHERE id = ?
	`, id)
	obj, err := scanObject(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFoundf("object %s not found", id)
	}
	return obj, err
}

// ObjectListFilter narrows ListObjects.
type ObjectListFilter struct {
	Type  string
	Query string
	Start string
	End   string
	Limit int
}

// ListObjects lists objects matching filter, newest first.
func (s *Store) ListObjects(ctx context.Context, f ObjectListFilter) ([]Object, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, type, name, data_json, created_at, updated_at FROM objects WHERE 1=1`
	var args []any
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, f.Type)
	}
	if f.Start != "" {
		query += ` AND created_at >= ?`
		args = append(args, f.Start)
	}
	if f.End != "" {
		query += ` AND created_at < ?`
		args = append(args, f.End)
	}
	if f.Query != "" {
		query += ` AND id IN (SELECT object_id FROM objects_fts WHERE objects_fts MATCH ?)`
		args = append(args, f.Query+"*")
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list objects: %w", err)
	}
	defer rows.Close()

	var out []Object
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *obj)
	}
	return out, rows.Err()
}

// UpdateObject replaces name/data directly (manual REST edit, not the
// extractor's merge path).
func (s *Store) UpdateObject(ctx context.Context, obj Object) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := validateAgainstSchemaTx(ctx, tx, obj.Type, obj.Data); err != nil {
			return err
		}
		data, err := json.Marshal(obj.Data)
		if err != nil {
			return fmt.Errorf("store: marshal object data: %w", err)
		}
		obj.UpdatedAt = nowRFC3339()
		res, err := tx.ExecContext(ctx, `
			UPDATE objects SET name = ?, data_json = ?, updated_at = ? WHERE id = ?
		`, obj.Name, string(data), obj.UpdatedAt, obj.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apierr.NotFoundf("object %s not found", obj.ID)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE objects_fts SET name = ? WHERE object_id = ?
		`, obj.Name, obj.ID)
		return err
	})
}

// DeleteObject removes an Object; its links and junction rows cascade.
func (s *Store) DeleteObject(ctx context.Context, id UUID) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM objects WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apierr.NotFoundf("object %s not found", id)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM objects_fts WHERE object_id = ?`, id)
		return err
	})
}

func scanObject(row scanner) (*Object, error) {
	var o Object
	var dataJSON string
	if err := row.Scan(&o.ID, &o.Type, &o.Name, &dataJSON, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(dataJSON), &o.Data); err != nil {
		return nil, fmt.Errorf("store: unmarshal object data: %w", err)
	}
	return &o, nil
}
