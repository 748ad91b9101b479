package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flowmine/engine/dbopen"
	"github.com/flowmine/engine/internal/apierr"
)

// ObjectType describes a kind of business object. Types are user-defined
// but include a seeded default set; an optional JSON Schema validates the
// `data` mapping of instances.
type ObjectType struct {
	Name        string
	DisplayName string
	Schema      json.RawMessage // nil if unset
	Icon        string
	Color       string
	CreatedAt   string
	UpdatedAt   string
}

// CreateObjectType inserts a new ObjectType. Duplicate names are a
// conflict error.
func (s *Store) CreateObjectType(ctx context.Context, ot ObjectType) error {
	return s.withWriteLock(func() error {
		now := nowRFC3339()
		ot.CreatedAt, ot.UpdatedAt = now, now
		_, err := dbopen.Exec(ctx, s.db, `
			INSERT INTO object_types (name, display_name, schema_json, icon, color, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, ot.Name, ot.DisplayName, nullRaw(ot.Schema), ot.Icon, ot.Color, ot.CreatedAt, ot.UpdatedAt)
		if isUniqueViolation(err) {
			return apierr.Conflictf("object type %q already exists", ot.Name)
		}
		return err
	})
}

// GetObjectType fetches an ObjectType by name.
func (s *Store) GetObjectType(ctx context.Context, name string) (*ObjectType, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, display_name, schema_json, icon, color, created_at, updated_at
		FROM object_types WHERE name = ?
	`, name)
	ot, err := scanObjectType(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFoundf("object type %q not found", name)
	}
	return ot, err
}

// getObjectTypeTx is GetObjectType's tx-scoped twin, for callers that
// need the read inside a transaction alongside the write it validates.
func getObjectTypeTx(ctx context.Context, tx *sql.Tx, name string) (*ObjectType, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT name, display_name, schema_json, icon, color, created_at, updated_at
		FROM object_types WHERE name = ?
	`, name)
	ot, err := scanObjectType(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFoundf("object type %q not found", name)
	}
	return ot, err
}

// ListObjectTypes returns every ObjectType, ordered by name.
func (s *Store) ListObjectTypes(ctx context.Context) ([]ObjectType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, display_name, schema_json, icon, color, created_at, updated_at
		FROM object_types ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list object types: %w", err)
	}
	defer rows.Close()

	var out []ObjectType
	for rows.Next() {
		ot, err := scanObjectType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ot)
	}
	return out, rows.Err()
}

// UpdateObjectType updates display name, schema, icon, and color.
func (s *Store) UpdateObjectType(ctx context.Context, ot ObjectType) error {
	return s.withWriteLock(func() error {
		ot.UpdatedAt = nowRFC3339()
		res, err := dbopen.Exec(ctx, s.db, `
			UPDATE object_types
			SET display_name = ?, schema_json = ?, icon = ?, color = ?, updated_at = ?
			WHERE name = ?
		`, ot.DisplayName, nullRaw(ot.Schema), ot.Icon, ot.Color, ot.UpdatedAt, ot.Name)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apierr.NotFoundf("object type %q not found", ot.Name)
		}
		return nil
	})
}

// DeleteObjectType removes an ObjectType. Forbidden while any Object of
// that type exists (spec.md §3).
func (s *Store) DeleteObjectType(ctx context.Context, name string) error {
	return s.withWriteLock(func() error {
		var count int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM objects WHERE type = ?`, name).Scan(&count); err != nil {
			return fmt.Errorf("store: count objects of type: %w", err)
		}
		if count > 0 {
			return apierr.PreconditionFailedf("object type %q has %d objects; delete them first", name, count)
		}
		res, err := dbopen.Exec(ctx, s.db, `DELETE FROM object_types WHERE name = ?`, name)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apierr.NotFoundf("object type %q not found", name)
		}
		return nil
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanObjectType(row scanner) (*ObjectType, error) {
	var ot ObjectType
	var schema sql.NullString
	if err := row.Scan(&ot.Name, &ot.DisplayName, &schema, &ot.Icon, &ot.Color, &ot.CreatedAt, &ot.UpdatedAt); err != nil {
		return nil, err
	}
	if schema.Valid {
		ot.Schema = json.RawMessage(schema.String)
	}
	return &ot, nil
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
