package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/flowmine/engine/internal/apierr"
)

// validateAgainstSchema checks data against objType's optional JSON
// Schema (spec.md §3: "optional schema for the data mapping of its
// instances"). A type with no schema configured always passes.
func (s *Store) validateAgainstSchema(ctx context.Context, objType string, data map[string]any) error {
	ot, err := s.GetObjectType(ctx, objType)
	if err != nil {
		return err
	}
	return validateDataAgainstType(ot, data)
}

// validateAgainstSchemaTx is validateAgainstSchema's tx-scoped twin, used
// by object mutations that run inside a single transaction so the schema
// lookup reads the same transaction as the write it is guarding.
func validateAgainstSchemaTx(ctx context.Context, tx *sql.Tx, objType string, data map[string]any) error {
	ot, err := getObjectTypeTx(ctx, tx, objType)
	if err != nil {
		return err
	}
	return validateDataAgainstType(ot, data)
}

func validateDataAgainstType(ot *ObjectType, data map[string]any) error {
	if len(ot.Schema) == 0 {
		return nil
	}

	var raw any
	if err := json.Unmarshal(ot.Schema, &raw); err != nil {
		return apierr.Wrap(apierr.Internal, "stored schema is not valid JSON", err)
	}

	var sch jsonschema.Schema
	if err := json.Unmarshal(ot.Schema, &sch); err != nil {
		return apierr.Wrap(apierr.Internal, "stored schema could not be parsed", err)
	}
	resolved, err := sch.Resolve(nil)
	if err != nil {
		return apierr.Wrap(apierr.Internal, "stored schema could not be resolved", err)
	}
	if err := resolved.Validate(data); err != nil {
		return apierr.Wrap(apierr.InvalidArgument, fmt.Sprintf("object data does not match schema for type %q", ot.Name), err)
	}
	return nil
}
