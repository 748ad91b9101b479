package store

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// UUID wraps google/uuid.UUID with database/sql Scanner/Valuer so it
// stores as a 16-byte BLOB rather than a 36-byte TEXT column.
type UUID struct {
	uuid.UUID
}

// NewUUID generates a time-sortable UUIDv7.
func NewUUID() UUID {
	return UUID{uuid.Must(uuid.NewV7())}
}

// ParseUUID parses s into a UUID, returning an error on malformed input.
func ParseUUID(s string) (UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, fmt.Errorf("store: parse uuid: %w", err)
	}
	return UUID{u}, nil
}

// MustParseUUID parses s and panics on error; for constants in tests.
func MustParseUUID(s string) UUID {
	return UUID{uuid.MustParse(s)}
}

// IsZero reports whether u is the zero-value UUID.
func (u UUID) IsZero() bool { return u.UUID == uuid.Nil }

// Value implements driver.Valuer, storing the 16 raw bytes.
func (u UUID) Value() (driver.Value, error) {
	return u.UUID[:], nil
}

// Scan implements sql.Scanner, accepting either a 16-byte BLOB or a
// 36-byte TEXT representation.
func (u *UUID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*u = UUID{}
		return nil
	case []byte:
		if len(v) == 16 {
			var raw uuid.UUID
			copy(raw[:], v)
			u.UUID = raw
			return nil
		}
		parsed, err := uuid.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("store: scan uuid: %w", err)
		}
		u.UUID = parsed
		return nil
	case string:
		parsed, err := uuid.Parse(v)
		if err != nil {
			return fmt.Errorf("store: scan uuid: %w", err)
		}
		u.UUID = parsed
		return nil
	default:
		return fmt.Errorf("store: scan uuid: unsupported type %T", src)
	}
}
