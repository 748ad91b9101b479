package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/flowmine/engine/dbopen"
)

// LinkProvenance records why an event-object link exists.
type LinkProvenance string

const (
	LinkManual LinkProvenance = "manual"
	LinkLLM    LinkProvenance = "llm"
)

// RuleProvenance formats the provenance string for a rule-derived link.
func RuleProvenance(ruleID UUID) LinkProvenance {
	return LinkProvenance("rule:" + ruleID.String())
}

// ParseRuleProvenance extracts the rule id from a "rule:<id>" provenance
// string. ok is false for any other provenance (manual, llm).
func ParseRuleProvenance(p LinkProvenance) (id UUID, ok bool) {
	const prefix = "rule:"
	s := string(p)
	if !strings.HasPrefix(s, prefix) {
		return UUID{}, false
	}
	parsed, err := ParseUUID(s[len(prefix):])
	if err != nil {
		return UUID{}, false
	}
	return parsed, true
}

// EventObjectLink is the junction between an event and an object.
type EventObjectLink struct {
	BucketID   string
	EventID    int64
	ObjectID   UUID
	Provenance LinkProvenance
	Confidence float64
	CreatedAt  string
}

// LinkEventToObject links event to object; idempotent on the
// (bucket, event, object) triple, per spec.md §4.1. A second call with
// different provenance/confidence updates those columns in place.
func (s *Store) LinkEventToObject(ctx context.Context, bucket string, eventID int64, objectID UUID, provenance LinkProvenance, confidence float64) error {
	return s.withWriteLock(func() error {
		_, err := dbopen.Exec(ctx, s.db, `
			INSERT INTO event_object_links (bucket_id, event_id, object_id, provenance, confidence, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (bucket_id, event_id, object_id) DO UPDATE SET
				provenance = excluded.provenance,
				confidence = excluded.confidence
		`, bucket, eventID, objectID, string(provenance), confidence, nowRFC3339())
		return err
	})
}

// UnlinkEventFromObject removes a link.
func (s *Store) UnlinkEventFromObject(ctx context.Context, bucket string, eventID int64, objectID UUID) error {
	return s.withWriteLock(func() error {
		_, err := dbopen.Exec(ctx, s.db, `
			DELETE FROM event_object_links WHERE bucket_id = ? AND event_id = ? AND object_id = ?
		`, bucket, eventID, objectID)
		return err
	})
}

// ObjectsForEvent returns every link for a given event.
func (s *Store) ObjectsForEvent(ctx context.Context, bucket string, eventID int64) ([]EventObjectLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bucket_id, event_id, object_id, provenance, confidence, created_at
		FROM event_object_links WHERE bucket_id = ? AND event_id = ?
	`, bucket, eventID)
	if err != nil {
		return nil, fmt.Errorf("store: objects for event: %w", err)
	}
	defer rows.Close()
	return scanLinks(rows)
}

// EventsForObject returns every link for a given object, optionally
// bounded to [start, end) by link creation time.
func (s *Store) EventsForObject(ctx context.Context, objectID UUID, start, end string) ([]EventObjectLink, error) {
	q := `SELECT bucket_id, event_id, object_id, provenance, confidence, created_at FROM event_object_links WHERE object_id = ?`
	args := []any{objectID}
	if start != "" {
		q += ` AND created_at >= ?`
		args = append(args, start)
	}
	if end != "" {
		q += ` AND created_at < ?`
		args = append(args, end)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: events for object: %w", err)
	}
	defer rows.Close()
	return scanLinks(rows)
}

// GetLink fetches a single event-object link, or nil if none exists.
func (s *Store) GetLink(ctx context.Context, bucket string, eventID int64, objectID UUID) (*EventObjectLink, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT bucket_id, event_id, object_id, provenance, confidence, created_at
		FROM event_object_links WHERE bucket_id = ? AND event_id = ? AND object_id = ?
	`, bucket, eventID, objectID)
	var l EventObjectLink
	var provenance string
	err := row.Scan(&l.BucketID, &l.EventID, &l.ObjectID, &provenance, &l.Confidence, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get link: %w", err)
	}
	l.Provenance = LinkProvenance(provenance)
	return &l, nil
}

func scanLinks(rows *sql.Rows) ([]EventObjectLink, error) {
	var out []EventObjectLink
	for rows.Next() {
		var l EventObjectLink
		var provenance string
		if err := rows.Scan(&l.BucketID, &l.EventID, &l.ObjectID, &provenance, &l.Confidence, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Provenance = LinkProvenance(provenance)
		out = append(out, l)
	}
	return out, rows.Err()
}
