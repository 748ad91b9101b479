package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowmine/engine/dbopen"
)

// ActorType distinguishes who or what produced an event. Supplemented
// from the original decision-trace implementation (SPEC_FULL.md §3);
// additive, never required on ingest.
type ActorType string

const (
	ActorUser     ActorType = "user"
	ActorAIAgent  ActorType = "ai_agent"
	ActorCompute  ActorType = "compute"
	ActorSystem   ActorType = "system"
	ActorExternal ActorType = "external"
)

// Actor is the optional originator of an event.
type Actor struct {
	ID       UUID
	Type     ActorType
	Name     string
	Metadata map[string]any
	CreatedAt string
}

// UpsertActor inserts or replaces an actor by id.
func (s *Store) UpsertActor(ctx context.Context, a Actor) error {
	return s.withWriteLock(func() error {
		if a.ID.IsZero() {
			a.ID = NewUUID()
		}
		if a.CreatedAt == "" {
			a.CreatedAt = nowRFC3339()
		}
		meta, err := json.Marshal(a.Metadata)
		if err != nil {
			return err
		}
		_, err = dbopen.Exec(ctx, s.db, `
			INSERT INTO actors (id, type, name, metadata_json, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET type = excluded.type, name = excluded.name, metadata_json = excluded.metadata_json
		`, a.ID, string(a.Type), a.Name, string(meta), a.CreatedAt)
		return err
	})
}

// LinkEventToActor records who produced an event.
func (s *Store) LinkEventToActor(ctx context.Context, bucket string, eventID int64, actorID UUID) error {
	return s.withWriteLock(func() error {
		_, err := dbopen.Exec(ctx, s.db, `
			INSERT OR IGNORE INTO event_actors (bucket_id, event_id, actor_id) VALUES (?, ?, ?)
		`, bucket, eventID, actorID)
		return err
	})
}

// ActorActivity returns the (bucket, event_id) pairs an actor produced,
// most recent first, bounding the backing query to limit rows (100 when
// limit is not positive).
func (s *Store) ActorActivity(ctx context.Context, actorID UUID, limit int) ([]EventRef, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ea.bucket_id, ea.event_id FROM event_actors ea
		JOIN events e ON e.bucket_id = ea.bucket_id AND e.id = ea.event_id
		WHERE ea.actor_id = ?
		ORDER BY e.timestamp DESC, e.id DESC
		LIMIT ?
	`, actorID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: actor activity: %w", err)
	}
	defer rows.Close()

	var out []EventRef
	for rows.Next() {
		var r EventRef
		if err := rows.Scan(&r.BucketID, &r.EventID); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EventRef is a lightweight (bucket, id) pointer into the events table.
type EventRef struct {
	BucketID string
	EventID  int64
}
