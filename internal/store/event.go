package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/flowmine/engine/dbopen"
)

// Event is the external, append-only activity record produced by
// watchers. The core never edits these once written; it is scoped by
// bucket and carries an ascending per-bucket integer id (spec.md's
// resolution of the id-type open question).
type Event struct {
	BucketID string
	ID       int64
	Timestamp string // RFC-3339 UTC
	Duration  float64
	Data      map[string]any
}

// App returns data["app"] as a string, or "".
func (e Event) App() string { return stringField(e.Data, "app") }

// URL returns data["url"] as a string, or "".
func (e Event) URL() string { return stringField(e.Data, "url") }

// Title returns data["title"] as a string, or "".
func (e Event) Title() string { return stringField(e.Data, "title") }

// OCRText returns data["ocr_text"] as a string, or "".
func (e Event) OCRText() string { return stringField(e.Data, "ocr_text") }

func stringField(data map[string]any, key string) string {
	v, ok := data[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// IngestEvent appends a single event. Real deployments receive this from
// a watcher process; it is exposed here because this single-file store is
// the concrete implementation of the read/write contract spec.md §1
// requires of the (externally specified) event bucket.
func (s *Store) IngestEvent(ctx context.Context, e Event) error {
	return s.withWriteLock(func() error {
		data, err := json.Marshal(e.Data)
		if err != nil {
			return fmt.Errorf("store: marshal event data: %w", err)
		}
		_, err = dbopen.Exec(ctx, s.db, `
			INSERT INTO events (bucket_id, id, timestamp, duration_seconds, data_json)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (bucket_id, id) DO UPDATE SET
				timestamp = excluded.timestamp,
				duration_seconds = excluded.duration_seconds,
				data_json = excluded.data_json
		`, e.BucketID, e.ID, e.Timestamp, e.Duration, string(data))
		return err
	})
}

// ReadEvents returns events for bucket in [start, end), ordered by
// timestamp ascending with a stable tie-break on id, per spec.md §4.1.
func (s *Store) ReadEvents(ctx context.Context, bucket string, start, end string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bucket_id, id, timestamp, duration_seconds, data_json
		FROM events
		WHERE bucket_id = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC, id ASC
	`, bucket, start, end)
	if err != nil {
		return nil, fmt.Errorf("store: read events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var dataJSON string
		if err := rows.Scan(&e.BucketID, &e.ID, &e.Timestamp, &e.Duration, &dataJSON); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(dataJSON), &e.Data); err != nil {
			return nil, fmt.Errorf("store: unmarshal event data: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetEvent fetches a single event by (bucket, id).
func (s *Store) GetEvent(ctx context.Context, bucket string, id int64) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT bucket_id, id, timestamp, duration_seconds, data_json
		FROM events WHERE bucket_id = ? AND id = ?
	`, bucket, id)
	var e Event
	var dataJSON string
	if err := row.Scan(&e.BucketID, &e.ID, &e.Timestamp, &e.Duration, &dataJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get event: %w", err)
	}
	if err := json.Unmarshal([]byte(dataJSON), &e.Data); err != nil {
		return nil, fmt.Errorf("store: unmarshal event data: %w", err)
	}
	return &e, nil
}
