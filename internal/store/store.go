// Package store is the durable, single-file embedded relational store for
// events, object types, objects, extraction rules, steps, workflows,
// occurrences, review tasks, jobs, and their junction links.
package store

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/flowmine/engine/dbopen"
)

// Store is the single-writer, multi-reader embedded store. Exactly one
// mutating operation runs at a time (writeMu); reads proceed concurrently
// against a consistent snapshot, per spec.md §5.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// Open opens (or creates) the store at path, applying production pragmas
// and running pending migrations.
func Open(path string) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll())
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// OpenMemoryForTest opens an in-memory store for tests, migrated and
// ready to use.
func OpenMemoryForTest(db *sql.DB) (*Store, error) {
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for callers (e.g. the orchestrator)
// that need a raw read-only query outside this package's CRUD surface.
func (s *Store) DB() *sql.DB { return s.db }

// withWriteLock serialises mutating operations. No mutation may be held
// across a network call, per spec.md §5 — callers must not invoke this
// around anything but local store operations.
func (s *Store) withWriteLock(fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return fn()
}

// withTx serialises a multi-statement mutation via writeMu and runs it
// inside a real SQL transaction (busy-retried by dbopen.RunTx), so a
// failure partway through leaves no partial write committed, per
// spec.md §4.1/§4.6/§7. Mirrors domregistry's AcceptCorrection: every
// statement inside fn must go through tx, never s.db.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return dbopen.RunTx(ctx, s.db, fn)
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
