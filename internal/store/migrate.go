package store

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies all pending schema migrations in order. It is safe to
// call on every startup; goose tracks the applied set in a
// goose_db_version table. A failed migration returns a non-nil error;
// the cmd/engine entrypoint maps that to exit code 3.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("store: set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("store: migrate up: %w", err)
	}
	return nil
}

// Version reports the currently applied migration version.
func Version(db *sql.DB) (int64, error) {
	goose.SetBaseFS(migrationFS)
	defer goose.SetBaseFS(nil)
	return goose.GetDBVersion(db)
}
