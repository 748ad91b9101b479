package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "modernc.org/sqlite"

	"github.com/flowmine/engine/dbopen"
	"github.com/flowmine/engine/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations and exit",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	logger := newLogger(cfg)

	db, err := dbopen.Open(cfg.StorePath, dbopen.WithMkdirAll())
	if err != nil {
		fmt.Fprintln(os.Stderr, "open store:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := store.Migrate(db); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(3)
	}

	version, err := store.Version(db)
	if err != nil {
		logger.Error("read migration version", "error", err)
		os.Exit(3)
	}
	logger.Info("migrated", "version", version)
	return nil
}
