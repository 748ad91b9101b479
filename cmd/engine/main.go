// Command engine runs the process-mining pipeline: event ingestion,
// object extraction, sessionisation, pattern mining, workflow discovery,
// LLM enrichment, and the REST API that fronts all of it.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowmine/engine/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "engine",
	Short: "Process-mining engine: ingestion, extraction, mining, and the REST API",
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, rulesCmd)
}

// newLogger builds the process-wide slog.Logger from cfg.LogLevel,
// matching the teacher's own JSON-handler-off-a-switch convention.
func newLogger(cfg *config.Config) *slog.Logger {
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

// loadConfig reads process configuration or exits with code 1, per
// spec.md §6's fatal-init-error contract.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	return cfg
}
