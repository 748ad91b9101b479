package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "modernc.org/sqlite"

	"github.com/flowmine/engine/internal/seed"
	"github.com/flowmine/engine/internal/store"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage extraction rules",
}

var rulesSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the default ObjectType and ExtractionRule set",
	RunE:  runRulesSeed,
}

func init() {
	rulesCmd.AddCommand(rulesSeedCmd)
}

func runRulesSeed(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	logger := newLogger(cfg)

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open store:", err)
		os.Exit(1)
	}
	defer st.Close()

	d, err := seed.Default()
	if err != nil {
		return err
	}
	if err := seed.Apply(context.Background(), st, d); err != nil {
		return err
	}
	logger.Info("seeded", "object_types", len(d.ObjectTypes), "extraction_rules", len(d.ExtractionRules))
	return nil
}
