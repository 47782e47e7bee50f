package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cortex/internal/config"
	"cortex/internal/consolidation"
	"cortex/internal/store"
)

var graduateCmd = &cobra.Command{
	Use:   "graduate",
	Short: "Promote, decay, or flag knowledge_cache facts based on access history",
	RunE:  runGraduate,
}

func runGraduate(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("db-path")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	if dbPath == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("graduate: loading config: %w", err)
		}
		dbPath = cfg.Memory.DatabasePath
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("graduate: opening %s: %w", dbPath, err)
	}
	defer db.Close()

	summary, err := consolidation.Graduate(db, dryRun)
	if err != nil {
		return fmt.Errorf("graduate: %w", err)
	}

	fmt.Printf("graduation: %d promoted, %d decayed, %d flagged for reverify\n",
		summary.Promoted, summary.Decayed, summary.FlaggedForReverify)
	return nil
}
