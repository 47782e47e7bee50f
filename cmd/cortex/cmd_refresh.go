package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cortex/internal/config"
	"cortex/internal/consolidation"
	"cortex/internal/store"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Flag stale, frequently-used facts for passive re-verification",
	RunE:  runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("db-path")

	if dbPath == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("refresh: loading config: %w", err)
		}
		dbPath = cfg.Memory.DatabasePath
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("refresh: opening %s: %w", dbPath, err)
	}
	defer db.Close()

	summary, err := consolidation.Refresh(db)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	fmt.Printf("refresh: %d flagged, %d already permanent, %d skipped\n",
		summary.Flagged, summary.AlreadyPermanent, summary.Skipped)
	return nil
}
