package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cortex/internal/config"
	"cortex/internal/consolidation"
	"cortex/internal/store"
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Cluster and summarize aging short-term memories into long-term ones",
	RunE:  runConsolidate,
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("db-path")
	tier, _ := cmd.Flags().GetString("tier")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	if dbPath == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("consolidate: loading config: %w", err)
		}
		dbPath = cfg.Memory.DatabasePath
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("consolidate: opening %s: %w", dbPath, err)
	}
	defer db.Close()

	summary, err := consolidation.Run(db, tier, dryRun)
	if err != nil {
		return fmt.Errorf("consolidate: %w", err)
	}

	fmt.Printf("consolidation: %d cluster(s), %d memor(ies) merged, %d pruned\n",
		summary.Clusters, summary.Consolidated, summary.Pruned)
	return nil
}
