package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cortex/internal/config"
	"cortex/internal/embedding"
	"cortex/internal/ingest"
	"cortex/internal/store"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "One-shot memory ingest, for scripting or testing",
	RunE:  runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("ingest: loading config: %w", err)
	}

	dbPath, _ := cmd.Flags().GetString("db-path")
	if dbPath == "" {
		dbPath = cfg.Memory.DatabasePath
	}
	userMessage, _ := cmd.Flags().GetString("user-message")
	agentReply, _ := cmd.Flags().GetString("agent-reply")
	sourceAgent, _ := cmd.Flags().GetString("source-agent")
	tags, _ := cmd.Flags().GetStringSlice("tags")

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("ingest: opening %s: %w", dbPath, err)
	}
	defer db.Close()

	embedder, err := embedding.NewEngine(embeddingConfigFrom(cfg))
	if err != nil {
		return fmt.Errorf("ingest: constructing embedding engine: %w", err)
	}
	pipeline := ingest.NewPipeline(db, embedder)

	ids, err := pipeline.Ingest(cmd.Context(), ingest.Turn{
		UserMessage: userMessage,
		AgentReply:  agentReply,
		SourceAgent: sourceAgent,
		Tags:        tags,
	})
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	fmt.Printf("ingest: stored %d memor(ies): %s\n", len(ids), strings.Join(ids, ", "))
	return nil
}
