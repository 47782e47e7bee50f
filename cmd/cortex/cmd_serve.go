package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"cortex/internal/brain"
	"cortex/internal/bus"
	"cortex/internal/config"
	"cortex/internal/embedding"
	"cortex/internal/guardian"
	"cortex/internal/ingest"
	"cortex/internal/llmclient"
	"cortex/internal/logging"
	"cortex/internal/project"
	"cortex/internal/retrieval"
	"cortex/internal/session"
	"cortex/internal/store"
	transporthttp "cortex/internal/transport/http"
	"cortex/internal/usage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchestrator, guardian loops, and HTTP transport",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("serve: loading config: %w", err)
	}
	if workspace != "" {
		cfg.Workspace = resolveWorkspace()
	}
	logging.Boot("cortex serve starting (workspace=%s)", cfg.Workspace)

	db, err := store.Open(cfg.Memory.DatabasePath)
	if err != nil {
		return fmt.Errorf("serve: opening memory db: %w", err)
	}
	defer db.Close()

	b, err := bus.Open(cfg.Bus.DatabasePath)
	if err != nil {
		return fmt.Errorf("serve: opening bus db: %w", err)
	}
	defer b.Close()

	if cfg.Bus.NATSURL != "" {
		if _, err := bus.NewFanOut(cfg.Bus.NATSURL); err != nil {
			logging.BootWarn("serve: NATS fan-out unavailable, continuing without it: %v", err)
		} else {
			logging.Boot("serve: NATS fan-out connected at %s", cfg.Bus.NATSURL)
		}
	}

	projects, err := project.Open(cfg.Memory.ProjectsDatabasePath)
	if err != nil {
		return fmt.Errorf("serve: opening projects db: %w", err)
	}
	defer projects.Close()

	embedder, err := embedding.NewEngine(embeddingConfigFrom(cfg))
	if err != nil {
		return fmt.Errorf("serve: constructing embedding engine: %w", err)
	}

	retr := retrieval.NewEngine(db, embedder)
	ingestPipeline := ingest.NewPipeline(db, embedder)

	tracker, err := usage.NewTracker(cfg.Workspace)
	if err != nil {
		return fmt.Errorf("serve: constructing usage tracker: %w", err)
	}
	recorder := usage.NewRecorder(tracker, db, "brain")
	llm := llmclient.New(cfg.LLM.APIKeys, recorder)

	sessions := session.NewManager(cfg.Session.SpawnBinary, "TEAM.md", cfg.LLM.DefaultModel)

	orchestrator := brain.New(llm, b, db, projects, sessions, retr, ingestPipeline, cfg.LLM.DefaultModel)

	scanner := guardian.NewScanner(llm, cfg.LLM.DefaultModel)
	budget := guardian.NewBudgetTracker(cfg.Guardian.RedisURL, cfg.Guardian.DailyTokenBudget)
	g := guardian.New(b, db, scanner, budget)

	server := transporthttp.NewServer(cfg.HTTP.ListenAddr, cfg.HTTP.CORSOrigins, orchestrator)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		g.Run(egCtx)
		return nil
	})
	eg.Go(func() error {
		logging.Boot("serve: HTTP transport listening on %s", cfg.HTTP.ListenAddr)
		return server.ListenAndServe(egCtx)
	})

	if err := eg.Wait(); err != nil && egCtx.Err() == nil {
		return fmt.Errorf("serve: %w", err)
	}
	logging.Boot("cortex serve shutting down")
	return nil
}

// embeddingConfigFrom adapts config.EmbeddingConfig to embedding.Config — the
// two types exist in different packages with different defaulting concerns
// (config's is YAML/env-driven, embedding's is the engine's own surface).
func embeddingConfigFrom(cfg *config.Config) embedding.Config {
	return embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
		TaskType:       "SEMANTIC_SIMILARITY",
	}
}
