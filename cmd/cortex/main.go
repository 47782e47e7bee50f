// Package main implements the cortex CLI - the entry point for the orchestration
// and memory substrate.
//
// This file is the entry point and command registration hub. Command
// implementations are split across cmd_*.go files for maintainability.
//
// # File Index
//
// Entry Point & Global State:
//   - main.go              - Entry point, rootCmd, global flags, init()
//
// Core Commands:
//   - cmd_serve.go         - serveCmd, wires every internal package into a running process
//   - cmd_consolidate.go   - consolidateCmd
//   - cmd_graduate.go      - graduateCmd
//   - cmd_refresh.go       - refreshCmd
//   - cmd_morning_brief.go - morningBriefCmd
//   - cmd_surface_ideas.go - surfaceIdeasCmd
//   - cmd_ingest.go        - ingestCmd
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"cortex/internal/logging"
)

var (
	verbose    bool
	workspace  string
	configPath string
	timeout    time.Duration

	logger *zap.Logger
)

// rootCmd is the base command. Run without a subcommand, it starts serve —
// cortex is a long-running service, not an interactive shell.
var rootCmd = &cobra.Command{
	Use:   "cortex",
	Short: "cortex - orchestration and memory substrate for a multi-agent assistant",
	Long: `cortex classifies intent, decomposes complex requests into a task DAG,
delegates to subprocess specialist workers, and remembers what it learns across
a two-tier memory engine.

Run without arguments to start the service (equivalent to "cortex serve").`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := logging.Initialize(ws); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to initialize file logging: %v\n", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "Path to config.yaml")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 25*time.Minute, "Operation timeout")

	consolidateCmd.Flags().String("db-path", "", "Path to memory.db (default: config)")
	consolidateCmd.Flags().String("tier", "standard", "Consolidation tier: standard or full")
	consolidateCmd.Flags().Bool("dry-run", false, "Report what would happen without writing")

	graduateCmd.Flags().String("db-path", "", "Path to memory.db (default: config)")
	graduateCmd.Flags().Bool("dry-run", false, "Report what would happen without writing")

	refreshCmd.Flags().String("db-path", "", "Path to memory.db (default: config)")

	ingestCmd.Flags().String("db-path", "", "Path to memory.db (default: config)")
	ingestCmd.Flags().String("user-message", "", "User side of the turn (required)")
	ingestCmd.Flags().String("agent-reply", "", "Agent side of the turn")
	ingestCmd.Flags().String("source-agent", "brain", "Agent attributed as the source of this turn")
	ingestCmd.Flags().StringSlice("tags", nil, "Tags to attach to stored memories")
	ingestCmd.MarkFlagRequired("user-message")

	rootCmd.AddCommand(
		serveCmd,
		consolidateCmd,
		graduateCmd,
		refreshCmd,
		morningBriefCmd,
		surfaceIdeasCmd,
		ingestCmd,
	)
}

func resolveWorkspace() string {
	ws := workspace
	if ws == "" {
		ws, _ = os.Getwd()
		return ws
	}
	if abs, err := filepath.Abs(ws); err == nil {
		return abs
	}
	return ws
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
