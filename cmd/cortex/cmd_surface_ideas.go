package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cortex/internal/config"
	"cortex/internal/ideas"
	"cortex/internal/llmclient"
	"cortex/internal/project"
	"cortex/internal/store"
	"cortex/internal/usage"
)

var surfaceIdeasCmd = &cobra.Command{
	Use:   "surface-ideas",
	Short: "Weekly pattern analysis that suggests backlog ideas",
	RunE:  runSurfaceIdeas,
}

func runSurfaceIdeas(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("surface-ideas: loading config: %w", err)
	}

	db, err := store.Open(cfg.Memory.DatabasePath)
	if err != nil {
		return fmt.Errorf("surface-ideas: opening memory db: %w", err)
	}
	defer db.Close()

	projects, err := project.Open(cfg.Memory.ProjectsDatabasePath)
	if err != nil {
		return fmt.Errorf("surface-ideas: opening projects db: %w", err)
	}
	defer projects.Close()

	tracker, err := usage.NewTracker(cfg.Workspace)
	if err != nil {
		return fmt.Errorf("surface-ideas: constructing usage tracker: %w", err)
	}
	recorder := usage.NewRecorder(tracker, db, "idea_surfacer")
	llm := llmclient.New(cfg.LLM.APIKeys, recorder)

	suggestions, err := ideas.Surface(cmd.Context(), db, projects, llm, cfg.LLM.DefaultModel)
	if err != nil {
		return fmt.Errorf("surface-ideas: %w", err)
	}
	if len(suggestions) == 0 {
		fmt.Println("surface-ideas: no ideas generated this cycle")
		return nil
	}

	titles, err := ideas.AddToBacklog(projects, suggestions)
	if err != nil {
		return fmt.Errorf("surface-ideas: %w", err)
	}

	fmt.Printf("surface-ideas: added %d idea(s): %s\n", len(titles), strings.Join(titles, ", "))
	return nil
}
