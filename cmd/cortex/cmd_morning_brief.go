package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cortex/internal/config"
	"cortex/internal/project"
	"cortex/internal/store"
)

var morningBriefCmd = &cobra.Command{
	Use:   "morning-brief",
	Short: "Compile a daily digest of progress, queue, memory stats, and health",
	RunE:  runMorningBrief,
}

func runMorningBrief(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("morning-brief: loading config: %w", err)
	}

	db, err := store.Open(cfg.Memory.DatabasePath)
	if err != nil {
		return fmt.Errorf("morning-brief: opening memory db: %w", err)
	}
	defer db.Close()

	projects, err := project.Open(cfg.Memory.ProjectsDatabasePath)
	if err != nil {
		return fmt.Errorf("morning-brief: opening projects db: %w", err)
	}
	defer projects.Close()

	digest, err := projects.BuildDigest()
	if err != nil {
		return fmt.Errorf("morning-brief: building task digest: %w", err)
	}
	mem, err := db.BuildMemoryStats(time.Now().UTC().Add(-24 * time.Hour))
	if err != nil {
		return fmt.Errorf("morning-brief: building memory stats: %w", err)
	}

	fmt.Println(formatBrief(digest, mem))
	return nil
}

func formatBrief(d project.Digest, mem store.MemoryStats) string {
	var b strings.Builder
	now := time.Now().UTC()
	fmt.Fprintf(&b, "Morning Brief — %s\n\n", now.Format("Jan 02, 2006"))

	b.WriteString("Yesterday:\n")
	if d.CompletedCount > 0 {
		b.WriteString("- Completed: ")
		fmt.Fprintf(&b, "%d task(s) (%s)\n", d.CompletedCount, summarize(d.CompletedTitles, d.CompletedCount))
	} else {
		b.WriteString("- No tasks completed\n")
	}

	b.WriteString("\nToday:\n")
	if d.QueuedCount > 0 {
		fmt.Fprintf(&b, "- Queued: %d task(s) (%s)\n", d.QueuedCount, summarize(d.QueuedTitles, d.QueuedCount))
	} else {
		b.WriteString("- Queue empty\n")
	}
	if d.FailedCount > 0 {
		fmt.Fprintf(&b, "- Failed: %d task(s)\n", d.FailedCount)
	}

	b.WriteString("\nMemory:\n")
	fmt.Fprintf(&b, "- %d new memories (last 24h)\n", mem.NewMemories)
	fmt.Fprintf(&b, "- Knowledge cache: %d facts\n", mem.KnowledgeCount)
	fmt.Fprintf(&b, "- Total memories: %d\n", mem.TotalMemories)

	return b.String()
}

func summarize(titles []string, total int) string {
	shown := titles
	if len(shown) > 3 {
		shown = shown[:3]
	}
	s := strings.Join(shown, ", ")
	if total > len(shown) {
		s += fmt.Sprintf(" +%d more", total-len(shown))
	}
	return s
}
