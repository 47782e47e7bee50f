// Package ideas implements the weekly pattern-analysis job that scans the
// knowledge graph and recent memory for untracked threads and suggests
// backlog ideas from them.
package ideas

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cortex/internal/llmclient"
	"cortex/internal/logging"
	"cortex/internal/project"
	"cortex/internal/store"
)

const (
	recentWindow        = 14 * 24 * time.Hour
	highImportanceFloor = 0.7
	maxPatternsPerKind  = 5
	maxDroppedThreads   = 5
)

// Idea is a single suggested backlog entry.
type Idea struct {
	Title       string
	Description string
	Domain      string
}

var threadKeywords = []string{"should", "could", "want to", "need to", "idea", "improve"}

// Surface analyzes the memory store for patterns worth turning into backlog
// ideas: frequently cross-referenced topics, recent high-importance
// memories, and mentions of work that was never tracked as a project or
// idea. It asks llm to turn the collected context into 1-2 concrete
// suggestions; if the call fails or returns nothing, no ideas are
// generated — unlike consolidation and graduation, idea surfacing is
// inherently speculative and has no safe non-LLM fallback worth keeping.
func Surface(ctx context.Context, db *store.DB, projects *project.Store, llm *llmclient.Client, model string) ([]Idea, error) {
	var sections []string

	if patterns := knowledgeGraphPatterns(db); len(patterns) > 0 {
		sections = append(sections, "Knowledge graph patterns:\n"+bulletJoin(patterns))
	}

	threads, err := droppedThreads(db, projects)
	if err != nil {
		return nil, fmt.Errorf("ideas: finding dropped threads: %w", err)
	}
	if len(threads) > 0 {
		sections = append(sections, "Dropped threads (mentioned but untracked):\n"+bulletJoin(threads))
	}

	if len(sections) == 0 {
		logging.BrainDebug("ideas: no patterns found to generate ideas from")
		return nil, nil
	}

	joined := strings.Join(sections, "\n\n")
	return generateIdeas(ctx, llm, model, joined)
}

// knowledgeGraphPatterns surfaces the most cross-referenced memories and the
// most recent high-importance ones.
func knowledgeGraphPatterns(db *store.DB) []string {
	var patterns []string

	all, err := db.ListAllMemories()
	if err != nil {
		logging.StoreWarn("ideas: listing memories: %v", err)
		return patterns
	}

	linkCounts := map[string]int{}
	for _, m := range all {
		links, err := db.LinksFrom(m.ID)
		if err != nil {
			continue
		}
		for _, l := range links {
			if l.RelationType == store.RelationRelatedTo {
				linkCounts[m.ID]++
			}
		}
	}
	top := topByCount(all, linkCounts, maxPatternsPerKind)
	for _, m := range top {
		patterns = append(patterns, fmt.Sprintf("Frequently linked topic (%d connections): %s", linkCounts[m.ID], preview(m.Content, 100)))
	}

	cutoff := time.Now().UTC().Add(-recentWindow)
	recentHighImportance := filterMemories(all, func(m *store.Memory) bool {
		return m.Importance >= highImportanceFloor && m.CreatedAt.After(cutoff)
	})
	for i, m := range recentHighImportance {
		if i >= 10 {
			break
		}
		patterns = append(patterns, fmt.Sprintf("High-importance: %s [tags: %s]", preview(m.Content, 80), strings.Join(m.Tags, ",")))
	}

	return patterns
}

// droppedThreads finds recent memories that sound like unfinished work but
// don't correspond to any tracked project or backlog idea.
func droppedThreads(db *store.DB, projects *project.Store) ([]string, error) {
	all, err := db.ListAllMemories()
	if err != nil {
		return nil, err
	}

	existing, err := projects.ExistingNames()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-recentWindow)
	recent := filterMemories(all, func(m *store.Memory) bool { return m.CreatedAt.After(cutoff) })

	var threads []string
	for _, m := range recent {
		if len(threads) >= maxDroppedThreads {
			break
		}
		content := preview(m.Content, 120)
		lower := strings.ToLower(content)
		if !containsAny(lower, threadKeywords) {
			continue
		}
		if mentionsExisting(lower, existing) {
			continue
		}
		threads = append(threads, "Untracked mention: "+content)
	}
	return threads, nil
}

func generateIdeas(ctx context.Context, llm *llmclient.Client, model, analysisContext string) ([]Idea, error) {
	prompt := fmt.Sprintf("Based on this analysis of recent work and patterns, suggest 1-2 concrete, actionable project ideas:\n\n%s", analysisContext)
	parsed, resp := llm.GenerateJSON(ctx, llmclient.Request{
		Model:       model,
		System:      `You are an AI project idea generator. Given context about a user's work patterns, knowledge graph, and tech stack, suggest 1-2 concrete, actionable project ideas. Respond with JSON only: {"ideas": [{"title": "...", "description": "...", "domain": "..."}]}`,
		Messages:    []llmclient.Message{{Role: "user", Content: prompt}},
		MaxTokens:   1024,
		Temperature: 0.8,
	})
	if resp.Error {
		logging.BrainWarn("ideas: LLM call failed: %s", resp.Message)
		return nil, nil
	}

	raw, ok := parsed["ideas"].([]any)
	if !ok {
		return nil, nil
	}

	var out []Idea
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		title, _ := m["title"].(string)
		description, _ := m["description"].(string)
		domain, _ := m["domain"].(string)
		if title == "" {
			continue
		}
		out = append(out, Idea{Title: title, Description: description, Domain: domain})
	}
	return out, nil
}

// AddToBacklog records each idea via projects.AddIdea, tagging the
// description as auto-suggested so it reads differently from ideas a user
// typed themselves.
func AddToBacklog(projects *project.Store, ideas []Idea) ([]string, error) {
	var titles []string
	for _, idea := range ideas {
		desc := idea.Description + "\n\nsource: auto-suggested"
		if _, err := projects.AddIdea(idea.Title, desc, idea.Domain); err != nil {
			return titles, fmt.Errorf("ideas: adding %q to backlog: %w", idea.Title, err)
		}
		titles = append(titles, idea.Title)
	}
	return titles, nil
}

func bulletJoin(items []string) string {
	var b strings.Builder
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func mentionsExisting(lower string, existing map[string]bool) bool {
	for name := range existing {
		if name != "" && strings.Contains(lower, name) {
			return true
		}
	}
	return false
}

func filterMemories(memories []*store.Memory, keep func(*store.Memory) bool) []*store.Memory {
	var out []*store.Memory
	for _, m := range memories {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

func topByCount(memories []*store.Memory, counts map[string]int, limit int) []*store.Memory {
	type pair struct {
		m *store.Memory
		c int
	}
	var pairs []pair
	for _, m := range memories {
		if counts[m.ID] > 0 {
			pairs = append(pairs, pair{m, counts[m.ID]})
		}
	}
	for i := 1; i < len(pairs); i++ {
		for j := i; j > 0 && pairs[j].c > pairs[j-1].c; j-- {
			pairs[j], pairs[j-1] = pairs[j-1], pairs[j]
		}
	}
	if len(pairs) > limit {
		pairs = pairs[:limit]
	}
	out := make([]*store.Memory, len(pairs))
	for i, p := range pairs {
		out[i] = p.m
	}
	return out
}
