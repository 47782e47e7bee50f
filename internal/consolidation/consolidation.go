// Package consolidation implements the two cron-driven maintenance passes
// over the memory store: clustering and summarizing aging short-term
// memories into long-term ones, and graduating or decaying knowledge_cache
// facts based on how they've held up over time.
package consolidation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cortex/internal/logging"
	"cortex/internal/scoring"
	"cortex/internal/store"
)

const (
	consolidationAgeCutoff     = 7 * 24 * time.Hour
	clusterSimilarityThreshold = 0.7
	pruneImportanceThreshold   = 0.3
	maxSummarySentences        = 20
)

// Summary reports what a consolidation pass did (or would do, under dry-run).
type Summary struct {
	Consolidated int
	Clusters     int
	Pruned       int
}

// Run clusters short-term memories older than the age cutoff by embedding
// similarity, merges each cluster of two or more into one long-term summary
// memory, and — for any tier other than "full" — also prunes low-importance
// short-term memories outright. dryRun counts what would happen without
// writing anything.
func Run(db *store.DB, tier string, dryRun bool) (Summary, error) {
	var summary Summary

	old, err := findOldMemories(db, consolidationAgeCutoff)
	if err != nil {
		return summary, fmt.Errorf("consolidation: finding old memories: %w", err)
	}

	if len(old) > 0 {
		clusters := clusterMemories(old, clusterSimilarityThreshold)
		for _, cluster := range clusters {
			if len(cluster) < 2 {
				continue
			}
			summary.Clusters++
			summary.Consolidated += len(cluster)
			if dryRun {
				continue
			}
			if err := mergeCluster(db, cluster); err != nil {
				logging.StoreWarn("consolidation: merging cluster failed: %v", err)
			}
		}
	}

	if tier != "full" {
		pruned, err := pruneLowImportance(db, pruneImportanceThreshold, dryRun)
		if err != nil {
			return summary, fmt.Errorf("consolidation: pruning: %w", err)
		}
		summary.Pruned = pruned
	}

	return summary, nil
}

// findOldMemories returns short-term memories created before now-cutoff.
func findOldMemories(db *store.DB, cutoff time.Duration) ([]*store.Memory, error) {
	all, err := db.ListMemoriesByTier(store.TierShortTerm)
	if err != nil {
		return nil, err
	}
	threshold := time.Now().UTC().Add(-cutoff)
	var old []*store.Memory
	for _, m := range all {
		if m.CreatedAt.Before(threshold) {
			old = append(old, m)
		}
	}
	return old, nil
}

// clusterMemories groups memories by embedding similarity using simple greedy
// clustering: each unclustered memory seeds a new cluster and absorbs every
// later memory whose similarity to the seed clears the threshold.
func clusterMemories(memories []*store.Memory, threshold float64) [][]*store.Memory {
	used := make([]bool, len(memories))
	var clusters [][]*store.Memory

	for i, seed := range memories {
		if used[i] || seed.Embedding == nil {
			continue
		}
		cluster := []*store.Memory{seed}
		used[i] = true
		for j := i + 1; j < len(memories); j++ {
			if used[j] || memories[j].Embedding == nil {
				continue
			}
			sim, err := scoring.Similarity(seed.Embedding, memories[j].Embedding)
			if err != nil {
				continue
			}
			if sim >= threshold {
				cluster = append(cluster, memories[j])
				used[j] = true
			}
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

// mergeCluster summarizes cluster into one long_term memory, links every
// source memory to it as consolidated_into (kept as an audit trail even
// after the sources are deleted), then deletes the sources.
func mergeCluster(db *store.DB, cluster []*store.Memory) error {
	merged := summarizeCluster(cluster)
	best := cluster[0]
	for _, m := range cluster {
		if m.Importance > best.Importance {
			best = m
		}
	}

	sourceIDs := make([]string, len(cluster))
	for i, m := range cluster {
		sourceIDs[i] = m.ID
	}

	summaryID, err := db.InsertMemory(&store.Memory{
		ID:          uuid.NewString(),
		Content:     merged,
		Embedding:   best.Embedding,
		Tier:        store.TierLongTerm,
		Importance:  best.Importance,
		Tags:        best.Tags,
		SourceAgent: best.SourceAgent,
		Metadata:    map[string]any{"consolidated_from": sourceIDs},
	})
	if err != nil {
		return fmt.Errorf("inserting consolidated memory: %w", err)
	}

	for _, m := range cluster {
		if err := db.InsertLink(&store.MemoryLink{A: m.ID, B: summaryID, RelationType: store.RelationConsolidatedInto, Strength: 1.0}); err != nil {
			logging.StoreWarn("consolidation: linking %s -> %s: %v", m.ID, summaryID, err)
		}
		if err := db.DeleteMemory(m.ID); err != nil {
			logging.StoreWarn("consolidation: deleting consolidated source %s: %v", m.ID, err)
		}
	}
	return nil
}

// summarizeCluster produces an extractive summary: unique sentences pulled
// across the cluster, deduplicated case-insensitively, capped to a sane
// length. No LLM call — consolidation runs unattended on a cron schedule and
// shouldn't depend on API availability or cost.
func summarizeCluster(cluster []*store.Memory) string {
	if len(cluster) == 1 {
		return cluster[0].Content
	}

	seen := make(map[string]bool)
	var sentences []string
	for _, m := range cluster {
		for _, sentence := range strings.Split(m.Content, ". ") {
			sentence = strings.TrimSpace(sentence)
			if sentence == "" {
				continue
			}
			key := strings.ToLower(sentence)
			if seen[key] {
				continue
			}
			seen[key] = true
			sentences = append(sentences, sentence)
		}
	}

	if len(sentences) > maxSummarySentences {
		sentences = sentences[:maxSummarySentences]
	}
	summary := strings.Join(sentences, ". ")
	if !strings.HasSuffix(summary, ".") {
		summary += "."
	}
	return summary
}

// pruneLowImportance removes (or, under dryRun, just counts) short-term
// memories below the importance threshold.
func pruneLowImportance(db *store.DB, threshold float64, dryRun bool) (int, error) {
	memories, err := db.ListMemoriesByTier(store.TierShortTerm)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, m := range memories {
		if m.Importance >= threshold {
			continue
		}
		count++
		if dryRun {
			continue
		}
		if err := db.DeleteMemory(m.ID); err != nil {
			return count, fmt.Errorf("pruning memory %s: %w", m.ID, err)
		}
	}
	return count, nil
}
