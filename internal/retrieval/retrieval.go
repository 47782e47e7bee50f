// Package retrieval implements the memory engine's read path: given a query
// and a ranking strategy, score every embedded memory (and optionally every
// knowledge fact) and return the top candidates.
package retrieval

import (
	"context"
	"fmt"
	"time"

	"cortex/internal/embedding"
	"cortex/internal/logging"
	"cortex/internal/metrics"
	"cortex/internal/scoring"
	"cortex/internal/store"
)

// Result is one ranked retrieval hit.
type Result struct {
	ID       string
	Content  string
	Score    float64
	Type     string // "memory" or "fact"
	Metadata map[string]any
}

// Engine retrieves memories and facts from a store using an embedding
// backend for query vectorization.
type Engine struct {
	db       *store.DB
	embedder embedding.EmbeddingEngine
	// RecentInterleave, when > 0, lets the "recent" strategy append up to
	// this many of the most-recent memories irrespective of similarity, but
	// only into slots left free once the scored results fill less than limit.
	RecentInterleave int
}

// NewEngine constructs a retrieval engine over db using embedder for query
// vectorization.
func NewEngine(db *store.DB, embedder embedding.EmbeddingEngine) *Engine {
	return &Engine{db: db, embedder: embedder, RecentInterleave: 5}
}

// Strategy aliases scoring.Strategy so callers only need to import retrieval.
type Strategy = scoring.Strategy

const (
	StrategyBalanced   = scoring.StrategyBalanced
	StrategyRecency    = scoring.StrategyRecency
	StrategyImportance = scoring.StrategyImportance
	// StrategyRecent ranks with the StrategyRecency weights and then tops up
	// any free slots under limit with the most recent memories (see
	// RecentInterleave); it does not bypass composite scoring.
	StrategyRecent Strategy = "recent"
)

// Retrieve embeds queryText and ranks every memory with a non-null embedding
// by composite score under strategy, returning the top limit results.
func (e *Engine) Retrieve(ctx context.Context, queryText string, strategy Strategy, limit int, includeFacts bool) ([]Result, error) {
	timer := logging.StartTimer(logging.CategoryRetrieval, "Retrieve")
	defer timer.Stop()
	start := time.Now()
	defer func() { metrics.RetrievalDuration.WithLabelValues(string(strategy)).Observe(time.Since(start).Seconds()) }()

	queryVec, err := e.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		logging.Get(logging.CategoryRetrieval).Warn("Retrieve: embed failed, similarity-scored results skipped: %v", err)
	}
	queryVec = embedding.Normalize(queryVec)

	memories, err := e.db.ListAllMemories()
	if err != nil {
		return nil, fmt.Errorf("retrieval: listing memories: %w", err)
	}

	now := time.Now().UTC()
	results := make([]Result, 0, len(memories))
	for _, m := range memories {
		if m.Embedding == nil || queryVec == nil {
			continue
		}
		age := now.Sub(m.UpdatedAt)
		score, err := scoring.Score(scoringStrategy(strategy), queryVec, scoring.Candidate{
			ID: m.ID, Embedding: m.Embedding, Age: age, Importance: m.Importance, CreatedAt: m.CreatedAt,
		})
		if err != nil {
			logging.RetrievalDebug("Retrieve: skipping memory %s, scoring error: %v", m.ID, err)
			continue
		}
		results = append(results, Result{ID: m.ID, Content: m.Content, Score: score, Type: "memory", Metadata: m.Metadata})
	}

	if includeFacts {
		facts, err := e.db.ListFacts()
		if err != nil {
			return nil, fmt.Errorf("retrieval: listing facts: %w", err)
		}
		for _, f := range facts {
			if f.Embedding == nil || queryVec == nil {
				continue
			}
			age := now.Sub(f.LastAccessedAt)
			score, err := scoring.Score(scoringStrategy(strategy), queryVec, scoring.Candidate{
				ID: f.ID, Embedding: f.Embedding, Age: age, Importance: f.Confidence, CreatedAt: f.CreatedAt,
			})
			if err != nil {
				continue
			}
			results = append(results, Result{ID: f.ID, Content: f.Content, Score: score, Type: "fact", Metadata: f.Metadata})
		}
	}

	sortResultsDesc(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	if strategy == StrategyRecent && e.RecentInterleave > 0 {
		results = e.interleaveRecent(memories, results, limit)
	}

	for _, r := range results {
		if r.Type == "memory" {
			_ = e.db.TouchMemory(r.ID)
		} else {
			_ = e.db.TouchFact(r.ID)
		}
	}

	logging.Retrieval("Retrieve: query=%q strategy=%s returned %d results", truncate(queryText, 60), strategy, len(results))
	return results, nil
}

func scoringStrategy(s Strategy) scoring.Strategy {
	if s == StrategyRecent {
		return scoring.StrategyRecency
	}
	return s
}

func (e *Engine) interleaveRecent(memories []*store.Memory, results []Result, limit int) []Result {
	have := make(map[string]bool, len(results))
	for _, r := range results {
		have[r.ID] = true
	}
	// memories is already ordered by created_at DESC (ListAllMemories).
	added := 0
	for _, m := range memories {
		if added >= e.RecentInterleave {
			break
		}
		if have[m.ID] {
			continue
		}
		results = append(results, Result{ID: m.ID, Content: m.Content, Score: 0, Type: "memory", Metadata: m.Metadata})
		have[m.ID] = true
		added++
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func sortResultsDesc(results []Result) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
