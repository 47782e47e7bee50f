// Package ingest implements the memory engine's write path: turning one
// conversational turn into one or more stored memory rows, each embedded,
// scored for importance, and checked against a recent window for
// duplicates before it lands in the store.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"cortex/internal/embedding"
	"cortex/internal/logging"
	"cortex/internal/scoring"
	"cortex/internal/store"
)

// dedupWindowSize bounds how many recent memories a new chunk is compared
// against for duplicate detection.
const dedupWindowSize = 50

// maxChunkChars bounds a single chunk before the turn is split further; it
// is large enough that most turns round-trip as a single chunk.
const maxChunkChars = 2000

// exactDupBoost is added to the existing memory's importance when an
// incoming chunk is recognized as an exact duplicate, since repetition is
// itself a weak relevance signal.
const exactDupBoost = 0.1

// Turn is one conversational exchange to ingest into memory.
type Turn struct {
	UserMessage  string
	AgentReply   string
	SourceAgent  string
	Tags         []string
	Signals      []scoring.Signal
	Importance   float64 // explicit override; 0 means derive from Signals
}

// Pipeline wires embedding, scoring, and storage together for ingest.
type Pipeline struct {
	db       *store.DB
	embedder embedding.EmbeddingEngine
}

// NewPipeline constructs an ingest pipeline over db using embedder for
// chunk vectorization.
func NewPipeline(db *store.DB, embedder embedding.EmbeddingEngine) *Pipeline {
	return &Pipeline{db: db, embedder: embedder}
}

// Ingest chunks t, embeds and dedups each chunk against the recent window,
// and returns the ids of every memory actually stored (exact duplicates are
// skipped and contribute no id).
func (p *Pipeline) Ingest(ctx context.Context, t Turn) ([]string, error) {
	text := formatTurn(t)
	chunks := Chunk(text, maxChunkChars)
	importance := t.Importance
	if importance == 0 {
		importance = scoring.Importance(t.Signals)
	}

	window, err := p.recentWindow()
	if err != nil {
		return nil, fmt.Errorf("ingest: loading dedup window: %w", err)
	}

	var stored []string
	for _, chunk := range chunks {
		id, vec, err := p.ingestChunk(ctx, chunk, t, importance, window)
		if err != nil {
			logging.StoreWarn("Ingest: chunk failed, skipping: %v", err)
			continue
		}
		if id != "" {
			stored = append(stored, id)
			if vec != nil {
				window = append(window, scoring.Candidate{ID: id, Embedding: vec})
			}
		}
	}
	logging.Store("Ingest: turn from=%s produced %d chunks, stored %d", t.SourceAgent, len(chunks), len(stored))
	logging.Audit().MemoryStore(t.SourceAgent, len(chunks), len(stored))
	return stored, nil
}

func (p *Pipeline) ingestChunk(ctx context.Context, chunk string, t Turn, importance float64, window []scoring.Candidate) (string, []float32, error) {
	vec, err := p.embedder.Embed(ctx, chunk)
	if err != nil {
		// Non-fatal: the row is stored with a null vector and excluded from
		// similarity search, per the embedding-failure contract.
		logging.StoreWarn("ingestChunk: embedding failed, storing without vector: %v", err)
		vec = nil
	} else {
		vec = embedding.Normalize(vec)
	}

	if vec != nil && len(window) > 0 {
		verdict, matchID, sim, err := scoring.Dedup(vec, window)
		if err != nil {
			return "", nil, fmt.Errorf("scoring duplicates: %w", err)
		}
		switch verdict {
		case scoring.VerdictExactDup:
			id, err := p.boostExisting(matchID, sim)
			return id, nil, err
		case scoring.VerdictNearDup:
			id, err := p.storeWithLink(chunk, vec, t, importance, matchID)
			return id, vec, err
		}
	}
	id, err := p.store(chunk, vec, t, importance)
	return id, vec, err
}

func (p *Pipeline) boostExisting(id string, sim float64) (string, error) {
	existing, err := p.db.GetMemory(id)
	if err != nil {
		return "", err
	}
	if err := p.db.UpdateMemoryImportance(id, clamp01(existing.Importance+exactDupBoost)); err != nil {
		return "", err
	}
	if err := p.db.TouchMemory(id); err != nil {
		return "", err
	}
	logging.StoreDebug("boostExisting: id=%s similarity=%.3f boosted importance", id, sim)
	return "", nil
}

func (p *Pipeline) storeWithLink(chunk string, vec []float32, t Turn, importance float64, relatedID string) (string, error) {
	id, err := p.store(chunk, vec, t, importance)
	if err != nil {
		return "", err
	}
	if err := p.db.InsertLink(&store.MemoryLink{A: id, B: relatedID, RelationType: store.RelationRelatedTo, Strength: 1}); err != nil {
		logging.StoreWarn("storeWithLink: recording related_to link failed: %v", err)
	}
	return id, nil
}

func (p *Pipeline) store(chunk string, vec []float32, t Turn, importance float64) (string, error) {
	id, err := p.db.InsertMemory(&store.Memory{
		Content:     chunk,
		Embedding:   vec,
		Tier:        store.TierShortTerm,
		Importance:  importance,
		Tags:        t.Tags,
		SourceAgent: t.SourceAgent,
	})
	if err != nil {
		return "", fmt.Errorf("inserting memory: %w", err)
	}
	return id, nil
}

// recentWindow loads the most recently created memories (capped at
// dedupWindowSize) as dedup candidates.
func (p *Pipeline) recentWindow() ([]scoring.Candidate, error) {
	all, err := p.db.ListAllMemories()
	if err != nil {
		return nil, err
	}
	if len(all) > dedupWindowSize {
		all = all[:dedupWindowSize]
	}
	out := make([]scoring.Candidate, 0, len(all))
	for _, m := range all {
		if m.Embedding == nil {
			continue
		}
		out = append(out, scoring.Candidate{ID: m.ID, Embedding: m.Embedding, CreatedAt: m.CreatedAt})
	}
	return out, nil
}

func formatTurn(t Turn) string {
	var b strings.Builder
	if t.UserMessage != "" {
		b.WriteString("User: ")
		b.WriteString(t.UserMessage)
	}
	if t.AgentReply != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Assistant: ")
		b.WriteString(t.AgentReply)
	}
	return b.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
