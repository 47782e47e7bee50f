package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cortex/internal/scoring"
	"cortex/internal/store"
)

// keyedEmbedder returns a fixed vector per exact text match, falling back to
// a distinct vector derived from text length so unrelated chunks don't
// collide by accident.
type keyedEmbedder struct {
	vectors map[string][]float32
}

func (k *keyedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := k.vectors[text]; ok {
		return v, nil
	}
	return []float32{float32(len(text)%7) + 1, 1, 1}, nil
}
func (k *keyedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return k.Embed(ctx, text)
}
func (k *keyedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = k.Embed(ctx, t)
	}
	return out, nil
}
func (k *keyedEmbedder) Dimensions() int { return 3 }
func (k *keyedEmbedder) Name() string    { return "keyed" }

func newTestPipeline(t *testing.T, vectors map[string][]float32) (*Pipeline, *store.DB) {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPipeline(db, &keyedEmbedder{vectors: vectors}), db
}

func TestChunkRoundTripsShortText(t *testing.T) {
	text := "User: hello\nAssistant: hi there"
	chunks := Chunk(text, maxChunkChars)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestChunkSplitsLongParagraphs(t *testing.T) {
	long := ""
	for i := 0; i < 500; i++ {
		long += "word "
	}
	chunks := Chunk(long, 100)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 120) // window cut + trailing partial word tolerance
	}
}

func TestIngestStoresUniqueChunk(t *testing.T) {
	p, db := newTestPipeline(t, nil)
	ids, err := p.Ingest(context.Background(), Turn{
		UserMessage: "what's the deploy process",
		AgentReply:  "run the release script",
		SourceAgent: "orchestrator",
	})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	mem, err := db.GetMemory(ids[0])
	require.NoError(t, err)
	assert.Equal(t, store.TierShortTerm, mem.Tier)
}

func TestIngestExactDuplicateBoostsExisting(t *testing.T) {
	shared := []float32{1, 0, 0}
	text := "User: same question\nAssistant: same answer"
	p, db := newTestPipeline(t, map[string][]float32{text: shared})

	firstIDs, err := p.Ingest(context.Background(), Turn{UserMessage: "same question", AgentReply: "same answer"})
	require.NoError(t, err)
	require.Len(t, firstIDs, 1)

	before, err := db.GetMemory(firstIDs[0])
	require.NoError(t, err)

	secondIDs, err := p.Ingest(context.Background(), Turn{UserMessage: "same question", AgentReply: "same answer"})
	require.NoError(t, err)
	assert.Empty(t, secondIDs, "exact duplicates contribute no new id")

	after, err := db.GetMemory(firstIDs[0])
	require.NoError(t, err)
	assert.Greater(t, after.Importance, before.Importance)
}

func TestIngestNearDuplicateLinksRelated(t *testing.T) {
	firstText := "User: deploy question one\nAssistant: use the release script"
	secondText := "User: deploy question two\nAssistant: use the release tool"
	p, db := newTestPipeline(t, map[string][]float32{
		firstText:  {1, 0, 0},
		secondText: {0.9, 0.43589, 0},
	})

	firstIDs, err := p.Ingest(context.Background(), Turn{UserMessage: "deploy question one", AgentReply: "use the release script"})
	require.NoError(t, err)
	require.Len(t, firstIDs, 1)

	secondIDs, err := p.Ingest(context.Background(), Turn{UserMessage: "deploy question two", AgentReply: "use the release tool"})
	require.NoError(t, err)
	require.Len(t, secondIDs, 1)

	links, err := db.LinksFrom(secondIDs[0])
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, store.RelationRelatedTo, links[0].RelationType)
	assert.Equal(t, firstIDs[0], links[0].B)
}

func TestIngestDerivesImportanceFromSignals(t *testing.T) {
	p, db := newTestPipeline(t, nil)
	ids, err := p.Ingest(context.Background(), Turn{
		UserMessage: "please remember I prefer dark mode",
		Signals:     []scoring.Signal{scoring.SignalUserPreference},
	})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	mem, err := db.GetMemory(ids[0])
	require.NoError(t, err)
	assert.Equal(t, 0.7, mem.Importance)
}

func TestIngestEmbeddingFailureStillStores(t *testing.T) {
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	p := NewPipeline(db, &failingEmbedder{})
	ids, err := p.Ingest(context.Background(), Turn{UserMessage: "hello", AgentReply: "hi"})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	mem, err := db.GetMemory(ids[0])
	require.NoError(t, err)
	assert.Nil(t, mem.Embedding)
}

type failingEmbedder struct{}

func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, assertError{}
}
func (f *failingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return nil, assertError{}
}
func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, assertError{}
}
func (f *failingEmbedder) Dimensions() int { return 3 }
func (f *failingEmbedder) Name() string    { return "failing" }

type assertError struct{}

func (assertError) Error() string { return "embedding unavailable" }
