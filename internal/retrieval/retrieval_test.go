package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cortex/internal/store"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}
func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}
func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, f.err
}
func (f *fakeEmbedder) Dimensions() int { return len(f.vec) }
func (f *fakeEmbedder) Name() string    { return "fake" }

func TestRetrieveRanksBySimilarity(t *testing.T) {
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	now := time.Now().UTC()
	_, err = db.InsertMemory(&store.Memory{
		Content: "close match", Embedding: []float32{1, 0, 0}, Importance: 0.2, CreatedAt: now,
	})
	require.NoError(t, err)
	_, err = db.InsertMemory(&store.Memory{
		Content: "far match", Embedding: []float32{0, 1, 0}, Importance: 0.2, CreatedAt: now,
	})
	require.NoError(t, err)

	engine := NewEngine(db, &fakeEmbedder{vec: []float32{1, 0, 0}})
	results, err := engine.Retrieve(context.Background(), "query", StrategyBalanced, 10, false)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "close match", results[0].Content)
}

func TestRetrieveIncludesFacts(t *testing.T) {
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.InsertFact(&store.Fact{Content: "fact row", Embedding: []float32{1, 0}, Confidence: 0.9})
	require.NoError(t, err)

	engine := NewEngine(db, &fakeEmbedder{vec: []float32{1, 0}})
	results, err := engine.Retrieve(context.Background(), "query", StrategyBalanced, 10, true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "fact", results[0].Type)
}

func TestRetrieveSkipsNullEmbeddings(t *testing.T) {
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.InsertMemory(&store.Memory{Content: "no vector"})
	require.NoError(t, err)

	engine := NewEngine(db, &fakeEmbedder{vec: []float32{1, 0}})
	results, err := engine.Retrieve(context.Background(), "query", StrategyBalanced, 10, false)
	require.NoError(t, err)
	require.Empty(t, results)
}
