package consolidation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cortex/internal/store"
)

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func insertOldMemory(t *testing.T, db *store.DB, content string, embedding []float32, importance float64) string {
	t.Helper()
	id, err := db.InsertMemory(&store.Memory{
		Content:    content,
		Embedding:  embedding,
		Importance: importance,
		CreatedAt:  time.Now().UTC().Add(-10 * 24 * time.Hour),
	})
	require.NoError(t, err)
	return id
}

func TestRunConsolidatesSimilarOldMemories(t *testing.T) {
	db := newTestDB(t)
	vec := []float32{0.1, 0.2, 0.3, 0.4}
	insertOldMemory(t, db, "the user prefers dark mode", vec, 0.5)
	insertOldMemory(t, db, "the user likes dark mode in the editor", vec, 0.8)

	summary, err := Run(db, "full", false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Clusters)
	assert.Equal(t, 2, summary.Consolidated)

	longTerm, err := db.ListMemoriesByTier(store.TierLongTerm)
	require.NoError(t, err)
	require.Len(t, longTerm, 1)
	assert.Equal(t, 0.8, longTerm[0].Importance)

	shortTerm, err := db.ListMemoriesByTier(store.TierShortTerm)
	require.NoError(t, err)
	assert.Empty(t, shortTerm)
}

func TestRunDryRunChangesNothing(t *testing.T) {
	db := newTestDB(t)
	vec := []float32{0.1, 0.2, 0.3, 0.4}
	insertOldMemory(t, db, "a", vec, 0.5)
	insertOldMemory(t, db, "b", vec, 0.5)

	summary, err := Run(db, "full", true)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Consolidated)

	shortTerm, err := db.ListMemoriesByTier(store.TierShortTerm)
	require.NoError(t, err)
	assert.Len(t, shortTerm, 2)
}

func TestRunPrunesLowImportanceOutsideFullTier(t *testing.T) {
	db := newTestDB(t)
	insertOldMemory(t, db, "barely relevant aside", []float32{0.9, 0.1}, 0.1)

	summary, err := Run(db, "standard", false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Pruned)

	remaining, err := db.ListMemoriesByTier(store.TierShortTerm)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestClusterMemoriesGroupsBySimilarity(t *testing.T) {
	memories := []*store.Memory{
		{ID: "a", Embedding: []float32{1, 0, 0}},
		{ID: "b", Embedding: []float32{1, 0, 0}},
		{ID: "c", Embedding: []float32{0, 1, 0}},
	}
	clusters := clusterMemories(memories, 0.99)
	require.Len(t, clusters, 2)
}

func TestSummarizeClusterDedupsSentences(t *testing.T) {
	cluster := []*store.Memory{
		{Content: "likes dark mode. prefers vim keybindings."},
		{Content: "likes dark mode. uses a mechanical keyboard."},
	}
	summary := summarizeCluster(cluster)
	assert.Equal(t, 1, countOccurrences(summary, "likes dark mode"))
}

func countOccurrences(haystack, needle string) int {
	count := 0
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			count++
		}
	}
	return count
}

func TestGraduatePromotesFrequentlyAccessedOldFacts(t *testing.T) {
	db := newTestDB(t)
	id, err := db.InsertFact(&store.Fact{
		Content:        "go uses goroutines for concurrency",
		Confidence:     0.9,
		AccessCount:    12,
		VerifiedAt:     time.Now().UTC().Add(-100 * 24 * time.Hour),
		LastAccessedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	summary, err := Graduate(db, false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Promoted)

	got, err := db.GetFact(id)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Confidence)
}

func TestGraduateDecaysStaleFacts(t *testing.T) {
	db := newTestDB(t)
	id, err := db.InsertFact(&store.Fact{
		Content:        "a fact nobody has checked in a long time",
		Confidence:     0.8,
		VerifiedAt:     time.Now().UTC().Add(-200 * 24 * time.Hour),
		LastAccessedAt: time.Now().UTC().Add(-200 * 24 * time.Hour),
	})
	require.NoError(t, err)

	summary, err := Graduate(db, false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Decayed)

	got, err := db.GetFact(id)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, got.Confidence, 1e-9)
}

func TestGraduateFlagsLowConfidenceForReverify(t *testing.T) {
	db := newTestDB(t)
	id, err := db.InsertFact(&store.Fact{
		Content:        "shaky claim",
		Confidence:     0.55,
		VerifiedAt:     time.Now().UTC().Add(-200 * 24 * time.Hour),
		LastAccessedAt: time.Now().UTC().Add(-200 * 24 * time.Hour),
	})
	require.NoError(t, err)

	summary, err := Graduate(db, false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FlaggedForReverify)

	got, err := db.GetFact(id)
	require.NoError(t, err)
	needsReverify, _ := got.Metadata["needs_reverify"].(bool)
	assert.True(t, needsReverify)
}
