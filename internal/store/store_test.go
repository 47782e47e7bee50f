package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMemoryRoundTrip(t *testing.T) {
	db := newTestDB(t)

	vec := []float32{0.1, 0.2, 0.3, 0.4}
	id, err := db.InsertMemory(&Memory{
		Content:     "the user prefers dark mode",
		Embedding:   vec,
		Tags:        []string{"preference"},
		SourceAgent: "builder",
		Importance:  0.4,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := db.GetMemory(id)
	require.NoError(t, err)
	assert.Equal(t, "the user prefers dark mode", got.Content)
	assert.Equal(t, TierShortTerm, got.Tier)
	assert.Equal(t, []string{"preference"}, got.Tags)
	assert.InDeltaSlice(t, vec, got.Embedding, 1e-6)

	require.NoError(t, db.TouchMemory(id))
	got, err = db.GetMemory(id)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AccessCount)

	require.NoError(t, db.PromoteMemory(id))
	got, err = db.GetMemory(id)
	require.NoError(t, err)
	assert.Equal(t, TierLongTerm, got.Tier)

	require.NoError(t, db.DeleteMemory(id))
	_, err = db.GetMemory(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListMemoriesByTier(t *testing.T) {
	db := newTestDB(t)

	_, err := db.InsertMemory(&Memory{Content: "short a", Tier: TierShortTerm})
	require.NoError(t, err)
	_, err = db.InsertMemory(&Memory{Content: "long a", Tier: TierLongTerm})
	require.NoError(t, err)

	shortTerm, err := db.ListMemoriesByTier(TierShortTerm)
	require.NoError(t, err)
	require.Len(t, shortTerm, 1)
	assert.Equal(t, "short a", shortTerm[0].Content)

	all, err := db.ListAllMemories()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFactConfidenceLifecycle(t *testing.T) {
	db := newTestDB(t)

	id, err := db.InsertFact(&Fact{
		Content:    "API rate limit is 100 req/min",
		Source:     "researcher",
		Confidence: 0.5,
	})
	require.NoError(t, err)

	f, err := db.GetFact(id)
	require.NoError(t, err)
	assert.False(t, f.NeedsReverify())

	require.NoError(t, db.UpdateFactConfidence(id, 0.3))
	f, err = db.GetFact(id)
	require.NoError(t, err)
	assert.True(t, f.NeedsReverify())

	require.NoError(t, db.TouchFact(id))
	f, err = db.GetFact(id)
	require.NoError(t, err)
	assert.Equal(t, 1, f.AccessCount)
}

func TestMemoryLinksSurviveDeletion(t *testing.T) {
	db := newTestDB(t)

	srcID, err := db.InsertMemory(&Memory{Content: "source memory"})
	require.NoError(t, err)
	dstID, err := db.InsertMemory(&Memory{Content: "consolidated summary"})
	require.NoError(t, err)

	require.NoError(t, db.InsertLink(&MemoryLink{
		A: srcID, B: dstID, RelationType: RelationConsolidatedInto, Strength: 1.0,
	}))

	// Deleting the source memory must not remove the audit trail.
	require.NoError(t, db.DeleteMemory(srcID))

	links, err := db.LinksTo(dstID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, srcID, links[0].A)
	assert.Equal(t, RelationConsolidatedInto, links[0].RelationType)
}

func TestUsageAndActivity(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.RecordUsage(&UsageRecord{
		Agent: "builder", Model: "claude-sonnet-4-20250514", Provider: "anthropic",
		InputTokens: 120, OutputTokens: 340, Success: true,
	}))

	since := time.Now().Add(-time.Hour)
	records, err := db.UsageSince(since)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "builder", records[0].Agent)

	require.NoError(t, db.RecordActivity(&ActivityEvent{
		EventType: "delegation_completed", Agent: "builder", Summary: "implemented feature X",
	}))
	events, err := db.ActivitySince(since)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "delegation_completed", events[0].EventType)
}
