package consolidation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cortex/internal/store"
)

func TestRefreshFlagsOldButRecentlyAccessedFacts(t *testing.T) {
	db := newTestDB(t)
	id, err := db.InsertFact(&store.Fact{
		Content:        "flags eligible for reverify",
		Confidence:     0.8,
		VerifiedAt:     time.Now().UTC().Add(-100 * 24 * time.Hour),
		LastAccessedAt: time.Now().UTC().Add(-5 * 24 * time.Hour),
	})
	require.NoError(t, err)

	summary, err := Refresh(db)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Flagged)

	got, err := db.GetFact(id)
	require.NoError(t, err)
	needsReverify, _ := got.Metadata["needs_reverify"].(bool)
	assert.True(t, needsReverify)
}

func TestRefreshSkipsPermanentFacts(t *testing.T) {
	db := newTestDB(t)
	_, err := db.InsertFact(&store.Fact{
		Content:        "permanent fact",
		Confidence:     1.0,
		VerifiedAt:     time.Now().UTC().Add(-400 * 24 * time.Hour),
		LastAccessedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	summary, err := Refresh(db)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.AlreadyPermanent)
	assert.Equal(t, 0, summary.Flagged)
}

func TestRefreshSkipsOldUnusedFacts(t *testing.T) {
	db := newTestDB(t)
	_, err := db.InsertFact(&store.Fact{
		Content:        "abandoned fact",
		Confidence:     0.8,
		VerifiedAt:     time.Now().UTC().Add(-200 * 24 * time.Hour),
		LastAccessedAt: time.Now().UTC().Add(-200 * 24 * time.Hour),
	})
	require.NoError(t, err)

	summary, err := Refresh(db)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Flagged)
}
