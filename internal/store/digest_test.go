package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMemoryStats(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.InsertMemory(&Memory{Content: "recent", CreatedAt: time.Now().UTC()})
	require.NoError(t, err)
	_, err = db.InsertMemory(&Memory{Content: "old", CreatedAt: time.Now().UTC().Add(-48 * time.Hour)})
	require.NoError(t, err)
	_, err = db.InsertFact(&Fact{Content: "go is fast"})
	require.NoError(t, err)

	stats, err := db.BuildMemoryStats(time.Now().UTC().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NewMemories)
	assert.Equal(t, 2, stats.TotalMemories)
	assert.Equal(t, 1, stats.KnowledgeCount)
}
