package brain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveIdeaOrdinalMapsPositionToID(t *testing.T) {
	o := newTestOrchestrator(t)

	first, err := o.Projects.AddIdea("cache warming", "", "")
	require.NoError(t, err)
	second, err := o.Projects.AddIdea("retry budget", "", "")
	require.NoError(t, err)

	id, err := o.resolveIdeaOrdinal("1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, id)

	id, err = o.resolveIdeaOrdinal("2")
	require.NoError(t, err)
	assert.Equal(t, second.ID, id)
}

func TestResolveIdeaOrdinalRejectsOutOfRange(t *testing.T) {
	o := newTestOrchestrator(t)
	_, err := o.Projects.AddIdea("only idea", "", "")
	require.NoError(t, err)

	_, err = o.resolveIdeaOrdinal("2")
	assert.Error(t, err)

	_, err = o.resolveIdeaOrdinal("not-a-number")
	assert.Error(t, err)
}

func TestPromoteIdeaByOrdinalPromotesTheRightIdea(t *testing.T) {
	o := newTestOrchestrator(t)
	_, err := o.Projects.AddIdea("first idea", "", "")
	require.NoError(t, err)
	second, err := o.Projects.AddIdea("second idea", "", "")
	require.NoError(t, err)

	reply, err := o.promoteIdeaByOrdinal("2")
	require.NoError(t, err)
	assert.Contains(t, reply, "second idea")

	ideas, err := o.Projects.ListBacklogIdeas()
	require.NoError(t, err)
	require.Len(t, ideas, 1)
	assert.NotEqual(t, second.ID, ideas[0].ID)
}

func TestArchiveIdeaByOrdinalRemovesFromBacklog(t *testing.T) {
	o := newTestOrchestrator(t)
	_, err := o.Projects.AddIdea("keep me", "", "")
	require.NoError(t, err)
	_, err = o.Projects.AddIdea("archive me", "", "")
	require.NoError(t, err)

	reply, err := o.archiveIdeaByOrdinal("2")
	require.NoError(t, err)
	assert.Equal(t, "Archived.", reply)

	ideas, err := o.Projects.ListBacklogIdeas()
	require.NoError(t, err)
	require.Len(t, ideas, 1)
	assert.Equal(t, "keep me", ideas[0].Title)
}

func TestListBacklogReportsOrdinals(t *testing.T) {
	o := newTestOrchestrator(t)
	_, err := o.Projects.AddIdea("idea one", "", "")
	require.NoError(t, err)

	reply, err := o.listBacklog()
	require.NoError(t, err)
	assert.Contains(t, reply, "1. idea one")
}

func TestListBacklogReportsEmpty(t *testing.T) {
	o := newTestOrchestrator(t)
	reply, err := o.listBacklog()
	require.NoError(t, err)
	assert.Equal(t, "The backlog is empty.", reply)
}
