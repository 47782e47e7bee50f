package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDigestCountsByStatus(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	proj, err := s.CreateProject("widget", "", "", "")
	require.NoError(t, err)
	require.NoError(t, s.DecomposeIntoTasks(proj.ID, []*Task{
		{ID: "t1", ProjectID: proj.ID, Title: "done task", Status: TaskCompleted},
		{ID: "t2", ProjectID: proj.ID, Title: "queued task", Status: TaskPending},
		{ID: "t3", ProjectID: proj.ID, Title: "broken task", Status: TaskFailed},
	}))

	digest, err := s.BuildDigest()
	require.NoError(t, err)
	assert.Equal(t, 1, digest.CompletedCount)
	assert.Equal(t, 1, digest.QueuedCount)
	assert.Equal(t, 1, digest.FailedCount)
	assert.Contains(t, digest.CompletedTitles, "done task")
}

func TestExistingNamesIncludesProjectsAndBacklogIdeas(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.CreateProject("Widget Factory", "", "", "")
	require.NoError(t, err)
	_, err = s.AddIdea("Gadget Line", "", "")
	require.NoError(t, err)

	existing, err := s.ExistingNames()
	require.NoError(t, err)
	assert.True(t, existing["widget factory"])
	assert.True(t, existing["gadget line"])
}
