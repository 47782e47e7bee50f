package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	b, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestSendReceiveOrdering(t *testing.T) {
	b := newTestBus(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Send(&Message{TaskID: "t" + string(rune('1'+i)), ToAgent: "builder"}))
	}

	msgs, err := b.Receive("builder", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "t1", msgs[0].TaskID)
	assert.Equal(t, "t2", msgs[1].TaskID)
	assert.Equal(t, "t3", msgs[2].TaskID)
	for _, m := range msgs {
		assert.Equal(t, StatusInProgress, m.Status)
	}
}

func TestReceiveDoesNotDoubleClaim(t *testing.T) {
	b := newTestBus(t)
	require.NoError(t, b.Send(&Message{TaskID: "t1", ToAgent: "builder"}))

	first, err := b.Receive("builder", 10)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := b.Receive("builder", 10)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestUpdateStatusAndGetTask(t *testing.T) {
	b := newTestBus(t)
	require.NoError(t, b.Send(&Message{TaskID: "t1", ToAgent: "verifier"}))

	_, err := b.Receive("verifier", 10)
	require.NoError(t, err)

	require.NoError(t, b.UpdateStatus("t1", StatusCompleted, "ok", ""))

	task, err := b.GetTask("t1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
	assert.Equal(t, "ok", task.Result)
}

func TestGetTaskNotFound(t *testing.T) {
	b := newTestBus(t)
	_, err := b.GetTask("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReceiveIsolatedByRecipient(t *testing.T) {
	b := newTestBus(t)
	require.NoError(t, b.Send(&Message{TaskID: "t1", ToAgent: "builder"}))
	require.NoError(t, b.Send(&Message{TaskID: "t2", ToAgent: "researcher"}))

	builderMsgs, err := b.Receive("builder", 10)
	require.NoError(t, err)
	require.Len(t, builderMsgs, 1)
	assert.Equal(t, "t1", builderMsgs[0].TaskID)
}

func TestFanOutNoopWithoutURL(t *testing.T) {
	f, err := NewFanOut("")
	require.NoError(t, err)
	// Must not panic with a nil underlying connection.
	f.Publish("t1", "builder", StatusCompleted)
	f.Close()
}
