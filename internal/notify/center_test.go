package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishReplacesSameKey(t *testing.T) {
	c := NewCenter(zap.NewNop())

	c.Publish("job-42", LevelPending, "payment pending", true)
	c.Publish("job-42", LevelSuccess, "job completed", false)

	assert.Len(t, c.Snapshot(), 1)

	n, ok := c.Get("job-42")
	require.True(t, ok)
	assert.Equal(t, LevelSuccess, n.Level)
	assert.Equal(t, "job completed", n.Message)
}

func TestClear(t *testing.T) {
	c := NewCenter(zap.NewNop())

	c.Publish("job-1", LevelInfo, "status changed", false)
	c.Clear("job-1")

	_, ok := c.Get("job-1")
	assert.False(t, ok)
	assert.Empty(t, c.Snapshot())

	// Clearing an absent key is a no-op.
	c.Clear("job-1")
}

func TestSnapshotOrderedOldestFirst(t *testing.T) {
	c := NewCenter(zap.NewNop())

	c.Publish("job-1", LevelInfo, "first", false)
	c.Publish("job-2", LevelInfo, "second", false)
	c.Publish("job-3", LevelInfo, "third", false)

	snap := c.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "first", snap[0].Message)
	assert.Equal(t, "third", snap[2].Message)
}
