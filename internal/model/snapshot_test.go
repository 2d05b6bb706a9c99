package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTopics(t *testing.T) {
	t.Run("normalizes and deduplicates", func(t *testing.T) {
		set, err := ParseTopics([]string{"CPU", " memory", "cpu"})
		require.NoError(t, err)
		assert.Equal(t, []Topic{TopicCPU, TopicMemory}, set.Slice())
	})

	t.Run("rejects unknown names", func(t *testing.T) {
		_, err := ParseTopics([]string{"cpu", "gpu"})
		assert.Error(t, err)
	})
}

func TestTopicSetMutations(t *testing.T) {
	set := NewTopicSet(TopicCPU)

	assert.True(t, set.Add(NewTopicSet(TopicMemory)))
	assert.False(t, set.Add(NewTopicSet(TopicMemory)), "second add is a no-op")
	assert.True(t, set.Remove(NewTopicSet(TopicCPU)))
	assert.False(t, set.Remove(NewTopicSet(TopicCPU)), "second remove is a no-op")
	assert.True(t, set.Equal(NewTopicSet(TopicMemory)))
	assert.True(t, set.Intersects(NewTopicSet(TopicMemory, TopicDisk)))
	assert.False(t, set.Intersects(NewTopicSet(TopicDisk)))
}

func TestSnapshotSubset(t *testing.T) {
	at := time.Unix(1700000000, 0).UTC()
	snap := NewSnapshot(at, map[Topic]any{
		TopicCPU:    CPUStats{Total: 15, PerCore: []float64{10, 20}},
		TopicMemory: MemoryStats{Used: 512, Total: 1024, Percent: 50},
	}, []Topic{TopicMemory})

	t.Run("keeps only subscribed topics", func(t *testing.T) {
		sub, ok := snap.Subset(NewTopicSet(TopicCPU))
		require.True(t, ok)
		assert.Equal(t, at, sub.Timestamp)
		assert.Len(t, sub.Topics, 1)
		assert.Equal(t, []float64{10, 20}, sub.Topics[TopicCPU].(CPUStats).PerCore)
		assert.Empty(t, sub.Stale)
	})

	t.Run("carries stale flags of kept topics", func(t *testing.T) {
		sub, ok := snap.Subset(NewTopicSet(TopicMemory, TopicDisk))
		require.True(t, ok)
		assert.Equal(t, []Topic{TopicMemory}, sub.Stale)
		assert.False(t, sub.Has(TopicDisk))
	})

	t.Run("no intersection", func(t *testing.T) {
		_, ok := snap.Subset(NewTopicSet(TopicDisk))
		assert.False(t, ok)
		_, ok = snap.Subset(TopicSet{})
		assert.False(t, ok)
	})

	t.Run("source is not modified", func(t *testing.T) {
		_, _ = snap.Subset(NewTopicSet(TopicCPU))
		assert.Len(t, snap.Topics, 2)
		assert.True(t, snap.Available().Equal(NewTopicSet(TopicCPU, TopicMemory)))
	})
}
