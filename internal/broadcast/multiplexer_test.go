package broadcast

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dietpi-dashboard/internal/model"
	"dietpi-dashboard/internal/session"
)

func setup(t *testing.T, queueCap int) (*session.Manager, *Multiplexer) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := session.NewManager(logger, session.Options{
		IdleTimeout:          time.Minute,
		QueueCapacity:        queueCap,
		ControlQueueCapacity: 4,
	})
	return m, New(logger, m)
}

func join(t *testing.T, m *session.Manager, topics ...model.Topic) *session.Session {
	t.Helper()
	s, err := m.Register(context.Background(), session.HandshakeFunc(func(context.Context) (session.Credentials, error) {
		return session.Credentials{}, nil
	}))
	require.NoError(t, err)
	if len(topics) > 0 {
		_, err = m.Subscribe(s.ID(), model.NewTopicSet(topics...))
		require.NoError(t, err)
	}
	return s
}

func fullSnapshot(at time.Time) model.Snapshot {
	return model.NewSnapshot(at, map[model.Topic]any{
		model.TopicCPU:    model.CPUStats{Total: 42},
		model.TopicMemory: model.MemoryStats{Used: 1, Total: 2, Percent: 50},
	}, nil)
}

func popSnapshot(t *testing.T, s *session.Session) model.Snapshot {
	t.Helper()
	env, ok := s.Outbox().Pop()
	require.True(t, ok)
	require.Equal(t, model.FrameSnapshot, env.Type)
	return env.Payload.(model.Snapshot)
}

func TestPublishFiltersPerSession(t *testing.T) {
	m, mux := setup(t, 4)
	a := join(t, m, model.TopicCPU)
	b := join(t, m, model.TopicMemory)
	idle := join(t, m)

	stats := mux.Publish(fullSnapshot(time.Unix(100, 0)))
	assert.Equal(t, model.DeliveryStats{Delivered: 2, Skipped: 1}, stats)

	gotA := popSnapshot(t, a)
	assert.True(t, gotA.Available().Equal(model.NewTopicSet(model.TopicCPU)))
	gotB := popSnapshot(t, b)
	assert.True(t, gotB.Available().Equal(model.NewTopicSet(model.TopicMemory)))
	assert.Zero(t, idle.Outbox().Len())
}

func TestPublishSkipsDisjointTopics(t *testing.T) {
	m, mux := setup(t, 4)
	s := join(t, m, model.TopicDisk)

	stats := mux.Publish(fullSnapshot(time.Unix(100, 0)))
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, s.Outbox().Len())
}

func TestPublishSlowSessionKeepsNewest(t *testing.T) {
	m, mux := setup(t, 1)
	slow := join(t, m, model.TopicCPU)
	fast := join(t, m, model.TopicCPU)

	mux.Publish(fullSnapshot(time.Unix(100, 0)))
	popSnapshot(t, fast)
	stats := mux.Publish(fullSnapshot(time.Unix(101, 0)))
	assert.Equal(t, 1, stats.Dropped)

	got := popSnapshot(t, slow)
	assert.Equal(t, int64(101), got.Timestamp.Unix())
	assert.Equal(t, int64(101), popSnapshot(t, fast).Timestamp.Unix())

	_, dropped := mux.Totals()
	assert.Equal(t, uint64(1), dropped)
}

func TestPublishAfterRemove(t *testing.T) {
	m, mux := setup(t, 4)
	s := join(t, m, model.TopicCPU)
	m.Remove(s.ID(), session.ReasonClientDisconnect)

	stats := mux.Publish(fullSnapshot(time.Unix(100, 0)))
	assert.Equal(t, model.DeliveryStats{}, stats)
	assert.Zero(t, s.Outbox().Len())
}

func TestLatest(t *testing.T) {
	_, mux := setup(t, 1)
	_, ok := mux.Latest()
	assert.False(t, ok)

	mux.Publish(fullSnapshot(time.Unix(100, 0)))
	latest, ok := mux.Latest()
	require.True(t, ok)
	assert.Equal(t, int64(100), latest.Timestamp.Unix())
}
