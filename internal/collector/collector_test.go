package collector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dietpi-dashboard/internal/model"
)

type fakeReader struct {
	topic model.Topic
	calls atomic.Int32
	read  func(ctx context.Context, call int32) (any, error)
}

func (f *fakeReader) Topic() model.Topic { return f.topic }

func (f *fakeReader) Read(ctx context.Context) (any, error) {
	n := f.calls.Add(1)
	return f.read(ctx, n)
}

func constant(topic model.Topic, v any) *fakeReader {
	return &fakeReader{topic: topic, read: func(context.Context, int32) (any, error) { return v, nil }}
}

func failing(topic model.Topic) *fakeReader {
	return &fakeReader{topic: topic, read: func(context.Context, int32) (any, error) { return nil, errors.New("boom") }}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCollector(readers ...Reader) *Collector {
	return New(discardLogger(), readers, Options{ReadTimeout: 30 * time.Millisecond, SlowRefresh: time.Minute})
}

func TestCollectAllFresh(t *testing.T) {
	c := newTestCollector(
		constant(model.TopicCPU, model.CPUStats{Total: 12}),
		constant(model.TopicMemory, model.MemoryStats{Used: 1, Total: 2}),
	)

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Available().Equal(model.NewTopicSet(model.TopicCPU, model.TopicMemory)))
	assert.Empty(t, snap.Stale)
	assert.Equal(t, 12.0, snap.Topics[model.TopicCPU].(model.CPUStats).Total)
}

func TestCollectFailedTopicOmitted(t *testing.T) {
	c := newTestCollector(
		constant(model.TopicCPU, model.CPUStats{}),
		failing(model.TopicDisk),
	)

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Has(model.TopicCPU))
	assert.False(t, snap.Has(model.TopicDisk))
}

func TestCollectNoTopics(t *testing.T) {
	c := newTestCollector(failing(model.TopicCPU), failing(model.TopicMemory))

	_, err := c.Collect(context.Background())
	assert.ErrorIs(t, err, ErrNoTopics)
}

func TestCollectSlowReadServesStaleCache(t *testing.T) {
	release := make(chan struct{})
	slow := &fakeReader{topic: model.TopicDisk, read: func(ctx context.Context, call int32) (any, error) {
		if call == 2 {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return model.DiskStats{Mounts: []model.DiskUsage{{Mountpoint: "/", Used: uint64(call)}}}, nil
	}}
	c := newTestCollector(constant(model.TopicCPU, model.CPUStats{}), slow)

	first, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.False(t, first.IsStale(model.TopicDisk))

	start := time.Now()
	second, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second, "slow topic must not hold up the snapshot")
	require.True(t, second.Has(model.TopicDisk))
	assert.True(t, second.IsStale(model.TopicDisk))
	assert.False(t, second.IsStale(model.TopicCPU))
	assert.Equal(t, uint64(1), second.Topics[model.TopicDisk].(model.DiskStats).Mounts[0].Used)

	third, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.True(t, third.IsStale(model.TopicDisk))
	assert.Equal(t, int32(2), slow.calls.Load(), "at most one read in flight per topic")

	close(release)
	require.Eventually(t, func() bool {
		snap, err := c.Collect(context.Background())
		return err == nil && !snap.IsStale(model.TopicDisk)
	}, time.Second, 10*time.Millisecond)
}

func TestCollectSlowReadWithoutCacheOmitted(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	slow := &fakeReader{topic: model.TopicProcesses, read: func(ctx context.Context, _ int32) (any, error) {
		<-release
		return model.ProcessTable{}, nil
	}}
	c := newTestCollector(constant(model.TopicCPU, model.CPUStats{}), slow)

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.Has(model.TopicProcesses))
	assert.NotContains(t, snap.Stale, model.TopicProcesses)
}

func TestCollectSlowTopicRefreshWindow(t *testing.T) {
	hostReader := constant(model.TopicHost, model.HostInfo{Hostname: "dietpi"})
	c := newTestCollector(hostReader)

	for range 3 {
		snap, err := c.Collect(context.Background())
		require.NoError(t, err)
		assert.False(t, snap.IsStale(model.TopicHost))
	}
	assert.Equal(t, int32(1), hostReader.calls.Load())

	c.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), hostReader.calls.Load())
}

type recordingSink struct {
	mu    sync.Mutex
	snaps []model.Snapshot
}

func (s *recordingSink) Publish(snap model.Snapshot) model.DeliveryStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return model.DeliveryStats{}
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snaps)
}

type recordingObserver struct {
	failures atomic.Int32
	success  atomic.Int32
}

func (o *recordingObserver) ObserveCollect(_ time.Time, err error) {
	if err != nil {
		o.failures.Add(1)
		return
	}
	o.success.Add(1)
}

func TestSchedulerPublishesUntilCancelled(t *testing.T) {
	sink := &recordingSink{}
	obs := &recordingObserver{}
	c := newTestCollector(constant(model.TopicCPU, model.CPUStats{}))
	s := NewScheduler(discardLogger(), c, sink, obs, 10*time.Millisecond, time.Millisecond, 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.count() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, obs.success.Load(), int32(3))
}

func TestSchedulerGivesUpAfterConsecutiveFailures(t *testing.T) {
	sink := &recordingSink{}
	obs := &recordingObserver{}
	c := newTestCollector(failing(model.TopicCPU))
	s := NewScheduler(discardLogger(), c, sink, obs, 5*time.Millisecond, time.Millisecond, 2)

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrCollectorFailed)
	assert.Zero(t, sink.count())
	assert.Equal(t, int32(2), obs.failures.Load())
}
