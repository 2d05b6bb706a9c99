package dashboard

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"dietpi-dashboard/internal/config"
	"dietpi-dashboard/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readerTopics(t *testing.T, cfg config.Config, docker bool) ([]model.Topic, int) {
	t.Helper()
	readers, closers := buildReaders(cfg, discardLogger(), docker)
	topics := make([]model.Topic, 0, len(readers))
	for _, r := range readers {
		topics = append(topics, r.Topic())
	}
	return topics, len(closers)
}

func TestBuildReadersFollowsEnabledTopics(t *testing.T) {
	cfg := config.Default()
	cfg.Topics = []string{"processes", "cpu", "containers"}

	topics, closers := readerTopics(t, cfg, false)
	assert.Equal(t, []model.Topic{model.TopicCPU, model.TopicProcesses}, topics)
	assert.Zero(t, closers)

	topics, closers = readerTopics(t, cfg, true)
	assert.Equal(t, []model.Topic{model.TopicCPU, model.TopicProcesses, model.TopicContainers}, topics)
	assert.Equal(t, 1, closers)
}

func TestBuildReadersAllTopics(t *testing.T) {
	topics, _ := readerTopics(t, config.Default(), true)
	assert.Equal(t, model.AllTopics, topics)
}

func TestBuildLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Default()
	cfg.LogJSON = true
	cfg.LogLevel = "warn"

	logger := buildLogger(cfg, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "topic", "cpu")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"topic":"cpu"`)
}

func TestHealthStatusTracksCollector(t *testing.T) {
	h := NewHealthStatus("v-test")
	h.Attach(
		func() int { return 3 },
		func() uint64 { return 1 },
		func() (uint64, uint64) { return 10, 2 },
	)
	assert.False(t, h.CollectorOK())

	h.ObserveCollect(time.Now(), errors.New("boom"))
	h.ObserveCollect(time.Now(), errors.New("boom"))
	snap := h.Snapshot()
	assert.Equal(t, false, snap["collector_ok"])
	assert.Equal(t, int64(2), snap["consecutive_failures"])
	assert.NotContains(t, snap, "last_snapshot_at")

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h.ObserveCollect(at, nil)
	snap = h.Snapshot()
	assert.True(t, h.CollectorOK())
	assert.Equal(t, int64(0), snap["consecutive_failures"])
	assert.Equal(t, at, snap["last_snapshot_at"])
	assert.Equal(t, 3, snap["active_sessions"])
	assert.Equal(t, uint64(1), snap["refused_connections"])
	assert.Equal(t, uint64(10), snap["snapshots_published"])
	assert.Equal(t, uint64(2), snap["frames_dropped"])
	assert.Equal(t, "v-test", snap["version"])
}

func TestProbeReflectsCollectorHealth(t *testing.T) {
	d := &Dashboard{
		logger: discardLogger(),
		probe:  health.NewServer(),
		health: NewHealthStatus("v-test"),
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.serveProbe(ctx, ln) }()

	conn, err := grpc.NewClient(ln.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		cctx, ccancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer ccancel()
		resp, err := client.Check(cctx, &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(ProbeService))

	d.health.ObserveCollect(time.Now(), nil)
	d.syncProbe()
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(ProbeService))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("probe server did not stop")
	}
}

func TestProbeDisabledWithoutAddress(t *testing.T) {
	cfg := config.Default()
	cfg.ProbeListenAddr = " "
	d := &Dashboard{cfg: cfg, logger: discardLogger(), probe: health.NewServer(), health: NewHealthStatus("v-test")}
	require.NoError(t, d.runProbeListener(context.Background()))
}
