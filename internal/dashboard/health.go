package dashboard

import (
	"sync/atomic"
	"time"
)

type HealthStatus struct {
	version string

	collectorOK    atomic.Bool
	failures       atomic.Int64
	lastSnapshotAt atomic.Int64
	startedAt      time.Time

	sessions func() int
	refused  func() uint64
	totals   func() (published, dropped uint64)
}

func NewHealthStatus(version string) *HealthStatus {
	h := &HealthStatus{version: version, startedAt: time.Now()}
	h.collectorOK.Store(false)
	return h
}

// Attach wires the live counters reported alongside collector state.
func (h *HealthStatus) Attach(sessions func() int, refused func() uint64, totals func() (uint64, uint64)) {
	h.sessions = sessions
	h.refused = refused
	h.totals = totals
}

// ObserveCollect records one collection outcome.
func (h *HealthStatus) ObserveCollect(at time.Time, err error) {
	if err != nil {
		h.failures.Add(1)
		h.collectorOK.Store(false)
		return
	}
	h.failures.Store(0)
	h.collectorOK.Store(true)
	h.lastSnapshotAt.Store(at.UnixNano())
}

func (h *HealthStatus) SetCollectorOK(ok bool) {
	h.collectorOK.Store(ok)
}

func (h *HealthStatus) CollectorOK() bool {
	return h.collectorOK.Load()
}

func (h *HealthStatus) Snapshot() map[string]any {
	out := map[string]any{
		"version":              h.version,
		"collector_ok":         h.collectorOK.Load(),
		"consecutive_failures": h.failures.Load(),
		"uptime_seconds":       int64(time.Since(h.startedAt).Seconds()),
	}
	if v := h.lastSnapshotAt.Load(); v > 0 {
		out["last_snapshot_at"] = time.Unix(0, v).UTC()
	}
	if h.sessions != nil {
		out["active_sessions"] = h.sessions()
	}
	if h.refused != nil {
		out["refused_connections"] = h.refused()
	}
	if h.totals != nil {
		published, dropped := h.totals()
		out["snapshots_published"] = published
		out["frames_dropped"] = dropped
	}
	return out
}

// Report satisfies the gateway health endpoint.
func (h *HealthStatus) Report() any {
	return h.Snapshot()
}
