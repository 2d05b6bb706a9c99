package broadcast

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"dietpi-dashboard/internal/model"
	"dietpi-dashboard/internal/session"
)

// Sessions is the part of the session table the multiplexer reads.
type Sessions interface {
	Range(fn func(*session.Session))
}

// Multiplexer fans each snapshot out to the sessions subscribed to any of
// its topics. Publish only enqueues; it never waits on a connection.
type Multiplexer struct {
	logger   *slog.Logger
	sessions Sessions

	mu     sync.RWMutex
	latest model.Snapshot
	hasAny bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

func New(logger *slog.Logger, sessions Sessions) *Multiplexer {
	return &Multiplexer{logger: logger, sessions: sessions}
}

func (m *Multiplexer) Publish(snap model.Snapshot) model.DeliveryStats {
	m.mu.Lock()
	m.latest = snap
	m.hasAny = true
	m.mu.Unlock()
	m.published.Add(1)

	var stats model.DeliveryStats
	m.sessions.Range(func(s *session.Session) {
		res, ok := s.OfferSnapshot(snap)
		switch {
		case !ok:
			stats.Skipped++
		case res == session.QueuedDroppedOldest:
			stats.Delivered++
			stats.Dropped++
		default:
			stats.Delivered++
		}
	})
	if stats.Dropped > 0 {
		m.dropped.Add(uint64(stats.Dropped))
		m.logger.Debug("slow sessions lost snapshots", "dropped", stats.Dropped)
	}
	return stats
}

// Latest returns the most recently published snapshot.
func (m *Multiplexer) Latest() (model.Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.hasAny
}

// Totals reports snapshots published and frames dropped since start.
func (m *Multiplexer) Totals() (published, dropped uint64) {
	return m.published.Load(), m.dropped.Load()
}
