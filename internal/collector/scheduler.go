package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dietpi-dashboard/internal/model"
)

// ErrCollectorFailed ends the scheduler after too many consecutive empty
// collections.
var ErrCollectorFailed = errors.New("collector: host state unreadable")

// Sink receives every assembled snapshot.
type Sink interface {
	Publish(snap model.Snapshot) model.DeliveryStats
}

// Observer is told about each collection outcome.
type Observer interface {
	ObserveCollect(at time.Time, err error)
}

type Scheduler struct {
	logger       *slog.Logger
	collector    *Collector
	sink         Sink
	observer     Observer
	interval     time.Duration
	errorBackoff time.Duration
	maxFailures  int
}

func NewScheduler(
	logger *slog.Logger,
	collector *Collector,
	sink Sink,
	observer Observer,
	interval, errorBackoff time.Duration,
	maxFailures int,
) *Scheduler {
	if errorBackoff <= 0 {
		errorBackoff = time.Second
	}
	return &Scheduler{
		logger:       logger,
		collector:    collector,
		sink:         sink,
		observer:     observer,
		interval:     interval,
		errorBackoff: errorBackoff,
		maxFailures:  maxFailures,
	}
}

func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	failures := 0
	if err := s.collectAndPublish(ctx); err != nil {
		s.logger.Warn("initial collect failed", "error", err)
		failures++
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.collectAndPublish(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				failures++
				s.logger.Error("collect failed", "error", err, "consecutive_failures", failures)
				if s.maxFailures > 0 && failures >= s.maxFailures {
					return fmt.Errorf("%w: %d consecutive failures: %v", ErrCollectorFailed, failures, err)
				}
				s.sleepWithContext(ctx, s.errorBackoff)
				continue
			}
			failures = 0
		}
	}
}

func (s *Scheduler) collectAndPublish(ctx context.Context) error {
	snap, err := s.collector.Collect(ctx)
	if s.observer != nil {
		s.observer.ObserveCollect(time.Now(), err)
	}
	if err != nil {
		return err
	}
	stats := s.sink.Publish(snap)
	s.logger.Debug("snapshot published",
		"topics", len(snap.Topics),
		"stale", len(snap.Stale),
		"delivered", stats.Delivered,
		"skipped", stats.Skipped,
		"dropped", stats.Dropped,
	)
	return nil
}

func (s *Scheduler) sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
