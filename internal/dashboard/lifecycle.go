package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"dietpi-dashboard/internal/session"
)

func (d *Dashboard) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.scheduler.Run(gctx)
	})
	g.Go(func() error {
		return d.sessions.RunReaper(gctx)
	})
	g.Go(func() error {
		return d.gateway.ListenAndServe(gctx, d.cfg.ListenAddr, d.tlsCfg)
	})
	g.Go(func() error {
		return d.runHealthLoop(gctx)
	})
	g.Go(func() error {
		return d.runProbeListener(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (d *Dashboard) runHealthLoop(ctx context.Context) error {
	t := time.NewTicker(d.cfg.SweepInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			d.syncProbe()
			d.logger.Log(ctx, slog.LevelDebug, "dashboard health", "snapshot", d.health.Snapshot())
		}
	}
}

func (d *Dashboard) shutdown(ctx context.Context) {
	d.probe.Shutdown()
	if n := d.sessions.CloseAll(session.ReasonShutdown); n > 0 {
		d.logger.Info("closed remaining sessions", "count", n)
	}
	if err := d.executor.Shutdown(ctx); err != nil {
		d.logger.Warn("command executor did not drain", "error", err)
	}
	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			d.logger.Warn("reader close failed", "error", err)
		}
	}
	d.health.SetCollectorOK(false)
}
