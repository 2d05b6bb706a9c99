package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ProbeService is the gRPC health service name reflecting collector state.
const ProbeService = "dietpi.dashboard"

// runProbeListener serves the standard gRPC health protocol for
// supervisors. An empty address disables it.
func (d *Dashboard) runProbeListener(ctx context.Context) error {
	addr := strings.TrimSpace(d.cfg.ProbeListenAddr)
	if addr == "" {
		d.logger.Info("probe endpoint disabled")
		return nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen probe endpoint %s: %w", addr, err)
	}
	return d.serveProbe(ctx, ln)
}

func (d *Dashboard) serveProbe(ctx context.Context, ln net.Listener) error {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, d.probe)
	d.syncProbe()

	d.logger.Info("probe endpoint listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve probe endpoint: %w", err)
	}
	return nil
}

// syncProbe publishes collector health to the probe. The process itself
// ("" service) is serving as long as it runs.
func (d *Dashboard) syncProbe() {
	d.probe.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if d.health.CollectorOK() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	d.probe.SetServingStatus(ProbeService, status)
}
