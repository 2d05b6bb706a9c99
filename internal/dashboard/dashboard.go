package dashboard

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc/health"

	"dietpi-dashboard/internal/auth"
	"dietpi-dashboard/internal/broadcast"
	"dietpi-dashboard/internal/collector"
	"dietpi-dashboard/internal/command"
	"dietpi-dashboard/internal/config"
	"dietpi-dashboard/internal/gateway"
	"dietpi-dashboard/internal/hostops"
	"dietpi-dashboard/internal/model"
	"dietpi-dashboard/internal/session"
	"dietpi-dashboard/internal/system"
)

type Dashboard struct {
	cfg       config.Config
	logger    *slog.Logger
	tlsCfg    *tls.Config
	scheduler *collector.Scheduler
	sessions  *session.Manager
	executor  *command.Executor
	gateway   *gateway.Server
	health    *HealthStatus
	probe     *health.Server
	closers   []io.Closer
}

func New(cfg config.Config, logger *slog.Logger) (*Dashboard, error) {
	tlsCfg, err := cfg.TLSConfig()
	if err != nil {
		return nil, fmt.Errorf("tls config: %w", err)
	}

	readers, closers := buildReaders(cfg, logger, system.DockerAvailable())
	if len(readers) == 0 {
		return nil, errors.New("no metric topic can be collected on this host")
	}
	coll := collector.New(logger, readers, collector.Options{
		ReadTimeout: cfg.TopicReadTimeout,
		SlowRefresh: cfg.SlowTopicRefresh,
	})

	sessions := session.NewManager(logger, session.Options{
		HandshakeTimeout:     cfg.HandshakeTimeout,
		IdleTimeout:          cfg.IdleTimeout,
		SweepInterval:        cfg.SweepInterval,
		QueueCapacity:        cfg.QueueCapacity,
		ControlQueueCapacity: cfg.ControlQueueCapacity,
	})
	mux := broadcast.New(logger, sessions)

	executor := command.NewExecutor(logger, command.Host{
		Signals:  hostops.NewSignaler(),
		Shell:    hostops.NewShell(cfg.ShellPath, hostops.DefaultOutputLimit),
		Software: hostops.NewSoftware(cfg.DietPiDir, hostops.DefaultOutputLimit),
		Services: hostops.NewServices(hostops.DefaultOutputLimit),
		Ping:     hostops.NewPinger(),
		Files:    hostops.NewFiles(cfg.FileRoot, hostops.DefaultOutputLimit),
		Power:    hostops.NewPower(hostops.DefaultOutputLimit),
	}, command.Options{
		CommandTimeout:  cfg.CommandTimeout,
		SoftwareTimeout: cfg.SoftwareTimeout,
		Backlog:         cfg.CommandBacklog,
		ShellEnabled:    cfg.ShellEnabled,
		PowerEnabled:    cfg.PowerEnabled,
	})

	h := NewHealthStatus(cfg.Version)
	scheduler := collector.NewScheduler(logger, coll, mux, h, cfg.CollectInterval, cfg.CollectorErrorBackoff, cfg.MaxCollectFailures)

	gw := gateway.New(logger, gateway.Options{
		MaxSessions:     cfg.MaxSessions,
		ReadLimit:       cfg.WebSocketReadLimit,
		WriteTimeout:    cfg.WebSocketWriteTimeout,
		PingInterval:    cfg.WebSocketPingInterval,
		CollectInterval: cfg.CollectInterval,
		OriginPatterns:  cfg.AllowedOrigins,
	}, gateway.Deps{
		Auth: auth.New(auth.Options{
			Enabled:      cfg.AuthEnabled,
			PasswordHash: cfg.PasswordHash,
			Secret:       cfg.Secret,
			Expiry:       cfg.TokenExpiry,
		}),
		Sessions:     sessions,
		Executor:     executor,
		Health:       h,
		Topics:       coll.Topics(),
		UpdateNotice: system.NewHostReader(cfg.DietPiDir).UpdateNotice,
	})
	h.Attach(sessions.Count, gw.Refused, mux.Totals)

	return &Dashboard{
		cfg:       cfg,
		logger:    logger,
		tlsCfg:    tlsCfg,
		scheduler: scheduler,
		sessions:  sessions,
		executor:  executor,
		gateway:   gw,
		health:    h,
		probe:     health.NewServer(),
		closers:   closers,
	}, nil
}

// buildReaders returns one reader per enabled topic the host supports.
func buildReaders(cfg config.Config, logger *slog.Logger, docker bool) ([]collector.Reader, []io.Closer) {
	enabled := cfg.EnabledTopics()
	var readers []collector.Reader
	var closers []io.Closer
	for _, topic := range model.AllTopics {
		if !enabled.Has(topic) {
			continue
		}
		switch topic {
		case model.TopicCPU:
			readers = append(readers, system.NewCPUReader())
		case model.TopicMemory:
			readers = append(readers, system.NewMemoryReader())
		case model.TopicSwap:
			readers = append(readers, system.NewSwapReader())
		case model.TopicDisk:
			readers = append(readers, system.NewDiskReader(logger))
		case model.TopicNetwork:
			readers = append(readers, system.NewNetworkReader())
		case model.TopicProcesses:
			readers = append(readers, system.NewProcessReader(cfg.ProcessLimit))
		case model.TopicHost:
			readers = append(readers, system.NewHostReader(cfg.DietPiDir))
		case model.TopicServices:
			readers = append(readers, system.NewServiceReader())
		case model.TopicSoftware:
			readers = append(readers, system.NewSoftwareReader(cfg.DietPiDir))
		case model.TopicContainers:
			if !docker {
				logger.Info("docker socket not found, containers topic disabled", "socket", system.DockerSocket)
				continue
			}
			r := system.NewContainerReader()
			readers = append(readers, r)
			closers = append(closers, r)
		}
	}
	return readers, closers
}

func (d *Dashboard) Run(ctx context.Context) error {
	d.logger.Info("starting dietpi-dashboard", "version", d.cfg.Version, "listen", d.cfg.ListenAddr, "auth", d.cfg.AuthEnabled)
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- d.run(runCtx)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case runErr = <-runErrCh:
	case sig := <-sigCh:
		d.logger.Info("shutdown signal received, starting graceful shutdown", "signal", sig.String(), "timeout", d.cfg.ShutdownTimeout)
		cancelRun()

		graceTimer := time.NewTimer(d.cfg.ShutdownTimeout)
		defer graceTimer.Stop()

		select {
		case runErr = <-runErrCh:
		case sig2 := <-sigCh:
			d.logger.Warn("second signal received, forcing immediate shutdown", "signal", sig2.String())
			runErr = context.Canceled
		case <-graceTimer.C:
			d.logger.Warn("graceful shutdown timeout reached, forcing shutdown", "timeout", d.cfg.ShutdownTimeout)
			runErr = context.DeadlineExceeded
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), d.cfg.ShutdownTimeout)
	defer cancelShutdown()
	d.shutdown(shutdownCtx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	d.logger.Info("dietpi-dashboard stopped")
	return nil
}

func BuildLogger(cfg config.Config) *slog.Logger {
	return buildLogger(cfg, os.Stdout)
}

func buildLogger(cfg config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	hOpts := &slog.HandlerOptions{Level: level}
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(w, hOpts))
	}
	return slog.New(slog.NewTextHandler(w, hOpts))
}
