// allocdesk server
// Serves allocation sessions over REST, WebSocket, and gRPC health.

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/saltfish/allocdesk/internal/api/grpc"
	httpapi "github.com/saltfish/allocdesk/internal/api/http"
	"github.com/saltfish/allocdesk/internal/catalog"
	"github.com/saltfish/allocdesk/internal/config"
	"github.com/saltfish/allocdesk/internal/events"
	"github.com/saltfish/allocdesk/internal/params"
	"github.com/saltfish/allocdesk/internal/remote"
	"github.com/saltfish/allocdesk/internal/scheduler"
	"github.com/saltfish/allocdesk/internal/session"
)

// Build-time variables (set via ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var _ session.Allocator = (*remote.Client)(nil)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (YAML)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting allocdesk",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("environment", cfg.Env),
		zap.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Application error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("allocdesk stopped")
}

// run initializes and runs all application components.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// 1. Remote allocation service client
	client := remote.NewClient(cfg.Remote.BaseURL, logger,
		remote.WithTimeout(cfg.Remote.RequestTimeout()),
		remote.WithProbeTimeout(cfg.Remote.ProbeDeadline()),
	)

	// 2. Event publisher (RabbitMQ)
	var eventPublisher events.Publisher
	if cfg.RabbitMQ.Enabled() {
		logger.Info("Connecting to RabbitMQ...")
		publisher, err := events.NewRabbitMQPublisher(&cfg.RabbitMQ, logger)
		if err != nil {
			logger.Warn("Failed to connect to RabbitMQ, using no-op publisher", zap.Error(err))
			eventPublisher = events.NewNoOpPublisher()
		} else {
			eventPublisher = publisher
			defer publisher.Close()
		}
	} else {
		logger.Info("RabbitMQ not configured, using no-op publisher")
		eventPublisher = events.NewNoOpPublisher()
	}

	// 3. WebSocket hub
	hub := httpapi.NewHub(logger.Named("ws"))
	go hub.Run()
	defer hub.Shutdown()

	// 4. Session manager
	sessions := session.NewManager(session.Deps{
		Client:   client,
		Registry: params.DefaultRegistry(),
		Static:   catalog.StaticDefinitions(),
		Flagship: cfg.Session.FlagshipStrategy,
		Notifier: session.MultiNotifier{hub, events.NewSessionNotifier(eventPublisher, logger)},
		Logger:   logger.Named("session"),
	}, cfg.Session.MaxSessions, logger.Named("sessions"))
	defer sessions.CloseAll()

	// 5. Event subscriber for remote service notices
	if cfg.RabbitMQ.Enabled() {
		subscriber, err := events.NewRabbitMQSubscriber(&cfg.RabbitMQ, logger)
		if err != nil {
			logger.Warn("Failed to create RabbitMQ subscriber, remote notices will not be relayed", zap.Error(err))
		} else {
			defer subscriber.Close()
			if err := subscriber.Subscribe(ctx, events.RemoteRoutingKeys, events.NewRemoteNoticeHandler(hub, logger)); err != nil {
				logger.Warn("Failed to subscribe to remote notices", zap.Error(err))
			}
		}
	}

	// 6. gRPC health server
	grpcServer := grpc.NewServer(logger)

	// 7. Availability monitor and session reaper
	monitor, err := scheduler.NewMonitor(&cfg.Scheduler, cfg.Session.IdleTimeout(), client, sessions, logger,
		scheduler.WithPublisher(eventPublisher),
		scheduler.WithStatusListener(grpcServer.SetRemoteAvailable),
		scheduler.WithStatusListener(func(available bool) {
			hub.BroadcastEvent(events.RoutingKeyBackendStatusChanged, map[string]interface{}{
				"available": available,
				"base_url":  client.BaseURL(),
			})
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}
	monitor.Start(ctx)

	// 8. HTTP server
	httpapi.Version = Version
	httpAddr := fmt.Sprintf(":%d", cfg.Server.HTTPPort)
	httpServer := httpapi.NewServer(httpAddr, sessions, hub, monitor, logger)

	go func() {
		if err := httpServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	grpcAddr := fmt.Sprintf(":%d", cfg.Server.GRPCPort)
	go func() {
		if err := grpcServer.Start(grpcAddr); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	logger.Info("allocdesk initialized and running",
		zap.String("grpc_address", grpcAddr),
		zap.String("http_address", httpAddr),
		zap.Bool("backend_available", monitor.Available()),
	)

	<-ctx.Done()

	logger.Info("Shutting down allocdesk...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownDeadline())
	defer shutdownCancel()

	grpcServer.Stop()
	logger.Info("gRPC server stopped")

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	if err := monitor.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping monitor", zap.Error(err))
	}

	return nil
}

// initLogger initializes the zap logger based on configuration.
func initLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Logging.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Logging.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	if cfg.Logging.OutputPath != "" {
		zapCfg.OutputPaths = []string{cfg.Logging.OutputPath}
	}

	return zapCfg.Build()
}
