package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/skypro1111/tcp-http-server/internal/config"
	"github.com/skypro1111/tcp-http-server/internal/handler"
	"github.com/skypro1111/tcp-http-server/internal/metrics"
	"github.com/skypro1111/tcp-http-server/internal/server"
	"github.com/skypro1111/tcp-http-server/internal/session"
)

// tracingFlushTimeout bounds exporting the spans still buffered at exit.
const tracingFlushTimeout = 5 * time.Second

func serveCmd() *cobra.Command {
	var (
		configPath string
		port       int
		workers    int
		staticRoot string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server and block until SIGINT or SIGTERM.

The first signal stops accepting connections and drains the worker pool.
A second signal interrupts the drain.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("port") {
				cfg.Server.Port = port
			}
			if flags.Changed("workers") {
				cfg.Server.WorkerPoolSize = workers
			}
			if flags.Changed("static") {
				cfg.Static.Root = staticRoot
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config validation failed: %w", err)
			}

			return run(cfg, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides server.port)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Worker pool size (overrides server.worker_pool_size)")
	cmd.Flags().StringVar(&staticRoot, "static", "", "Static content directory (overrides static.root)")

	return cmd
}

// loadConfig reads path, falling back to the defaults when the default
// path does not exist.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	if !explicit {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

func run(cfg *config.Config, configPath string) error {
	logger, closer := initLogger(cfg.Logging)
	defer closer.Close()

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", version),
		slog.String("config_path", configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("worker_pool_size", cfg.Server.WorkerPoolSize),
		slog.Int("queue_size", cfg.Server.QueueSize),
		slog.Duration("session_timeout", cfg.Session.GetTimeoutDuration()),
		slog.String("static_root", cfg.Static.Root),
		slog.Bool("metrics_enabled", cfg.Metrics.Enabled),
		slog.String("log_level", cfg.Logging.Level),
		slog.Bool("tracing_enabled", cfg.Tracing.Enabled),
	)

	tracerProvider, shutdownTracing, err := initTracing(cfg.Tracing, logger)
	if err != nil {
		logger.Error("Failed to initialize tracing", slog.String("error", err.Error()))
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), tracingFlushTimeout)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("Failed to flush spans", slog.String("error", err.Error()))
		}
	}()

	registry := metrics.NewRegistry()
	appMetrics := metrics.NewMetrics(registry)

	static, err := loadStatic(cfg.Static.Root)
	if err != nil {
		logger.Warn("Static content disabled", slog.String("root", cfg.Static.Root), slog.String("error", err.Error()))
	} else if static != nil {
		logger.Info("Static content loaded", slog.String("root", cfg.Static.Root), slog.Int("files", static.Len()))
	}

	sessions := session.NewStore(logger, session.Config{
		Timeout:       cfg.Session.GetTimeoutDuration(),
		SweepInterval: cfg.Session.GetSweepInterval(),
	}, appMetrics)
	defer sessions.Stop()

	handlers := newRoutes(logger, sessions, cfg.Session.CookieName).handlers()
	if cfg.Metrics.Enabled {
		handlers = append(handlers, handler.NewMetricsHandler(cfg.Metrics.Path, registry))
	}
	dispatcher := handler.NewDispatcher(logger, handlers, static, appMetrics)

	srv, err := server.NewServer(server.Config{
		Port:                cfg.Server.Port,
		BindAddress:         cfg.Server.BindAddress,
		WorkerPoolSize:      cfg.Server.WorkerPoolSize,
		QueueSize:           cfg.Server.QueueSize,
		ShutdownGracePeriod: cfg.Server.GetShutdownGracePeriod(),
		MaxHeaderBytes:      cfg.Server.MaxHeaderBytes,
		MaxBodyBytes:        cfg.Server.MaxBodyBytes,
		TracerProvider:      tracerProvider,
	}, dispatcher, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to create server", slog.String("error", err.Error()))
		return err
	}

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	srv.Start()
	logger.Info("Server started, waiting for signals...", slog.String("address", srv.Addr().String()))

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-srv.Done():
		logger.Error("Server stopped unexpectedly")
	}

	logger.Info("Starting graceful shutdown...")

	stopCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case sig := <-sigChan:
			logger.Warn("Received second signal, interrupting drain", slog.String("signal", sig.String()))
			cancel()
		case <-stopCtx.Done():
		}
	}()

	if err := srv.Stop(stopCtx); err != nil {
		logger.Error("Server did not stop cleanly", slog.String("error", err.Error()))
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("Service stopped", slog.Int("active_sessions", sessions.Len()))
	return nil
}

// loadStatic returns nil when root is empty.
func loadStatic(root string) (*handler.StaticFiles, error) {
	if root == "" {
		return nil, nil
	}
	return handler.LoadStaticFiles(os.DirFS(root))
}
