package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/openfleet/location-relay/internal/config"
	"github.com/openfleet/location-relay/internal/metrics"
	"github.com/openfleet/location-relay/internal/room"
	"github.com/openfleet/location-relay/internal/server"
	"github.com/openfleet/location-relay/internal/store"
	"github.com/openfleet/location-relay/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/relay.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting relay",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"port", cfg.Server.Port,
		"throttle_window", cfg.Room.ThrottleWindow,
	)

	// Create context cancelled on shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Optional redis-backed last-sample cache
	var cache store.LastSampleStore
	if cfg.Redis.Enabled {
		logger.Info("connecting to redis", "addr", cfg.Redis.Addr)

		rs, err := store.NewRedisStore(ctx, store.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			SampleTTL: cfg.Redis.SampleTTL,
		})
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rs.Close()
		cache = rs

		logger.Info("redis connected")
	} else {
		cache = store.NewMemoryStore()
	}

	// Metrics
	var m *metrics.Metrics
	var srvOpts server.Options
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(registry)
		srvOpts.MetricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		srvOpts.MetricsPath = cfg.Metrics.Path
	}

	// Room registry
	rooms := room.NewRegistry(room.RegistryConfig{
		Room: room.Config{
			ThrottleWindow: cfg.Room.ThrottleWindow,
			InboxBuffer:    cfg.Room.InboxBuffer,
		},
		IdleTTL:         cfg.Room.IdleTTL,
		JanitorInterval: cfg.Room.JanitorInterval,
	}, cache, m, logger)

	if err := rooms.Start(ctx); err != nil {
		logger.Error("failed to start room registry", "error", err)
		os.Exit(1)
	}

	// HTTP edge
	srvOpts.Config = cfg.Server
	srvOpts.Secret = []byte(cfg.Auth.Secret)
	srvOpts.SendBuffer = cfg.Room.SendBuffer
	srvOpts.Registry = rooms
	srvOpts.Cache = cache
	srvOpts.Metrics = m
	srvOpts.Logger = logger

	srv := server.New(srvOpts)
	serveErr := srv.Start()

	logger.Info("relay running",
		"instance_id", cfg.Instance.ID,
		"port", cfg.Server.Port,
	)

	// Wait for a shutdown signal or a server failure
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok && err != nil {
			logger.Error("http server failed", "error", err)
		}
		cancel()
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(), shutdownTimeout(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// Drain the edge and the rooms concurrently; both respect the deadline.
	var g errgroup.Group
	g.Go(func() error { return srv.Stop(shutdownCtx) })
	g.Go(func() error { return rooms.Stop(shutdownCtx) })
	if err := g.Wait(); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("relay stopped")
}

func shutdownTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}
