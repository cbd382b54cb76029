package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"thumbnail_watcher/internal/config"
	"thumbnail_watcher/internal/differ"
	"thumbnail_watcher/internal/fingerprint"
	"thumbnail_watcher/internal/notifier"
	"thumbnail_watcher/internal/publisher"
	"thumbnail_watcher/internal/scheduler"
	"thumbnail_watcher/internal/server"
	"thumbnail_watcher/internal/service"
	"thumbnail_watcher/internal/source/youtube"
	"thumbnail_watcher/internal/storage/database"
	"thumbnail_watcher/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

type transport interface {
	notifier.Transport
	Close() error
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		Insecure:     cfg.Telemetry.Insecure,
		ServiceName:  cfg.Telemetry.ServiceName,
	})
	if err != nil {
		logger.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	db, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database", "driver", cfg.Database.Driver)

	sink, err := newTransport(cfg.Notifier, logger)
	if err != nil {
		logger.Error("failed to set up notification transport", "transport", cfg.Notifier.Transport, "error", err)
		os.Exit(1)
	}
	defer sink.Close()

	// Initialize stores
	videoStore := database.NewVideoStore(db)
	syncStateStore := database.NewSyncStateStore(db)
	txManager := database.NewTransactionManager(db)

	source := youtube.New(youtube.Config{
		BaseURL:           cfg.YouTube.BaseURL,
		APIKey:            cfg.YouTube.APIKey,
		PageSize:          cfg.YouTube.PageSize,
		Timeout:           cfg.YouTube.Timeout,
		RequestsPerSecond: cfg.YouTube.RequestsPerSecond,
		Burst:             cfg.YouTube.Burst,
	}, logger)

	fp := fingerprint.New(fingerprint.Config{
		Timeout:             cfg.Thumbnails.Timeout,
		MaxBytes:            cfg.Thumbnails.MaxBytes,
		ConsecutiveFailures: cfg.Thumbnails.Breaker.ConsecutiveFailures,
		OpenTimeout:         cfg.Thumbnails.Breaker.OpenTimeout,
	}, logger)

	syncService := service.NewSyncService(
		source,
		videoStore,
		syncStateStore,
		txManager,
		differ.New(fp, cfg.Thumbnails.Concurrency, logger),
		notifier.New(sink, cfg.Notifier.NotifyNew, logger),
		cfg.Notifier.Timeout,
		logger,
	)

	sched := scheduler.NewScheduler(syncService, cfg.Sync.Channels, cfg.Sync.Interval, cfg.Sync.RunTimeout, logger)

	var ops *server.Server
	if cfg.Server.Addr != "" {
		ops = server.New(cfg.Server.Addr, db, syncStateStore, videoStore, logger)
		go func() {
			if err := ops.Start(); err != nil {
				logger.Error("ops server error", "error", err)
				cancel()
			}
		}()
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting thumbnail watcher",
		"channels", cfg.Sync.Channels,
		"interval", cfg.Sync.Interval,
		"transport", cfg.Notifier.Transport,
		"notify_new", cfg.Notifier.NotifyNew,
	)

	err = sched.Start(ctx)

	if ops != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := ops.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to stop ops server", "error", err)
		}
		shutdownCancel()
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func newTransport(cfg config.NotifierConfig, logger *slog.Logger) (transport, error) {
	if cfg.Transport == "discord" {
		return publisher.NewDiscord(publisher.DiscordConfig{
			WebhookURL:        cfg.Discord.WebhookURL,
			Mention:           cfg.Discord.Mention,
			Timeout:           cfg.Discord.Timeout,
			RequestsPerSecond: cfg.Discord.RequestsPerSecond,
		}, logger), nil
	}

	return publisher.NewRabbitMQ(publisher.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
	}, logger)
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
