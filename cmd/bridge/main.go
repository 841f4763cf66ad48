package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"media_bridge/internal/blobstore"
	"media_bridge/internal/config"
	"media_bridge/internal/gateway"
	"media_bridge/internal/lifecycle"
	"media_bridge/internal/notifier"
	"media_bridge/internal/queue"
	"media_bridge/internal/ratelimit"
	"media_bridge/internal/scheduler"
	"media_bridge/internal/service"
	"media_bridge/internal/storage/postgres"
	"media_bridge/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	mq, err := queue.NewRabbitMQ(queue.Config{
		URL:          cfg.RabbitMQ.URL,
		Exchange:     cfg.RabbitMQ.Exchange,
		JobsQueue:    cfg.RabbitMQ.JobsQueue,
		ResultsQueue: cfg.RabbitMQ.ResultsQueue,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer mq.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	var sink service.Telemetry = telemetry.Noop{}
	if cfg.Telemetry.Endpoint != "" {
		sink = telemetry.NewHTTPSink(cfg.Telemetry.Endpoint, cfg.Telemetry.APIKey, logger)
	}

	tg, err := notifier.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, logger)
	if err != nil {
		logger.Error("failed to initialize telegram notifier", "error", err)
		os.Exit(1)
	}

	blobs, err := blobstore.New(ctx, cfg.Blob)
	if err != nil {
		logger.Error("failed to initialize blob store", "error", err)
		os.Exit(1)
	}

	userStore := postgres.NewUserStore(db)
	downloadStore := postgres.NewDownloadStore(db)
	errorStore := postgres.NewErrorStore(db)
	txManager := postgres.NewTransactionManager(db)

	machine := lifecycle.NewMachine(tg, sink, logger)
	limiter := ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.Window)
	sidecar := gateway.NewClient(cfg.Gateway, logger)

	dispatch := service.NewDispatchService(
		userStore,
		downloadStore,
		errorStore,
		sidecar,
		mq,
		limiter,
		sink,
		blobs,
		machine,
		logger,
		cfg.Downloads,
		cfg.RabbitMQ.JobsQueue,
	)
	mq.OnCompleted(dispatch.HandleCompleted)
	mq.OnFailed(dispatch.HandleFailed)

	unread := service.NewUnreadService(
		sidecar,
		tg,
		downloadStore,
		errorStore,
		txManager,
		sink,
		logger,
		cfg.Downloads.StaleAfter,
	)
	sched := scheduler.NewScheduler(unread, machine, cfg.Unread.Interval, logger)

	// Pairing images always land on local disk so the notifier can upload
	// them, regardless of the artifact backend.
	qrStore := blobstore.NewLocal(cfg.Blob.Dir)
	server := gateway.NewServer(cfg.Gateway.ListenAddr, dispatch, machine, qrStore, logger)

	go func() {
		if err := mq.ConsumeResults(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("result consumer stopped", "error", err)
			cancel()
		}
	}()
	go func() {
		if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler stopped", "error", err)
			cancel()
		}
	}()

	logger.Info("starting bridge",
		"listen_addr", cfg.Gateway.ListenAddr,
		"sidecar_url", cfg.Gateway.SidecarURL,
		"unread_interval", cfg.Unread.Interval,
	)

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("webhook server error", "error", err)
		os.Exit(1)
	}
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
