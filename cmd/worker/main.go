package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"media_bridge/internal/blobstore"
	"media_bridge/internal/config"
	"media_bridge/internal/queue"
	"media_bridge/internal/worker"
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

	blobs, err := blobstore.New(ctx, cfg.Blob)
	if err != nil {
		logger.Error("failed to initialize blob store", "error", err)
		os.Exit(1)
	}

	w := worker.New(cfg.Downloads, blobs, mq, logger)

	logger.Info("starting download worker",
		"jobs_queue", cfg.RabbitMQ.JobsQueue,
		"max_fetch_size", cfg.Downloads.MaxFetchSize,
	)

	if err := mq.ConsumeJobs(ctx, w.Handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("job consumer error", "error", err)
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
