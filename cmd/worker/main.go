package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/nikhilbhutani/voicerelay/internal/config"
	"github.com/nikhilbhutani/voicerelay/internal/database"
	"github.com/nikhilbhutani/voicerelay/internal/queue"
	"github.com/nikhilbhutani/voicerelay/internal/queue/workers"
	"github.com/nikhilbhutani/voicerelay/internal/usage"
	"github.com/nikhilbhutani/voicerelay/migrations"
)

const concurrency = 4

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		slog.Error("DATABASE_URL is required for the usage worker")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db, migrations.FS); err != nil {
		slog.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				queue.QueueDefault: 3,
				queue.QueueLow:     1,
			},
		},
	)

	usageWorker := workers.NewUsageWorker(usage.NewDBRecorder(db))
	mux := queue.NewMux(map[string]asynq.Handler{
		queue.TypeUsageRecord: asynq.HandlerFunc(usageWorker.ProcessTask),
	})

	slog.Info("starting worker", "concurrency", concurrency)
	if err := srv.Run(mux); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
