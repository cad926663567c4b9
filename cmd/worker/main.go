// Command worker runs background jobs: the scheduled orphan blob sweep.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/NoteDrop/internal/app"
	"github.com/dharsanguruparan/NoteDrop/internal/config"
	"github.com/dharsanguruparan/NoteDrop/internal/queue"
	"github.com/dharsanguruparan/NoteDrop/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := config.SetupLogger(cfg)
	slog.SetDefault(logger)

	if err := app.CheckSweepable(cfg); err != nil {
		logger.Error("worker refuses to sweep", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// The API server owns migrations.
	deps, err := app.Open(ctx, cfg, logger, false)
	if err != nil {
		logger.Error("init dependencies", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer deps.Close()

	redisOpt := queue.RedisOpt(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC})
	task, err := queue.NewSweepTask(queue.SweepPayload{})
	if err != nil {
		logger.Error("build sweep task", slog.String("error", err.Error()))
		os.Exit(1)
	}
	entryID, err := scheduler.Register(cfg.SweepCron, task)
	if err != nil {
		logger.Error("register sweep schedule", slog.String("cron", cfg.SweepCron), slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("sweep scheduled", slog.String("cron", cfg.SweepCron), slog.String("entry", entryID))

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 2,
	})
	processor := worker.NewProcessor(deps.Notes, cfg.SweepGrace, logger)

	if err := scheduler.Start(); err != nil {
		logger.Error("start scheduler", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := server.Start(processor.Handler()); err != nil {
		scheduler.Shutdown()
		logger.Error("start worker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("worker running", slog.String("redis", cfg.RedisAddr))

	<-ctx.Done()
	scheduler.Shutdown()
	server.Shutdown()
	logger.Info("worker stopped")
}
