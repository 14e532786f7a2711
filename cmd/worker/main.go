package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/tenantgate/internal/database"
	"github.com/hugh/tenantgate/internal/mail"
	"github.com/hugh/tenantgate/internal/store"
	"github.com/hugh/tenantgate/internal/tasks"
	"github.com/hugh/tenantgate/pkg/config"
	"github.com/hugh/tenantgate/pkg/queue"
	"github.com/hugh/tenantgate/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env, cfg.Server.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting tenantgate worker", "concurrency", cfg.Worker.Concurrency)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var sender mail.Sender = mail.NewLogSender(logger)
	if cfg.SMTP.Host != "" {
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	}

	handler := tasks.NewHandler(store.New(db), sender, logger)
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	srv := queue.NewServer(&cfg.Redis, cfg.Worker.Concurrency, logger)

	scheduler := queue.NewScheduler(&cfg.Redis)
	entryID, err := queue.RegisterPeriodic(scheduler, cfg.Worker.CleanupCron, tasks.NewCleanupExpiredTask())
	if err != nil {
		logger.Error("failed to schedule cleanup", "cron", cfg.Worker.CleanupCron, "error", err)
		os.Exit(1)
	}
	next, _ := util.NextCronTime(cfg.Worker.CleanupCron, time.Now().UTC())
	logger.Info("cleanup scheduled", "cron", cfg.Worker.CleanupCron, "entry_id", entryID, "next_run", next)

	if err := srv.Start(mux); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		srv.Shutdown()
		os.Exit(1)
	}

	logger.Info("worker started, waiting for tasks...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker...")
	scheduler.Shutdown()
	srv.Shutdown()

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}
