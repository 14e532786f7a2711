package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/tenantgate/pkg/config"
	"github.com/hugh/tenantgate/pkg/util"
)

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
	}
}

func NewClient(cfg *config.RedisConfig) *asynq.Client {
	return asynq.NewClient(redisOpt(cfg))
}

// NewServer builds the worker server. Failed task attempts are logged; asynq
// owns the retries.
func NewServer(cfg *config.RedisConfig, concurrency int, logger *slog.Logger) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 10
	}

	return asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			"critical": 6,
			"default":  3,
			"low":      1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error("task failed",
				"type", task.Type(),
				"attempt", retried+1,
				"max_retry", maxRetry,
				"error", err,
			)
		}),
	})
}

func NewScheduler(cfg *config.RedisConfig) *asynq.Scheduler {
	return asynq.NewScheduler(redisOpt(cfg), &asynq.SchedulerOpts{Location: time.UTC})
}

// RegisterPeriodic schedules task on cronExpr (five fields, UTC).
func RegisterPeriodic(s *asynq.Scheduler, cronExpr string, task *asynq.Task) (string, error) {
	if err := util.ValidateCronExpr(cronExpr); err != nil {
		return "", err
	}
	id, err := s.Register(cronExpr, task)
	if err != nil {
		return "", fmt.Errorf("register %s: %w", task.Type(), err)
	}
	return id, nil
}
