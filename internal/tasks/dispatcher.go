package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/hugh/tenantgate/internal/mail"
)

// Dispatcher hands an email off for delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, kind string, msg mail.Message) error
}

// QueueDispatcher enqueues emails for the worker. Retries are asynq's.
type QueueDispatcher struct {
	client *asynq.Client
	logger *slog.Logger
}

func NewQueueDispatcher(client *asynq.Client, logger *slog.Logger) *QueueDispatcher {
	return &QueueDispatcher{client: client, logger: logger}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, kind string, msg mail.Message) error {
	task, err := NewSendEmailTask(SendEmailPayload{Message: msg, Kind: kind})
	if err != nil {
		return fmt.Errorf("create email task: %w", err)
	}

	info, err := d.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue email task: %w", err)
	}

	d.logger.Debug("email enqueued", "kind", kind, "task_id", info.ID)
	return nil
}

// DirectDispatcher sends in-process. Used when no queue is available.
type DirectDispatcher struct {
	sender mail.Sender
}

func NewDirectDispatcher(sender mail.Sender) *DirectDispatcher {
	return &DirectDispatcher{sender: sender}
}

func (d *DirectDispatcher) Dispatch(ctx context.Context, kind string, msg mail.Message) error {
	return d.sender.Send(ctx, msg)
}

var (
	_ Dispatcher = (*QueueDispatcher)(nil)
	_ Dispatcher = (*DirectDispatcher)(nil)
)
