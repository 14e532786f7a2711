package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/tenantgate/internal/mail"
)

// Task type names
const (
	TypeSendEmail      = "email:send"
	TypeCleanupExpired = "maintenance:cleanup_expired"
)

// SendEmailPayload is a rendered message waiting for delivery
type SendEmailPayload struct {
	Message mail.Message `json:"message"`
	Kind    string       `json:"kind"` // verify_email, reset_password, invitation
}

func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSendEmail, data,
		asynq.Queue("critical"),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	), nil
}

// CleanupExpiredPayload is empty - cleanup covers every table
type CleanupExpiredPayload struct{}

func NewCleanupExpiredTask() *asynq.Task {
	return asynq.NewTask(TypeCleanupExpired, nil, asynq.Queue("low"))
}
