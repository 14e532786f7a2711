package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/hugh/tenantgate/internal/mail"
	"github.com/hugh/tenantgate/internal/store"
)

type Handler struct {
	store  *store.Store
	sender mail.Sender
	logger *slog.Logger
}

func NewHandler(s *store.Store, sender mail.Sender, logger *slog.Logger) *Handler {
	return &Handler{
		store:  s,
		sender: sender,
		logger: logger,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeSendEmail, h.HandleSendEmail)
	mux.HandleFunc(TypeCleanupExpired, h.HandleCleanupExpired)
}

func (h *Handler) HandleSendEmail(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}
	if payload.Message.To == "" {
		return fmt.Errorf("email has no recipient: %w", asynq.SkipRetry)
	}

	if err := h.sender.Send(ctx, payload.Message); err != nil {
		h.logger.Error("email delivery failed", "kind", payload.Kind, "error", err)
		return err
	}

	h.logger.Info("email delivered", "kind", payload.Kind)
	return nil
}

// HandleCleanupExpired removes expired sessions and spent tokens, and marks
// overdue invitations expired.
func (h *Handler) HandleCleanupExpired(ctx context.Context, t *asynq.Task) error {
	now := h.store.Now()

	sessions, err := h.store.DeleteExpiredSessions(ctx, now)
	if err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}

	tokens, err := h.store.DeleteStaleVerifications(ctx, now)
	if err != nil {
		return fmt.Errorf("delete stale verifications: %w", err)
	}

	invitations, err := h.store.ExpireInvitations(ctx, now)
	if err != nil {
		return fmt.Errorf("expire invitations: %w", err)
	}

	h.logger.Info("cleanup completed",
		"sessions_deleted", sessions,
		"verifications_deleted", tokens,
		"invitations_expired", invitations,
	)
	return nil
}
