package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/tenantgate/internal/database/models"
)

func (s *Store) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	if err := s.conn(ctx).Omit("Organization", "Inviter").Create(inv).Error; err != nil {
		return fmt.Errorf("create invitation: %w", err)
	}
	return nil
}

func (s *Store) GetInvitation(ctx context.Context, id uuid.UUID) (*models.Invitation, error) {
	var inv models.Invitation
	if err := s.conn(ctx).Preload("Organization").First(&inv, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &inv, nil
}

// ListPendingInvitations returns unexpired pending invitations for an email.
func (s *Store) ListPendingInvitations(ctx context.Context, email string) ([]models.Invitation, error) {
	var invs []models.Invitation
	if err := s.conn(ctx).
		Preload("Organization").
		Where("email = ? AND status = ? AND expires_at > ?", email, models.InvitationPending, s.now()).
		Order("created_at ASC").
		Find(&invs).Error; err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	return invs, nil
}

// ResolveInvitation moves a pending invitation to status. Accepting
// additionally requires the invitation to be unexpired. It reports whether
// this call made the transition.
func (s *Store) ResolveInvitation(ctx context.Context, id uuid.UUID, status models.InvitationStatus) (bool, error) {
	q := s.conn(ctx).Model(&models.Invitation{}).
		Where("id = ? AND status = ?", id, models.InvitationPending)
	if status == models.InvitationAccepted {
		q = q.Where("expires_at > ?", s.now())
	}
	res := q.Update("status", status)
	if res.Error != nil {
		return false, fmt.Errorf("resolve invitation: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ExpireInvitations marks overdue pending invitations as expired.
func (s *Store) ExpireInvitations(ctx context.Context, now time.Time) (int64, error) {
	res := s.conn(ctx).Model(&models.Invitation{}).
		Where("status = ? AND expires_at <= ?", models.InvitationPending, now).
		Update("status", models.InvitationExpired)
	return res.RowsAffected, res.Error
}
