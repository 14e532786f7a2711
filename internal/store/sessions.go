package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/tenantgate/internal/database/models"
)

func (s *Store) CreateSession(ctx context.Context, session *models.Session) error {
	if err := s.conn(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Store) GetSessionByToken(ctx context.Context, token string) (*models.Session, error) {
	var session models.Session
	if err := s.conn(ctx).Where("token = ?", token).First(&session).Error; err != nil {
		return nil, notFound(err)
	}
	return &session, nil
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var session models.Session
	if err := s.conn(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &session, nil
}

func (s *Store) DeleteSession(ctx context.Context, id uuid.UUID) error {
	return s.conn(ctx).Delete(&models.Session{}, "id = ?", id).Error
}

// DeleteUserSessions revokes every session of a user.
func (s *Store) DeleteUserSessions(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := s.conn(ctx).Delete(&models.Session{}, "user_id = ?", userID)
	return res.RowsAffected, res.Error
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res := s.conn(ctx).Delete(&models.Session{}, "expires_at <= ?", now)
	return res.RowsAffected, res.Error
}

// RefreshSession moves the expiry and re-stamps the active organization.
func (s *Store) RefreshSession(ctx context.Context, id uuid.UUID, refreshedAt, expiresAt time.Time, orgID *uuid.UUID) error {
	return s.conn(ctx).Model(&models.Session{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"refreshed_at":           refreshedAt,
			"expires_at":             expiresAt,
			"active_organization_id": orgID,
		}).Error
}

func (s *Store) SetSessionActiveOrganization(ctx context.Context, id uuid.UUID, orgID *uuid.UUID) error {
	return s.conn(ctx).Model(&models.Session{}).
		Where("id = ?", id).
		Update("active_organization_id", orgID).Error
}

// SwitchSessionOrganization points a live session at orgID only when the
// session's user is a member of orgID. The membership check and the write are
// one statement, so a concurrent membership removal cannot interleave. It
// reports whether the session was updated.
func (s *Store) SwitchSessionOrganization(ctx context.Context, sessionID, orgID uuid.UUID) (bool, error) {
	res := s.conn(ctx).Model(&models.Session{}).
		Where("id = ? AND expires_at > ?", sessionID, s.now()).
		Where("EXISTS (SELECT 1 FROM members WHERE members.user_id = sessions.user_id AND members.organization_id = ?)", orgID).
		Update("active_organization_id", orgID)
	if res.Error != nil {
		return false, fmt.Errorf("switch session organization: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
