package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/tenantgate/internal/database/models"
)

func (s *Store) CreateVerification(ctx context.Context, v *models.Verification) error {
	if err := s.conn(ctx).Create(v).Error; err != nil {
		return fmt.Errorf("create verification: %w", err)
	}
	return nil
}

func (s *Store) GetVerificationByHash(ctx context.Context, hash string) (*models.Verification, error) {
	var v models.Verification
	if err := s.conn(ctx).Where("value_hash = ?", hash).First(&v).Error; err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

// ConsumeVerification marks a token used. Only one caller can win: the update
// matches only an unconsumed, unexpired row.
func (s *Store) ConsumeVerification(ctx context.Context, id uuid.UUID) (bool, error) {
	now := s.now()
	res := s.conn(ctx).Model(&models.Verification{}).
		Where("id = ? AND consumed_at IS NULL AND expires_at > ?", id, now).
		Update("consumed_at", now)
	if res.Error != nil {
		return false, fmt.Errorf("consume verification: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// DeleteVerifications drops outstanding tokens of one purpose for a subject.
func (s *Store) DeleteVerifications(ctx context.Context, subjectID uuid.UUID, purpose models.VerificationPurpose) error {
	return s.conn(ctx).
		Where("subject_id = ? AND purpose = ? AND consumed_at IS NULL", subjectID, purpose).
		Delete(&models.Verification{}).Error
}

// DeleteStaleVerifications removes expired and consumed tokens.
func (s *Store) DeleteStaleVerifications(ctx context.Context, now time.Time) (int64, error) {
	res := s.conn(ctx).
		Where("expires_at <= ? OR consumed_at IS NOT NULL", now).
		Delete(&models.Verification{})
	return res.RowsAffected, res.Error
}
