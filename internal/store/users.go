package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hugh/tenantgate/internal/database/models"
	"github.com/hugh/tenantgate/internal/errs"
)

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if err := s.conn(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", duplicate(err, errs.ErrDuplicateEmail))
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.conn(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// GetUserByEmail expects a normalized address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.conn(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// MarkEmailVerified flips email_verified to true. It reports false when the
// flag was already set; the flag never goes back.
func (s *Store) MarkEmailVerified(ctx context.Context, userID uuid.UUID) (bool, error) {
	res := s.conn(ctx).Model(&models.User{}).
		Where("id = ? AND email_verified = ?", userID, false).
		Update("email_verified", true)
	if res.Error != nil {
		return false, fmt.Errorf("mark email verified: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// SetUserActiveOrganization records the last organization the user switched
// to. A nil orgID clears it.
func (s *Store) SetUserActiveOrganization(ctx context.Context, userID uuid.UUID, orgID *uuid.UUID) error {
	return s.conn(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("active_organization_id", orgID).Error
}
