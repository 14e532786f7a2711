package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hugh/tenantgate/internal/database/models"
	"github.com/hugh/tenantgate/internal/errs"
)

func (s *Store) CreateOrganization(ctx context.Context, org *models.Organization) error {
	if err := s.conn(ctx).Create(org).Error; err != nil {
		return fmt.Errorf("create organization: %w", duplicate(err, errs.ErrDuplicateSlug))
	}
	return nil
}

func (s *Store) GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	if err := s.conn(ctx).First(&org, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &org, nil
}

// DeleteOrganization removes the organization. Memberships and invitations
// cascade; sessions and users pointing at it are set to null.
func (s *Store) DeleteOrganization(ctx context.Context, id uuid.UUID) error {
	res := s.conn(ctx).Delete(&models.Organization{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete organization: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateOrganizationLogo(ctx context.Context, id uuid.UUID, logo string) error {
	return s.conn(ctx).Model(&models.Organization{}).
		Where("id = ?", id).
		Update("logo", logo).Error
}
