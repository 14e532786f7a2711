package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hugh/tenantgate/internal/database/models"
	"github.com/hugh/tenantgate/internal/errs"
)

func (s *Store) CreateMember(ctx context.Context, member *models.Member) error {
	if err := s.conn(ctx).Omit("Organization", "User").Create(member).Error; err != nil {
		return fmt.Errorf("create member: %w", duplicate(err, errs.ErrDuplicateMembership))
	}
	return nil
}

func (s *Store) GetMember(ctx context.Context, userID, orgID uuid.UUID) (*models.Member, error) {
	var member models.Member
	if err := s.conn(ctx).
		Where("user_id = ? AND organization_id = ?", userID, orgID).
		First(&member).Error; err != nil {
		return nil, notFound(err)
	}
	return &member, nil
}

// ListUserMembers returns a user's memberships with their organizations, in
// store order (oldest membership first).
func (s *Store) ListUserMembers(ctx context.Context, userID uuid.UUID) ([]models.Member, error) {
	var members []models.Member
	if err := s.conn(ctx).
		Preload("Organization").
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&members).Error; err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return members, nil
}

// ListOrganizationMembers returns an organization's members with their users.
func (s *Store) ListOrganizationMembers(ctx context.Context, orgID uuid.UUID) ([]models.Member, error) {
	var members []models.Member
	if err := s.conn(ctx).
		Preload("User").
		Where("organization_id = ?", orgID).
		Order("created_at ASC, id ASC").
		Find(&members).Error; err != nil {
		return nil, fmt.Errorf("list organization members: %w", err)
	}
	return members, nil
}

// DeleteMember removes a membership if it exists.
func (s *Store) DeleteMember(ctx context.Context, userID, orgID uuid.UUID) (int64, error) {
	res := s.conn(ctx).Delete(&models.Member{}, "user_id = ? AND organization_id = ?", userID, orgID)
	return res.RowsAffected, res.Error
}

func (s *Store) UpdateMemberRole(ctx context.Context, userID, orgID uuid.UUID, role string) (bool, error) {
	res := s.conn(ctx).Model(&models.Member{}).
		Where("user_id = ? AND organization_id = ?", userID, orgID).
		Update("role", role)
	if res.Error != nil {
		return false, fmt.Errorf("update member role: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) CountMembersWithRole(ctx context.Context, orgID uuid.UUID, role string) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&models.Member{}).
		Where("organization_id = ? AND role = ?", orgID, role).
		Count(&n).Error
	return n, err
}
