// Package membership holds the membership registry, the role model and the
// active-organization resolver.
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/tenantgate/internal/database/models"
	"github.com/hugh/tenantgate/internal/errs"
	"github.com/hugh/tenantgate/internal/store"
)

// Membership is one organization a user belongs to, with the user's role.
type Membership struct {
	Organization models.Organization `json:"organization"`
	Role         Role                `json:"role"`
	JoinedAt     time.Time           `json:"joined_at"`
}

// Registry records which users belong to which organizations. Membership
// changes never touch sessions; an active organization a user has left is
// caught on the next switch or refresh.
type Registry struct {
	store  *store.Store
	logger *slog.Logger
}

func NewRegistry(s *store.Store, logger *slog.Logger) *Registry {
	return &Registry{store: s, logger: logger}
}

// WithStore returns a registry bound to s, typically a transaction.
func (r *Registry) WithStore(s *store.Store) *Registry {
	return &Registry{store: s, logger: r.logger}
}

func (r *Registry) AddMember(ctx context.Context, userID, orgID uuid.UUID, role Role) (*models.Member, error) {
	if !role.Valid() {
		return nil, errs.Validation("role", "Role must be one of member, admin, owner")
	}

	member := &models.Member{
		OrganizationID: orgID,
		UserID:         userID,
		Role:           string(role),
	}
	if err := r.store.CreateMember(ctx, member); err != nil {
		return nil, err
	}

	r.logger.Info("member added", "user_id", userID, "organization_id", orgID, "role", role)
	return member, nil
}

// ListMemberships returns the user's memberships oldest first. An empty list
// is a valid state.
func (r *Registry) ListMemberships(ctx context.Context, userID uuid.UUID) ([]Membership, error) {
	members, err := r.store.ListUserMembers(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]Membership, 0, len(members))
	for _, m := range members {
		if m.Organization == nil {
			continue
		}
		out = append(out, Membership{
			Organization: *m.Organization,
			Role:         Role(m.Role),
			JoinedAt:     m.CreatedAt,
		})
	}
	return out, nil
}

// GetMembership returns errs.ErrNotAMember when the pair does not exist.
func (r *Registry) GetMembership(ctx context.Context, userID, orgID uuid.UUID) (*models.Member, error) {
	member, err := r.store.GetMember(ctx, userID, orgID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrNotAMember
		}
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return member, nil
}

// RemoveMember is idempotent.
func (r *Registry) RemoveMember(ctx context.Context, userID, orgID uuid.UUID) error {
	n, err := r.store.DeleteMember(ctx, userID, orgID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if n > 0 {
		r.logger.Info("member removed", "user_id", userID, "organization_id", orgID)
	}
	return nil
}

// ListMembers returns the members of an organization, oldest first.
func (r *Registry) ListMembers(ctx context.Context, orgID uuid.UUID) ([]models.Member, error) {
	return r.store.ListOrganizationMembers(ctx, orgID)
}

func (r *Registry) UpdateRole(ctx context.Context, userID, orgID uuid.UUID, role Role) error {
	if !role.Valid() {
		return errs.Validation("role", "Role must be one of member, admin, owner")
	}
	ok, err := r.store.UpdateMemberRole(ctx, userID, orgID, string(role))
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrNotAMember
	}
	r.logger.Info("member role updated", "user_id", userID, "organization_id", orgID, "role", role)
	return nil
}

// Authorize returns the caller's membership when its role grants p.
func (r *Registry) Authorize(ctx context.Context, userID, orgID uuid.UUID, p Permission) (*models.Member, error) {
	member, err := r.GetMembership(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	if !Can(Role(member.Role), p) {
		r.logger.Warn("permission denied",
			"user_id", userID,
			"organization_id", orgID,
			"role", member.Role,
			"permission", p,
		)
		return nil, errs.ErrForbidden
	}
	return member, nil
}

// CountOwners is used to keep at least one owner per organization.
func (r *Registry) CountOwners(ctx context.Context, orgID uuid.UUID) (int64, error) {
	return r.store.CountMembersWithRole(ctx, orgID, string(RoleOwner))
}
