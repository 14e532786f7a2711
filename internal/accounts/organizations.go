package accounts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/hugh/tenantgate/internal/database/models"
	"github.com/hugh/tenantgate/internal/errs"
	"github.com/hugh/tenantgate/internal/membership"
	"github.com/hugh/tenantgate/internal/session"
	"github.com/hugh/tenantgate/internal/store"
	"github.com/hugh/tenantgate/internal/validation"
)

type CreateOrganizationInput struct {
	Name     string
	Slug     string
	Logo     *string
	Metadata *string
}

func (s *Service) ListOrganizations(ctx context.Context, sessionToken string) Result {
	snap, err := s.authenticate(ctx, sessionToken)
	if err != nil {
		return s.fail("list_organizations", err)
	}

	memberships, err := s.registry.ListMemberships(ctx, snap.User.ID)
	if err != nil {
		return s.fail("list_organizations", err)
	}

	orgs := make([]*OrganizationData, 0, len(memberships))
	for i := range memberships {
		m := &memberships[i]
		org := organizationData(&m.Organization, string(m.Role))
		org.Active = snap.Session.ActiveOrganizationID != nil && *snap.Session.ActiveOrganizationID == m.Organization.ID
		orgs = append(orgs, org)
	}
	return ok("", orgs)
}

// CreateOrganization creates an organization with the caller as its owner and
// makes it the session's active organization when none is set.
func (s *Service) CreateOrganization(ctx context.Context, sessionToken string, in CreateOrganizationInput) Result {
	snap, err := s.authenticateVerified(ctx, sessionToken)
	if err != nil {
		return s.fail("create_organization", err)
	}

	name, err := validation.Name("name", in.Name)
	if err != nil {
		return s.fail("create_organization", err)
	}
	slug, err := validation.Slug(in.Slug, name)
	if err != nil {
		return s.fail("create_organization", err)
	}

	org := &models.Organization{
		Name:     name,
		Slug:     slug,
		Logo:     in.Logo,
		Metadata: in.Metadata,
	}
	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.CreateOrganization(ctx, org); err != nil {
			return err
		}
		_, err := s.registry.WithStore(tx).AddMember(ctx, snap.User.ID, org.ID, membership.RoleOwner)
		return err
	})
	if err != nil {
		return s.fail("create_organization", err)
	}

	s.logger.Info("organization created", "organization_id", org.ID, "slug", org.Slug, "owner_id", snap.User.ID)

	data := organizationData(org, string(membership.RoleOwner))
	if err := s.coordinator.SetActiveIfUnset(ctx, snap.Session, org); err != nil {
		s.logger.Warn("failed to activate new organization", "session_id", snap.Session.ID, "error", err)
	}
	data.Active = snap.Session.ActiveOrganizationID != nil && *snap.Session.ActiveOrganizationID == org.ID
	return ok("Organization created", data)
}

func (s *Service) SwitchActiveOrganization(ctx context.Context, sessionToken, organizationID string) Result {
	id, err := parseID("organization_id", organizationID)
	if err != nil {
		return s.fail("switch_active_organization", err)
	}
	if sessionToken == "" {
		return s.fail("switch_active_organization", errs.ErrUnauthenticated)
	}

	snap, err := s.coordinator.SwitchActive(ctx, sessionToken, id)
	if err != nil {
		return s.fail("switch_active_organization", err)
	}
	data, err := s.sessionData(snap, false)
	if err != nil {
		return s.fail("switch_active_organization", err)
	}
	return ok("Active organization updated", data)
}

// DeleteOrganization removes an organization. Sessions pointing at it lose
// their active organization; the caller's session is re-resolved right away.
func (s *Service) DeleteOrganization(ctx context.Context, sessionToken, organizationID string) Result {
	snap, id, err := s.authorize(ctx, sessionToken, organizationID, membership.OrganizationDelete)
	if err != nil {
		return s.fail("delete_organization", err)
	}

	if err := s.store.DeleteOrganization(ctx, id); err != nil {
		return s.fail("delete_organization", err)
	}
	s.logger.Info("organization deleted", "organization_id", id, "user_id", snap.User.ID)

	return s.restamp(ctx, snap, "Organization deleted")
}

// RemoveMember removes userID from the organization. Members may always
// remove themselves; removing others needs member:remove, and only owners
// can remove an owner. The last owner can never be removed.
func (s *Service) RemoveMember(ctx context.Context, sessionToken, organizationID, userID string) Result {
	snap, err := s.authenticateVerified(ctx, sessionToken)
	if err != nil {
		return s.fail("remove_member", err)
	}
	orgID, err := parseID("organization_id", organizationID)
	if err != nil {
		return s.fail("remove_member", err)
	}
	targetID, err := parseID("user_id", userID)
	if err != nil {
		return s.fail("remove_member", err)
	}

	self := targetID == snap.User.ID
	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		registry := s.registry.WithStore(tx)

		caller, err := registry.GetMembership(ctx, snap.User.ID, orgID)
		if err != nil {
			return err
		}
		target := caller
		if !self {
			if caller, err = registry.Authorize(ctx, snap.User.ID, orgID, membership.MemberRemove); err != nil {
				return err
			}
			if target, err = registry.GetMembership(ctx, targetID, orgID); err != nil {
				if errors.Is(err, errs.ErrNotAMember) {
					return errs.ErrNotFound
				}
				return err
			}
			if membership.Role(target.Role) == membership.RoleOwner && membership.Role(caller.Role) != membership.RoleOwner {
				return errs.ErrForbidden
			}
		}

		if membership.Role(target.Role) == membership.RoleOwner {
			owners, err := registry.CountOwners(ctx, orgID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return errs.ErrLastOwner
			}
		}
		return registry.RemoveMember(ctx, targetID, orgID)
	})
	if err != nil {
		return s.fail("remove_member", err)
	}

	if self {
		return s.restamp(ctx, snap, "Left organization")
	}
	return ok("Member removed", nil)
}

// ListMembers returns the organization's members. Any member may list them.
func (s *Service) ListMembers(ctx context.Context, sessionToken, organizationID string) Result {
	snap, err := s.authenticate(ctx, sessionToken)
	if err != nil {
		return s.fail("list_members", err)
	}
	orgID, err := parseID("organization_id", organizationID)
	if err != nil {
		return s.fail("list_members", err)
	}
	if _, err := s.registry.GetMembership(ctx, snap.User.ID, orgID); err != nil {
		return s.fail("list_members", err)
	}

	members, err := s.registry.ListMembers(ctx, orgID)
	if err != nil {
		return s.fail("list_members", err)
	}
	out := make([]*MemberData, 0, len(members))
	for i := range members {
		out = append(out, memberData(&members[i]))
	}
	return ok("", out)
}

// UpdateMemberRole changes a member's role. Needs member:update; an
// organization always keeps at least one owner.
func (s *Service) UpdateMemberRole(ctx context.Context, sessionToken, organizationID, userID, role string) Result {
	snap, orgID, err := s.authorize(ctx, sessionToken, organizationID, membership.MemberUpdate)
	if err != nil {
		return s.fail("update_member_role", err)
	}
	targetID, err := parseID("user_id", userID)
	if err != nil {
		return s.fail("update_member_role", err)
	}
	if role == "" {
		return s.fail("update_member_role", errs.Validation("role", "Role is required"))
	}
	r, err := membership.ParseRole(role)
	if err != nil {
		return s.fail("update_member_role", err)
	}

	var updated *models.Member
	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		registry := s.registry.WithStore(tx)

		target, err := registry.GetMembership(ctx, targetID, orgID)
		if err != nil {
			if errors.Is(err, errs.ErrNotAMember) {
				return errs.ErrNotFound
			}
			return err
		}
		if membership.Role(target.Role) == membership.RoleOwner && r != membership.RoleOwner {
			owners, err := registry.CountOwners(ctx, orgID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return errs.ErrLastOwner
			}
		}
		if err := registry.UpdateRole(ctx, targetID, orgID, r); err != nil {
			return err
		}
		target.Role = string(r)
		updated = target
		return nil
	})
	if err != nil {
		return s.fail("update_member_role", err)
	}

	s.logger.Info("member role changed", "organization_id", orgID, "user_id", targetID, "role", r, "by", snap.User.ID)
	return ok("Member role updated", memberData(updated))
}

// UploadOrganizationLogo stores a new logo and records its URL.
func (s *Service) UploadOrganizationLogo(ctx context.Context, sessionToken, organizationID, contentType string, body io.Reader) Result {
	if s.logos == nil {
		return s.fail("upload_organization_logo", fmt.Errorf("%w: logo storage is not configured", errs.ErrProviderUnavailable))
	}

	_, id, err := s.authorize(ctx, sessionToken, organizationID, membership.OrganizationUpdate)
	if err != nil {
		return s.fail("upload_organization_logo", err)
	}

	url, err := s.logos.PutLogo(ctx, id, contentType, body)
	if err != nil {
		return s.fail("upload_organization_logo", err)
	}
	if err := s.store.UpdateOrganizationLogo(ctx, id, url); err != nil {
		return s.fail("upload_organization_logo", err)
	}

	org, err := s.store.GetOrganization(ctx, id)
	if err != nil {
		return s.fail("upload_organization_logo", err)
	}
	return ok("Logo updated", organizationData(org, ""))
}

// authorize authenticates a verified caller and checks p in organizationID.
func (s *Service) authorize(ctx context.Context, sessionToken, organizationID string, p membership.Permission) (*session.Snapshot, uuid.UUID, error) {
	snap, err := s.authenticateVerified(ctx, sessionToken)
	if err != nil {
		return nil, uuid.Nil, err
	}
	id, err := parseID("organization_id", organizationID)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if _, err := s.registry.Authorize(ctx, snap.User.ID, id, p); err != nil {
		return nil, uuid.Nil, err
	}
	return snap, id, nil
}

// restamp re-resolves the caller's session after their own memberships
// changed and reports the resulting session.
func (s *Service) restamp(ctx context.Context, snap *session.Snapshot, message string) Result {
	org, err := s.coordinator.RestampSession(ctx, snap.Session)
	if err != nil {
		s.logger.Warn("failed to restamp session", "session_id", snap.Session.ID, "error", err)
		return ok(message, nil)
	}
	snap.ActiveOrganization = org

	data, err := s.sessionData(snap, false)
	if err != nil {
		return ok(message, nil)
	}
	return ok(message, data)
}
