package accounts

import (
	"context"
	"errors"

	"github.com/hugh/tenantgate/internal/database/models"
	"github.com/hugh/tenantgate/internal/errs"
	"github.com/hugh/tenantgate/internal/membership"
	"github.com/hugh/tenantgate/internal/session"
	"github.com/hugh/tenantgate/internal/store"
	"github.com/hugh/tenantgate/internal/validation"
)

// InviteMember invites email into the organization with role. The owner role
// cannot be granted by invitation.
func (s *Service) InviteMember(ctx context.Context, sessionToken, organizationID, email, role string) Result {
	snap, orgID, err := s.authorize(ctx, sessionToken, organizationID, membership.InvitationCreate)
	if err != nil {
		return s.fail("invite_member", err)
	}

	addr, err := validation.Email(email)
	if err != nil {
		return s.fail("invite_member", err)
	}
	r, err := membership.ParseRole(role)
	if err != nil {
		return s.fail("invite_member", err)
	}
	if r == membership.RoleOwner {
		return s.fail("invite_member", errs.Validation("role", "The owner role cannot be granted by invitation"))
	}

	invitee, err := s.store.GetUserByEmail(ctx, addr)
	switch {
	case err == nil:
		if _, err := s.registry.GetMembership(ctx, invitee.ID, orgID); err == nil {
			return s.fail("invite_member", errs.ErrDuplicateMembership)
		} else if !errors.Is(err, errs.ErrNotAMember) {
			return s.fail("invite_member", err)
		}
	case !errors.Is(err, errs.ErrNotFound):
		return s.fail("invite_member", err)
	}

	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return s.fail("invite_member", err)
	}

	inv := &models.Invitation{
		OrganizationID: orgID,
		Email:          addr,
		Role:           string(r),
		Status:         models.InvitationPending,
		ExpiresAt:      s.store.Now().Add(s.cfg.InvitationTTL),
		InviterID:      snap.User.ID,
	}
	if err := s.store.CreateInvitation(ctx, inv); err != nil {
		return s.fail("invite_member", err)
	}

	s.logger.Info("invitation created", "invitation_id", inv.ID, "organization_id", orgID, "role", r)

	msg, err := s.composer.Invitation(addr, snap.User.Name, org.Name, string(r), inv.ID.String())
	s.dispatch(ctx, emailKindInvite, msg, err)

	return ok("Invitation sent", invitationData(inv))
}

// ListInvitations returns the pending invitations addressed to the caller.
func (s *Service) ListInvitations(ctx context.Context, sessionToken string) Result {
	snap, err := s.authenticate(ctx, sessionToken)
	if err != nil {
		return s.fail("list_invitations", err)
	}
	invs, err := s.store.ListPendingInvitations(ctx, snap.User.Email)
	if err != nil {
		return s.fail("list_invitations", err)
	}
	out := make([]*InvitationData, 0, len(invs))
	for i := range invs {
		out = append(out, invitationData(&invs[i]))
	}
	return ok("", out)
}

// AcceptInvitation joins the caller to the inviting organization and makes
// it the session's active organization.
func (s *Service) AcceptInvitation(ctx context.Context, sessionToken, invitationID string) Result {
	snap, inv, err := s.invitationForInvitee(ctx, sessionToken, invitationID)
	if err != nil {
		return s.fail("accept_invitation", err)
	}

	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		accepted, err := tx.ResolveInvitation(ctx, inv.ID, models.InvitationAccepted)
		if err != nil {
			return err
		}
		if !accepted {
			return errs.ErrInvitationUnavailable
		}
		_, err = s.registry.WithStore(tx).AddMember(ctx, snap.User.ID, inv.OrganizationID, membership.Role(inv.Role))
		return err
	})
	if err != nil {
		return s.fail("accept_invitation", err)
	}

	s.logger.Info("invitation accepted", "invitation_id", inv.ID, "user_id", snap.User.ID)

	switched, err := s.coordinator.SwitchActive(ctx, sessionToken, inv.OrganizationID)
	if err != nil {
		s.logger.Warn("failed to activate joined organization", "session_id", snap.Session.ID, "error", err)
		return ok("Invitation accepted", nil)
	}
	data, err := s.sessionData(switched, false)
	if err != nil {
		return ok("Invitation accepted", nil)
	}
	return ok("Invitation accepted", data)
}

func (s *Service) RejectInvitation(ctx context.Context, sessionToken, invitationID string) Result {
	_, inv, err := s.invitationForInvitee(ctx, sessionToken, invitationID)
	if err != nil {
		return s.fail("reject_invitation", err)
	}
	if err := s.resolveInvitation(ctx, inv, models.InvitationRejected); err != nil {
		return s.fail("reject_invitation", err)
	}
	return ok("Invitation rejected", nil)
}

// CancelInvitation withdraws a pending invitation. Needs invitation:cancel in
// the inviting organization.
func (s *Service) CancelInvitation(ctx context.Context, sessionToken, invitationID string) Result {
	id, err := parseID("invitation_id", invitationID)
	if err != nil {
		return s.fail("cancel_invitation", err)
	}
	inv, err := s.store.GetInvitation(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			err = errs.ErrInvitationUnavailable
		}
		return s.fail("cancel_invitation", err)
	}

	if _, _, err := s.authorize(ctx, sessionToken, inv.OrganizationID.String(), membership.InvitationCancel); err != nil {
		return s.fail("cancel_invitation", err)
	}
	if err := s.resolveInvitation(ctx, inv, models.InvitationCanceled); err != nil {
		return s.fail("cancel_invitation", err)
	}
	return ok("Invitation canceled", nil)
}

// invitationForInvitee loads a pending invitation addressed to the caller.
func (s *Service) invitationForInvitee(ctx context.Context, sessionToken, invitationID string) (*session.Snapshot, *models.Invitation, error) {
	snap, err := s.authenticateVerified(ctx, sessionToken)
	if err != nil {
		return nil, nil, err
	}
	id, err := parseID("invitation_id", invitationID)
	if err != nil {
		return nil, nil, err
	}

	inv, err := s.store.GetInvitation(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil, errs.ErrInvitationUnavailable
		}
		return nil, nil, err
	}
	if inv.Email != snap.User.Email {
		s.logger.Warn("invitation addressed to another user", "invitation_id", inv.ID, "user_id", snap.User.ID)
		return nil, nil, errs.ErrForbidden
	}
	if inv.Status != models.InvitationPending || inv.Expired(s.store.Now()) {
		return nil, nil, errs.ErrInvitationUnavailable
	}
	return snap, inv, nil
}

func (s *Service) resolveInvitation(ctx context.Context, inv *models.Invitation, status models.InvitationStatus) error {
	resolved, err := s.store.ResolveInvitation(ctx, inv.ID, status)
	if err != nil {
		return err
	}
	if !resolved {
		return errs.ErrInvitationUnavailable
	}
	s.logger.Info("invitation resolved", "invitation_id", inv.ID, "status", status)
	return nil
}
