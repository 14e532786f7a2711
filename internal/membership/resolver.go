package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hugh/tenantgate/internal/database/models"
	"github.com/hugh/tenantgate/internal/errs"
	"github.com/hugh/tenantgate/internal/store"
)

// Policy decides which organization a session starts in when the user
// belongs to more than one.
type Policy string

const (
	// PolicyFirstMembership picks the oldest membership.
	PolicyFirstMembership Policy = "first-membership"
	// PolicyLastActive picks the organization the user last switched to,
	// falling back to the oldest membership.
	PolicyLastActive Policy = "last-active"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyFirstMembership:
		return PolicyFirstMembership, nil
	case PolicyLastActive:
		return PolicyLastActive, nil
	default:
		return "", fmt.Errorf("unknown active organization policy %q", s)
	}
}

// Resolver picks and switches a session's active organization.
type Resolver struct {
	store  *store.Store
	policy Policy
	logger *slog.Logger
}

func NewResolver(s *store.Store, policy Policy, logger *slog.Logger) *Resolver {
	return &Resolver{store: s, policy: policy, logger: logger}
}

// WithStore returns a resolver bound to s, typically a transaction.
func (r *Resolver) WithStore(s *store.Store) *Resolver {
	return &Resolver{store: s, policy: r.policy, logger: r.logger}
}

func (r *Resolver) Policy() Policy {
	return r.policy
}

// Resolve returns the organization a new session of userID should start in,
// or nil when the user has no memberships.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID) (*models.Organization, error) {
	return r.ResolveFor(ctx, userID, nil)
}

// ResolveFor is Resolve with a preferred organization, kept when the user is
// still a member of it.
func (r *Resolver) ResolveFor(ctx context.Context, userID uuid.UUID, current *uuid.UUID) (*models.Organization, error) {
	members, err := r.store.ListUserMembers(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	if current != nil {
		if org := find(members, *current); org != nil {
			return org, nil
		}
	}

	if r.policy == PolicyLastActive {
		user, err := r.store.GetUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("resolve active organization: %w", err)
		}
		if user.ActiveOrganizationID != nil {
			if org := find(members, *user.ActiveOrganizationID); org != nil {
				return org, nil
			}
		}
	}

	return members[0].Organization, nil
}

// SwitchActive points the session at orgID. The membership check and the
// write happen in one conditional update.
func (r *Resolver) SwitchActive(ctx context.Context, sessionID, orgID uuid.UUID) (*models.Organization, error) {
	var org *models.Organization
	err := r.store.Transaction(ctx, func(tx *store.Store) error {
		ok, err := tx.SwitchSessionOrganization(ctx, sessionID, orgID)
		if err != nil {
			return err
		}

		session, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errs.ErrUnauthenticated
			}
			return err
		}

		if !ok {
			if session.Expired(tx.Now()) {
				return errs.ErrSessionExpired
			}
			r.logger.Warn("organization switch rejected",
				"event", "security",
				"session_id", sessionID,
				"user_id", session.UserID,
				"organization_id", orgID,
				"error", errs.ErrNotAMember,
			)
			return errs.ErrNotAMember
		}

		if err := tx.SetUserActiveOrganization(ctx, session.UserID, &orgID); err != nil {
			return fmt.Errorf("record last active organization: %w", err)
		}

		org, err = tx.GetOrganization(ctx, orgID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return org, nil
}

func find(members []models.Member, orgID uuid.UUID) *models.Organization {
	for i := range members {
		if members[i].OrganizationID == orgID && members[i].Organization != nil {
			return members[i].Organization
		}
	}
	return nil
}
