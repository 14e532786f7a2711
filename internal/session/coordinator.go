// Package session keeps authentication state, email verification state and
// the active organization consistent across requests.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/tenantgate/internal/auth"
	"github.com/hugh/tenantgate/internal/database/models"
	"github.com/hugh/tenantgate/internal/errs"
	"github.com/hugh/tenantgate/internal/membership"
	"github.com/hugh/tenantgate/internal/store"
	"github.com/hugh/tenantgate/internal/validation"
)

type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateUnverified      State = "authenticated_unverified"
	StateActive          State = "authenticated_active"
	StateLoggedOut       State = "logged_out"
	StateExpired         State = "expired"
)

// Snapshot is a session as seen by a caller: the row, its user, the derived
// state and the active organization (nil when the user has none). Refreshed
// reports that this lookup extended the session, so the client's cookie
// should be re-issued.
type Snapshot struct {
	Session            *models.Session
	User               *models.User
	State              State
	ActiveOrganization *models.Organization
	Refreshed          bool
}

type Options struct {
	UpdateAge                   time.Duration
	AutoSignInAfterVerification bool
}

type Coordinator struct {
	store    *store.Store
	provider *auth.Provider
	resolver *membership.Resolver
	logger   *slog.Logger
	opts     Options
}

// NewCoordinator registers the coordinator as the provider's session hook, so
// every session is stamped with an active organization before it is stored.
func NewCoordinator(s *store.Store, provider *auth.Provider, resolver *membership.Resolver, logger *slog.Logger, opts Options) *Coordinator {
	c := &Coordinator{
		store:    s,
		provider: provider,
		resolver: resolver,
		logger:   logger,
		opts:     opts,
	}
	provider.SetSessionHook(c.stamp)
	return c
}

func (c *Coordinator) stamp(ctx context.Context, tx *store.Store, session *models.Session) error {
	org, err := c.resolver.WithStore(tx).Resolve(ctx, session.UserID)
	if err != nil {
		return fmt.Errorf("resolve active organization: %w", err)
	}
	session.ActiveOrganizationID = orgID(org)
	return nil
}

// StartSession issues a new session for user.
func (c *Coordinator) StartSession(ctx context.Context, user *models.User, meta auth.SessionMeta) (*Snapshot, error) {
	session, err := c.provider.CreateSession(ctx, user.ID, meta)
	if err != nil {
		return nil, err
	}

	c.logger.Info("session created",
		"user_id", user.ID,
		"session_id", session.ID,
		"active_organization_id", session.ActiveOrganizationID,
	)
	return c.snapshot(ctx, session, user)
}

// Authenticate loads the session for token. Expired sessions are deleted and
// reported as errs.ErrSessionExpired. Sessions not refreshed within the update
// age are extended. An active organization the user no longer belongs to is
// replaced by the next one they do.
func (c *Coordinator) Authenticate(ctx context.Context, token string) (*Snapshot, error) {
	session, err := c.provider.LookupSession(ctx, token)
	if err != nil {
		return nil, err
	}

	now := c.store.Now()
	if session.Expired(now) {
		if err := c.store.DeleteSession(ctx, session.ID); err != nil {
			c.logger.Warn("failed to delete expired session", "session_id", session.ID, "error", err)
		}
		return nil, errs.ErrSessionExpired
	}

	refreshed := c.needsRefresh(session, now)
	if refreshed {
		if err := c.refresh(ctx, session); err != nil {
			return nil, err
		}
	} else if err := c.checkActiveMembership(ctx, session); err != nil {
		return nil, err
	}

	user, err := c.store.GetUser(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrUnauthenticated
		}
		return nil, err
	}

	snap, err := c.snapshot(ctx, session, user)
	if err != nil {
		return nil, err
	}
	snap.Refreshed = refreshed
	return snap, nil
}

func (c *Coordinator) needsRefresh(session *models.Session, now time.Time) bool {
	if c.opts.UpdateAge <= 0 {
		return false
	}
	return !now.Before(session.RefreshedAt.Add(c.opts.UpdateAge))
}

// checkActiveMembership re-stamps session when its user was removed from the
// active organization by someone else.
func (c *Coordinator) checkActiveMembership(ctx context.Context, session *models.Session) error {
	if session.ActiveOrganizationID == nil {
		return nil
	}
	_, err := c.store.GetMember(ctx, session.UserID, *session.ActiveOrganizationID)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, errs.ErrNotFound):
		return err
	}

	stale := *session.ActiveOrganizationID
	if _, err := c.RestampSession(ctx, session); err != nil {
		return fmt.Errorf("restamp session: %w", err)
	}
	c.logger.Info("active organization dropped",
		"session_id", session.ID,
		"organization_id", stale,
		"active_organization_id", session.ActiveOrganizationID,
	)
	return nil
}

// refresh extends the session and re-resolves its active organization,
// keeping the current one while the user is still a member.
func (c *Coordinator) refresh(ctx context.Context, session *models.Session) error {
	return c.store.Transaction(ctx, func(tx *store.Store) error {
		org, err := c.resolver.WithStore(tx).ResolveFor(ctx, session.UserID, session.ActiveOrganizationID)
		if err != nil {
			return fmt.Errorf("resolve active organization: %w", err)
		}

		now := tx.Now()
		expiresAt := now.Add(c.provider.SessionTTL())
		if err := tx.RefreshSession(ctx, session.ID, now, expiresAt, orgID(org)); err != nil {
			return fmt.Errorf("refresh session: %w", err)
		}

		session.RefreshedAt = now
		session.ExpiresAt = expiresAt
		session.ActiveOrganizationID = orgID(org)
		return nil
	})
}

func (c *Coordinator) SignOut(ctx context.Context, token string) error {
	return c.provider.InvalidateSession(ctx, token)
}

// SwitchActive moves the session behind token to orgID.
func (c *Coordinator) SwitchActive(ctx context.Context, token string, orgID uuid.UUID) (*Snapshot, error) {
	snap, err := c.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}

	org, err := c.resolver.SwitchActive(ctx, snap.Session.ID, orgID)
	if err != nil {
		return nil, err
	}

	snap.Session.ActiveOrganizationID = &org.ID
	snap.ActiveOrganization = org
	return snap, nil
}

// RestampSession re-resolves the active organization of a live session,
// used after the caller's memberships changed.
func (c *Coordinator) RestampSession(ctx context.Context, session *models.Session) (*models.Organization, error) {
	var org *models.Organization
	err := c.store.Transaction(ctx, func(tx *store.Store) error {
		var err error
		org, err = c.resolver.WithStore(tx).ResolveFor(ctx, session.UserID, session.ActiveOrganizationID)
		if err != nil {
			return err
		}
		return tx.SetSessionActiveOrganization(ctx, session.ID, orgID(org))
	})
	if err != nil {
		return nil, err
	}
	session.ActiveOrganizationID = orgID(org)
	return org, nil
}

// SetActiveIfUnset points the session at org when it has no active
// organization yet. Used after the caller creates or joins one.
func (c *Coordinator) SetActiveIfUnset(ctx context.Context, session *models.Session, org *models.Organization) error {
	if session.ActiveOrganizationID != nil {
		return nil
	}
	if _, err := c.resolver.SwitchActive(ctx, session.ID, org.ID); err != nil {
		return err
	}
	session.ActiveOrganizationID = &org.ID
	return nil
}

func (c *Coordinator) snapshot(ctx context.Context, session *models.Session, user *models.User) (*Snapshot, error) {
	snap := &Snapshot{
		Session: session,
		User:    user,
		State:   StateActive,
	}
	if !user.EmailVerified {
		snap.State = StateUnverified
	}

	if session.ActiveOrganizationID != nil {
		org, err := c.store.GetOrganization(ctx, *session.ActiveOrganizationID)
		switch {
		case err == nil:
			snap.ActiveOrganization = org
		case errors.Is(err, errs.ErrNotFound):
			session.ActiveOrganizationID = nil
		default:
			return nil, err
		}
	}

	return snap, nil
}

// VerifyResult is the outcome of a successful email verification. Session is
// the re-stamped current session or a freshly minted one, and nil when
// neither applies.
type VerifyResult struct {
	User    *models.User
	Session *Snapshot
}

// VerifyEmail redeems an email verification token. Redemption and the
// email_verified flip commit together. A current session of the same user is
// re-stamped; without one, a new session is minted when auto sign-in is on.
func (c *Coordinator) VerifyEmail(ctx context.Context, token, sessionToken string, meta auth.SessionMeta) (*VerifyResult, error) {
	var user *models.User
	err := c.store.Transaction(ctx, func(tx *store.Store) error {
		v, err := c.provider.WithStore(tx).RedeemToken(ctx, token, models.PurposeVerifyEmail)
		if err != nil {
			return err
		}

		user, err = tx.GetUser(ctx, v.SubjectID)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errs.ErrInvalidOrExpiredToken
			}
			return err
		}

		if _, err := tx.MarkEmailVerified(ctx, user.ID); err != nil {
			return err
		}
		user.EmailVerified = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("email verified", "user_id", user.ID)
	result := &VerifyResult{User: user}

	if sessionToken != "" {
		snap, err := c.Authenticate(ctx, sessionToken)
		switch {
		case err == nil && snap.User.ID == user.ID:
			org, err := c.RestampSession(ctx, snap.Session)
			if err != nil {
				return nil, err
			}
			snap.ActiveOrganization = org
			result.Session = snap
			return result, nil
		case err != nil && !errors.Is(err, errs.ErrUnauthenticated) && !errors.Is(err, errs.ErrSessionExpired):
			return nil, err
		}
	}

	if c.opts.AutoSignInAfterVerification {
		snap, err := c.StartSession(ctx, user, meta)
		if err != nil {
			return nil, err
		}
		result.Session = snap
	}

	return result, nil
}

// IssueVerification creates a verification token for the account behind
// email. It returns a nil user, without error, when there is nothing to send:
// unknown address or already verified.
func (c *Coordinator) IssueVerification(ctx context.Context, email string) (*models.User, string, error) {
	user, err := c.store.GetUserByEmail(ctx, validation.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, "", nil
		}
		return nil, "", err
	}
	if user.EmailVerified {
		return nil, "", nil
	}

	token, err := c.provider.IssueVerificationToken(ctx, user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// RequestReset creates a password reset token. Unknown addresses yield a nil
// user and no error so callers cannot tell them apart.
func (c *Coordinator) RequestReset(ctx context.Context, email string) (*models.User, string, error) {
	user, err := c.store.GetUserByEmail(ctx, validation.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, "", nil
		}
		return nil, "", err
	}

	token, err := c.provider.IssueResetToken(ctx, user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// ResetPassword redeems a reset token, replaces the credential in the same
// transaction and revokes every session of the user.
func (c *Coordinator) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validation.Password(newPassword); err != nil {
		return err
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	var (
		userID  uuid.UUID
		revoked int64
	)
	err = c.store.Transaction(ctx, func(tx *store.Store) error {
		v, err := c.provider.WithStore(tx).RedeemToken(ctx, token, models.PurposeResetPassword)
		if err != nil {
			return err
		}
		userID = v.SubjectID

		updated, err := tx.UpdatePassword(ctx, userID, hash)
		if err != nil {
			return err
		}
		if !updated {
			// Social-only users gain a password credential.
			if err := tx.CreateAccount(ctx, &models.Account{
				AccountID:  userID.String(),
				ProviderID: models.ProviderCredential,
				UserID:     userID,
				Password:   hash,
			}); err != nil {
				return err
			}
		}

		if revoked, err = tx.DeleteUserSessions(ctx, userID); err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
		return tx.DeleteVerifications(ctx, userID, models.PurposeResetPassword)
	})
	if err != nil {
		return err
	}

	c.logger.Info("password reset", "user_id", userID, "sessions_revoked", revoked)
	return nil
}

func orgID(org *models.Organization) *uuid.UUID {
	if org == nil {
		return nil
	}
	id := org.ID
	return &id
}
