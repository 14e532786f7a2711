// Package auth is the identity provider: password credentials, Google sign-in,
// opaque sessions with a signed cookie, and single-use email tokens.
package auth

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
	"github.com/hugh/tenantgate/internal/validation"
	"github.com/hugh/tenantgate/pkg/crypto"
	"golang.org/x/oauth2"
)

const (
	sessionTokenBytes = 32
	stateTTL          = 10 * time.Minute
)

// SessionHook runs inside the session-creation transaction, before the row
// is inserted. It may modify the session.
type SessionHook func(ctx context.Context, tx *store.Store, session *models.Session) error

type Options struct {
	SessionTTL      time.Duration
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// SessionMeta describes the client a session is issued to.
type SessionMeta struct {
	IPAddress string
	UserAgent string
}

type SignUpInput struct {
	Email    string
	Password string
	Name     string
	Image    *string
}

type Provider struct {
	store     *store.Store
	jwt       *JWTService
	encryptor *crypto.Encryptor
	google    *GoogleOAuth
	logger    *slog.Logger
	opts      Options
	hook      SessionHook
}

func NewProvider(s *store.Store, jwt *JWTService, encryptor *crypto.Encryptor, logger *slog.Logger, opts Options) *Provider {
	return &Provider{
		store:     s,
		jwt:       jwt,
		encryptor: encryptor,
		logger:    logger,
		opts:      opts,
	}
}

// WithStore returns a provider bound to s, typically a transaction.
func (p *Provider) WithStore(s *store.Store) *Provider {
	cp := *p
	cp.store = s
	return &cp
}

// EnableGoogle turns on Google sign-in.
func (p *Provider) EnableGoogle(g *GoogleOAuth) {
	p.google = g
}

// SetSessionHook registers the before-persist hook. Call once at startup.
func (p *Provider) SetSessionHook(hook SessionHook) {
	p.hook = hook
}

func (p *Provider) SessionTTL() time.Duration {
	return p.opts.SessionTTL
}

func (p *Provider) SignUpWithPassword(ctx context.Context, in SignUpInput) (*models.User, error) {
	email, err := validation.Email(in.Email)
	if err != nil {
		return nil, err
	}
	if err := validation.Password(in.Password); err != nil {
		return nil, err
	}
	name, err := validation.Name("name", in.Name)
	if err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Email: email,
		Name:  name,
		Image: in.Image,
		Role:  "user",
	}
	err = p.store.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		return tx.CreateAccount(ctx, &models.Account{
			AccountID:  user.ID.String(),
			ProviderID: models.ProviderCredential,
			UserID:     user.ID,
			Password:   hash,
		})
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("user signed up", "user_id", user.ID)
	return user, nil
}

// SignInWithPassword checks credentials. It does not look at verification
// state and does not create a session.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*models.User, error) {
	user, err := p.store.GetUserByEmail(ctx, validation.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrInvalidCredentials
		}
		return nil, err
	}

	account, err := p.store.GetUserAccount(ctx, user.ID, models.ProviderCredential)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrInvalidCredentials
		}
		return nil, err
	}

	if !CheckPassword(password, account.Password) {
		return nil, errs.ErrInvalidCredentials
	}

	return user, nil
}

// CreateSession issues a session for userID. The registered hook sees the
// session before it is persisted, in the same transaction.
func (p *Provider) CreateSession(ctx context.Context, userID uuid.UUID, meta SessionMeta) (*models.Session, error) {
	token, err := crypto.GenerateToken(sessionTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	now := p.store.Now()
	session := &models.Session{
		Token:       token,
		ExpiresAt:   now.Add(p.opts.SessionTTL),
		RefreshedAt: now,
		UserID:      userID,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
	}

	err = p.store.Transaction(ctx, func(tx *store.Store) error {
		if p.hook != nil {
			if err := p.hook(ctx, tx, session); err != nil {
				return err
			}
		}
		return tx.CreateSession(ctx, session)
	})
	if err != nil {
		return nil, err
	}

	return session, nil
}

// LookupSession returns the session row for token, expired or not.
func (p *Provider) LookupSession(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, errs.ErrUnauthenticated
	}
	session, err := p.store.GetSessionByToken(ctx, token)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrUnauthenticated
		}
		return nil, err
	}
	return session, nil
}

func (p *Provider) InvalidateSession(ctx context.Context, token string) error {
	session, err := p.LookupSession(ctx, token)
	if err != nil {
		return err
	}
	return p.store.DeleteSession(ctx, session.ID)
}

func (p *Provider) InvalidateUserSessions(ctx context.Context, userID uuid.UUID) (int64, error) {
	return p.store.DeleteUserSessions(ctx, userID)
}

// SessionCookie signs the cookie value carried by clients for session.
func (p *Provider) SessionCookie(session *models.Session) (string, error) {
	return p.jwt.GenerateToken(session.Token, session.UserID)
}

// ParseSessionCookie returns the session token inside a signed cookie value.
func (p *Provider) ParseSessionCookie(value string) (string, error) {
	claims, err := p.jwt.ValidateToken(value)
	if err != nil {
		return "", errs.ErrUnauthenticated
	}
	return claims.SessionToken, nil
}

func (p *Provider) IssueVerificationToken(ctx context.Context, user *models.User) (string, error) {
	return p.issue(ctx, user, models.PurposeVerifyEmail, p.opts.VerificationTTL)
}

func (p *Provider) IssueResetToken(ctx context.Context, user *models.User) (string, error) {
	return p.issue(ctx, user, models.PurposeResetPassword, p.opts.ResetTTL)
}

func (p *Provider) issue(ctx context.Context, user *models.User, purpose models.VerificationPurpose, ttl time.Duration) (string, error) {
	token, err := crypto.GenerateToken(sessionTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	v := &models.Verification{
		Identifier: user.Email,
		Purpose:    purpose,
		SubjectID:  user.ID,
		ValueHash:  crypto.HashToken(token),
		ExpiresAt:  p.store.Now().Add(ttl),
	}
	if err := p.store.CreateVerification(ctx, v); err != nil {
		return "", err
	}
	return token, nil
}

// RedeemToken consumes token for purpose. Unknown, expired, already used and
// wrong-purpose tokens all yield errs.ErrInvalidOrExpiredToken. Of any number
// of concurrent redemptions of one token, at most one succeeds.
func (p *Provider) RedeemToken(ctx context.Context, token string, purpose models.VerificationPurpose) (*models.Verification, error) {
	if token == "" {
		return nil, errs.ErrInvalidOrExpiredToken
	}

	v, err := p.store.GetVerificationByHash(ctx, crypto.HashToken(token))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrInvalidOrExpiredToken
		}
		return nil, err
	}
	if v.Purpose != purpose {
		return nil, errs.ErrInvalidOrExpiredToken
	}

	ok, err := p.store.ConsumeVerification(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrInvalidOrExpiredToken
	}
	return v, nil
}

// GoogleAuthURL returns the Google consent URL and the signed state that
// must come back on the callback.
func (p *Provider) GoogleAuthURL(redirectTo string) (string, string, error) {
	if p.google == nil {
		return "", "", errs.ErrProviderUnavailable
	}

	nonce, err := crypto.GenerateToken(16)
	if err != nil {
		return "", "", fmt.Errorf("generate nonce: %w", err)
	}
	state, err := p.jwt.GenerateState(nonce, redirectTo, stateTTL)
	if err != nil {
		return "", "", fmt.Errorf("sign state: %w", err)
	}

	return p.google.AuthCodeURL(state), state, nil
}

// SignInWithGoogle completes the handshake and returns the linked user. An
// existing user is linked by email only when Google reports the address as
// verified.
func (p *Provider) SignInWithGoogle(ctx context.Context, code, state string) (*models.User, *StateClaims, error) {
	if p.google == nil {
		return nil, nil, errs.ErrProviderUnavailable
	}

	claims, err := p.jwt.ValidateState(state)
	if err != nil {
		return nil, nil, errs.Validation("state", "Invalid or expired sign-in state")
	}

	token, profile, err := p.google.Exchange(ctx, code)
	if err != nil {
		p.logger.Error("google exchange failed", "error", err)
		return nil, nil, fmt.Errorf("%w: %v", errs.ErrProviderUnavailable, err)
	}

	account, err := p.accountFromToken(profile, token)
	if err != nil {
		return nil, nil, err
	}

	var user *models.User
	err = p.store.Transaction(ctx, func(tx *store.Store) error {
		existing, err := tx.GetAccount(ctx, models.ProviderGoogle, profile.Subject)
		switch {
		case err == nil:
			account.ID = existing.ID
			if err := tx.UpdateAccountTokens(ctx, account); err != nil {
				return err
			}
			user, err = tx.GetUser(ctx, existing.UserID)
			return err
		case !errors.Is(err, errs.ErrNotFound):
			return err
		}

		email := validation.NormalizeEmail(profile.Email)
		user, err = tx.GetUserByEmail(ctx, email)
		switch {
		case err == nil:
			if !profile.EmailVerified {
				p.logger.Warn("refusing to link unverified google email", "user_id", user.ID)
				return errs.ErrInvalidCredentials
			}
			if _, err := tx.MarkEmailVerified(ctx, user.ID); err != nil {
				return err
			}
			user.EmailVerified = true
		case errors.Is(err, errs.ErrNotFound):
			user = &models.User{
				Email:         email,
				Name:          validation.TruncateString(profile.Name, validation.MaxNameLength),
				EmailVerified: profile.EmailVerified,
				Role:          "user",
			}
			if user.Name == "" {
				user.Name = email
			}
			if profile.Picture != "" {
				user.Image = &profile.Picture
			}
			if err := tx.CreateUser(ctx, user); err != nil {
				return err
			}
		default:
			return err
		}

		account.UserID = user.ID
		return tx.CreateAccount(ctx, account)
	})
	if err != nil {
		return nil, nil, err
	}

	return user, claims, nil
}

func (p *Provider) accountFromToken(profile *GoogleProfile, token *oauth2.Token) (*models.Account, error) {
	access, err := p.encryptor.Seal(token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt access token: %w", err)
	}
	refresh, err := p.encryptor.Seal(token.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt refresh token: %w", err)
	}

	var idToken string
	if raw, ok := token.Extra("id_token").(string); ok {
		if idToken, err = p.encryptor.Seal(raw); err != nil {
			return nil, fmt.Errorf("encrypt id token: %w", err)
		}
	}

	account := &models.Account{
		AccountID:    profile.Subject,
		ProviderID:   models.ProviderGoogle,
		AccessToken:  access,
		RefreshToken: refresh,
		IDToken:      idToken,
		Scope:        "openid email profile",
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		account.AccessTokenExpiresAt = &expiry
	}
	return account, nil
}
