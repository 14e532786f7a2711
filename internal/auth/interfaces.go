package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/hugh/tenantgate/internal/database/models"
)

// Authenticator verifies who a caller is.
type Authenticator interface {
	SignUpWithPassword(ctx context.Context, in SignUpInput) (*models.User, error)
	SignInWithPassword(ctx context.Context, email, password string) (*models.User, error)
	SignInWithGoogle(ctx context.Context, code, state string) (*models.User, *StateClaims, error)
}

// SessionIssuer creates and revokes sessions.
type SessionIssuer interface {
	CreateSession(ctx context.Context, userID uuid.UUID, meta SessionMeta) (*models.Session, error)
	InvalidateSession(ctx context.Context, token string) error
	InvalidateUserSessions(ctx context.Context, userID uuid.UUID) (int64, error)
	SetSessionHook(hook SessionHook)
}

// TokenIssuer issues and redeems single-use email tokens.
type TokenIssuer interface {
	IssueVerificationToken(ctx context.Context, user *models.User) (string, error)
	IssueResetToken(ctx context.Context, user *models.User) (string, error)
	RedeemToken(ctx context.Context, token string, purpose models.VerificationPurpose) (*models.Verification, error)
}

// TokenService defines the interface for signed cookie and state values.
type TokenService interface {
	GenerateToken(sessionToken string, userID uuid.UUID) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

// Compile-time interface satisfaction checks
var (
	_ Authenticator = (*Provider)(nil)
	_ SessionIssuer = (*Provider)(nil)
	_ TokenIssuer   = (*Provider)(nil)
	_ TokenService  = (*JWTService)(nil)
)
