package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "tenantgate"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims is the payload of the signed session cookie. The session token is
// the opaque key of the sessions row; the row is the source of truth.
type Claims struct {
	SessionToken string    `json:"sid"`
	UserID       uuid.UUID `json:"user_id"`
	jwt.RegisteredClaims
}

// StateClaims carries the OAuth state across the provider redirect.
type StateClaims struct {
	Nonce      string `json:"nonce"`
	RedirectTo string `json:"redirect_to,omitempty"`
	jwt.RegisteredClaims
}

type JWTService struct {
	secret []byte
}

func NewJWTService(secret string) *JWTService {
	return &JWTService{
		secret: []byte(secret),
	}
}

// GenerateToken signs a cookie value for a session. It carries no expiry:
// the sessions row decides, so a refreshed session keeps working and an
// expired one is reported as expired rather than unknown.
func (s *JWTService) GenerateToken(sessionToken string, userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := Claims{
		SessionToken: sessionToken,
		UserID:       userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   userID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.SessionToken == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateState signs an OAuth state value valid for ttl.
func (s *JWTService) GenerateState(nonce, redirectTo string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := StateClaims{
		Nonce:      nonce,
		RedirectTo: redirectTo,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{"oauth-state"},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *JWTService) ValidateState(state string) (*StateClaims, error) {
	claims := &StateClaims{}
	if err := s.parse(state, claims, jwt.WithAudience("oauth-state")); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *JWTService) parse(tokenString string, claims jwt.Claims, opts ...jwt.ParserOption) error {
	opts = append(opts, jwt.WithIssuer(issuer))
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return ErrInvalidToken
	}

	if !token.Valid {
		return ErrInvalidToken
	}

	return nil
}
