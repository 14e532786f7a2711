// Package accounts is the caller-facing facade over the auth and membership
// components. Every operation returns a Result and never an error. Session
// tokens are always passed in explicitly.
package accounts

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/tenantgate/internal/auth"
	"github.com/hugh/tenantgate/internal/database/models"
	"github.com/hugh/tenantgate/internal/errs"
	"github.com/hugh/tenantgate/internal/mail"
	"github.com/hugh/tenantgate/internal/membership"
	"github.com/hugh/tenantgate/internal/session"
	"github.com/hugh/tenantgate/internal/storage"
	"github.com/hugh/tenantgate/internal/store"
	"github.com/hugh/tenantgate/internal/tasks"
	"github.com/hugh/tenantgate/internal/throttle"
)

// Result is the uniform outcome of a facade operation. Code is stable and
// machine-readable; Message is safe to show to the user.
type Result struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type Config struct {
	InvitationTTL time.Duration
	EmailThrottle time.Duration
}

// Deps wires the facade. Logos may be nil when object storage is not
// configured.
type Deps struct {
	Store       *store.Store
	Provider    *auth.Provider
	Coordinator *session.Coordinator
	Registry    *membership.Registry
	Composer    *mail.Composer
	Dispatcher  tasks.Dispatcher
	Throttle    throttle.Throttle
	Logos       storage.LogoStore
	Logger      *slog.Logger
	Config      Config
}

type Service struct {
	store       *store.Store
	provider    *auth.Provider
	coordinator *session.Coordinator
	registry    *membership.Registry
	composer    *mail.Composer
	dispatcher  tasks.Dispatcher
	throttle    throttle.Throttle
	logos       storage.LogoStore
	logger      *slog.Logger
	cfg         Config
}

func NewService(d Deps) *Service {
	return &Service{
		store:       d.Store,
		provider:    d.Provider,
		coordinator: d.Coordinator,
		registry:    d.Registry,
		composer:    d.Composer,
		dispatcher:  d.Dispatcher,
		throttle:    d.Throttle,
		logos:       d.Logos,
		logger:      d.Logger,
		cfg:         d.Config,
	}
}

type UserData struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	EmailVerified bool      `json:"email_verified"`
	Image         *string   `json:"image,omitempty"`
}

type OrganizationData struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Slug     string    `json:"slug"`
	Logo     *string   `json:"logo,omitempty"`
	Metadata *string   `json:"metadata,omitempty"`
	Role     string    `json:"role,omitempty"`
	Active   bool      `json:"active,omitempty"`
}

// SessionData describes a session. Token is the signed value clients present
// as the session cookie or bearer token; it is only set when a session is
// issued.
type SessionData struct {
	Token              string            `json:"token,omitempty"`
	ExpiresAt          *time.Time        `json:"expires_at,omitempty"`
	State              session.State     `json:"state"`
	User               *UserData         `json:"user,omitempty"`
	ActiveOrganization *OrganizationData `json:"active_organization,omitempty"`
}

type InvitationData struct {
	ID               uuid.UUID `json:"id"`
	OrganizationID   uuid.UUID `json:"organization_id"`
	OrganizationName string    `json:"organization_name,omitempty"`
	Email            string    `json:"email"`
	Role             string    `json:"role"`
	Status           string    `json:"status"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// MemberData is one member of an organization.
type MemberData struct {
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email,omitempty"`
	Name     string    `json:"name,omitempty"`
	Image    *string   `json:"image,omitempty"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

func ok(message string, data interface{}) Result {
	return Result{Success: true, Message: message, Data: data}
}

func (s *Service) fail(op string, err error) Result {
	code := errs.Code(err)
	switch code {
	case "internal_error", "provider_unavailable":
		s.logger.Error("operation failed", "op", op, "error", err)
	default:
		s.logger.Debug("operation rejected", "op", op, "code", code)
	}
	return Result{Success: false, Code: code, Message: errs.Message(err)}
}

// authenticate resolves a live session for token.
func (s *Service) authenticate(ctx context.Context, token string) (*session.Snapshot, error) {
	if token == "" {
		return nil, errs.ErrUnauthenticated
	}
	return s.coordinator.Authenticate(ctx, token)
}

// authenticateVerified additionally requires a verified email.
func (s *Service) authenticateVerified(ctx context.Context, token string) (*session.Snapshot, error) {
	snap, err := s.authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if snap.State != session.StateActive {
		return nil, errs.ErrEmailNotVerified
	}
	return snap, nil
}

// dispatch hands an email off. Failures are logged and never surface to the
// caller.
func (s *Service) dispatch(ctx context.Context, kind string, msg mail.Message, err error) {
	if err == nil {
		err = s.dispatcher.Dispatch(ctx, kind, msg)
	}
	if err != nil {
		s.logger.Error("email dispatch failed", "kind", kind, "error", err)
	}
}

// allowEmail applies the per-address throttle. Throttle backend errors fail
// open.
func (s *Service) allowEmail(ctx context.Context, kind, email string) bool {
	if s.throttle == nil {
		return true
	}
	allowed, err := s.throttle.Allow(ctx, kind+":"+email, s.cfg.EmailThrottle)
	if err != nil {
		s.logger.Warn("email throttle unavailable", "error", err)
		return true
	}
	if !allowed {
		s.logger.Info("email throttled", "kind", kind)
	}
	return allowed
}

func (s *Service) sessionData(snap *session.Snapshot, withToken bool) (*SessionData, error) {
	data := &SessionData{
		ExpiresAt:          &snap.Session.ExpiresAt,
		State:              snap.State,
		User:               userData(snap.User),
		ActiveOrganization: organizationData(snap.ActiveOrganization, ""),
	}
	if data.ActiveOrganization != nil {
		data.ActiveOrganization.Active = true
	}
	if withToken {
		token, err := s.provider.SessionCookie(snap.Session)
		if err != nil {
			return nil, err
		}
		data.Token = token
	}
	return data, nil
}

func userData(u *models.User) *UserData {
	if u == nil {
		return nil
	}
	return &UserData{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		EmailVerified: u.EmailVerified,
		Image:         u.Image,
	}
}

func organizationData(o *models.Organization, role string) *OrganizationData {
	if o == nil {
		return nil
	}
	return &OrganizationData{
		ID:       o.ID,
		Name:     o.Name,
		Slug:     o.Slug,
		Logo:     o.Logo,
		Metadata: o.Metadata,
		Role:     role,
	}
}

func invitationData(inv *models.Invitation) *InvitationData {
	data := &InvitationData{
		ID:             inv.ID,
		OrganizationID: inv.OrganizationID,
		Email:          inv.Email,
		Role:           inv.Role,
		Status:         string(inv.Status),
		ExpiresAt:      inv.ExpiresAt,
	}
	if inv.Organization != nil {
		data.OrganizationName = inv.Organization.Name
	}
	return data
}

func memberData(m *models.Member) *MemberData {
	data := &MemberData{
		UserID:   m.UserID,
		Role:     m.Role,
		JoinedAt: m.CreatedAt,
	}
	if m.User != nil {
		data.Email = m.User.Email
		data.Name = m.User.Name
		data.Image = m.User.Image
	}
	return data
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errs.Validation(field, "Invalid "+field)
	}
	return id, nil
}

func isAuthFailure(err error) bool {
	return errors.Is(err, errs.ErrUnauthenticated) || errors.Is(err, errs.ErrSessionExpired)
}
