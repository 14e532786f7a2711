package accounts

import (
	"context"
	"errors"

	"github.com/hugh/tenantgate/internal/auth"
	"github.com/hugh/tenantgate/internal/errs"
	"github.com/hugh/tenantgate/internal/session"
	"github.com/hugh/tenantgate/internal/validation"
)

const (
	emailKindVerify = "verify_email"
	emailKindReset  = "reset_password"
	emailKindInvite = "invitation"
)

type SignInInput struct {
	Email    string
	Password string
	Meta     auth.SessionMeta
}

type SignUpInput struct {
	Email    string
	Password string
	Name     string
	Image    *string
	Meta     auth.SessionMeta
}

// VerificationRequired is returned with email_not_verified so the client can
// offer to resend the verification email.
type VerificationRequired struct {
	Email     string `json:"email"`
	CanResend bool   `json:"can_resend"`
}

type VerifyEmailData struct {
	User    *UserData    `json:"user"`
	Session *SessionData `json:"session,omitempty"`
}

type VerificationStatus struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

type SocialRedirect struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

type SocialSignInData struct {
	Session    *SessionData `json:"session"`
	RedirectTo string       `json:"redirect_to,omitempty"`
}

// SignIn checks credentials and issues a session. A user whose email is not
// verified is signed straight back out.
func (s *Service) SignIn(ctx context.Context, in SignInInput) Result {
	user, err := s.provider.SignInWithPassword(ctx, in.Email, in.Password)
	if err != nil {
		return s.fail("sign_in", err)
	}

	snap, err := s.coordinator.StartSession(ctx, user, in.Meta)
	if err != nil {
		return s.fail("sign_in", err)
	}
	if snap.State == session.StateUnverified {
		return s.unverified(ctx, snap)
	}

	data, err := s.sessionData(snap, true)
	if err != nil {
		return s.fail("sign_in", err)
	}
	return ok("Signed in", data)
}

func (s *Service) unverified(ctx context.Context, snap *session.Snapshot) Result {
	if err := s.coordinator.SignOut(ctx, snap.Session.Token); err != nil {
		s.logger.Warn("failed to revoke unverified session", "session_id", snap.Session.ID, "error", err)
	}
	return Result{
		Success: false,
		Code:    errs.Code(errs.ErrEmailNotVerified),
		Message: "Please verify your email before signing in",
		Data:    VerificationRequired{Email: snap.User.Email, CanResend: true},
	}
}

// SignUp registers a password user, sends the verification email and returns
// an unverified session.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) Result {
	user, err := s.provider.SignUpWithPassword(ctx, auth.SignUpInput{
		Email:    in.Email,
		Password: in.Password,
		Name:     in.Name,
		Image:    in.Image,
	})
	if err != nil {
		return s.fail("sign_up", err)
	}

	token, err := s.provider.IssueVerificationToken(ctx, user)
	if err != nil {
		s.logger.Error("failed to issue verification token", "user_id", user.ID, "error", err)
	} else {
		msg, err := s.composer.VerifyEmail(user.Email, user.Name, token)
		s.dispatch(ctx, emailKindVerify, msg, err)
	}

	snap, err := s.coordinator.StartSession(ctx, user, in.Meta)
	if err != nil {
		return s.fail("sign_up", err)
	}
	data, err := s.sessionData(snap, true)
	if err != nil {
		return s.fail("sign_up", err)
	}
	return ok("Account created. Check your email to verify your address.", data)
}

// SignOut ends the session. Unknown or already-ended sessions are not an
// error.
func (s *Service) SignOut(ctx context.Context, sessionToken string) Result {
	if sessionToken != "" {
		if err := s.coordinator.SignOut(ctx, sessionToken); err != nil && !isAuthFailure(err) {
			return s.fail("sign_out", err)
		}
	}
	return ok("Signed out", nil)
}

// RequestPasswordReset always reports success so callers cannot discover which
// addresses have accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) Result {
	const message = "If an account exists for this email, a reset link has been sent."

	addr, err := validation.Email(email)
	if err != nil {
		return s.fail("request_password_reset", err)
	}
	if !s.allowEmail(ctx, emailKindReset, addr) {
		return ok(message, nil)
	}

	user, token, err := s.coordinator.RequestReset(ctx, addr)
	if err != nil {
		s.logger.Error("password reset request failed", "error", err)
		return ok(message, nil)
	}
	if user != nil {
		msg, err := s.composer.ResetPassword(user.Email, user.Name, token)
		s.dispatch(ctx, emailKindReset, msg, err)
	}
	return ok(message, nil)
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) Result {
	if err := s.coordinator.ResetPassword(ctx, token, newPassword); err != nil {
		return s.fail("reset_password", err)
	}
	return ok("Password updated. Sign in with your new password.", nil)
}

// VerifyEmail redeems a verification token. sessionToken may be empty.
func (s *Service) VerifyEmail(ctx context.Context, token, sessionToken string, meta auth.SessionMeta) Result {
	res, err := s.coordinator.VerifyEmail(ctx, token, sessionToken, meta)
	if err != nil {
		return s.fail("verify_email", err)
	}

	data := VerifyEmailData{User: userData(res.User)}
	if res.Session != nil {
		// A re-stamped session keeps its existing cookie.
		fresh := res.Session.Session.Token != sessionToken
		if data.Session, err = s.sessionData(res.Session, fresh); err != nil {
			return s.fail("verify_email", err)
		}
	}
	return ok("Email verified", data)
}

// ResendVerification is success-shaped whether or not anything was sent.
func (s *Service) ResendVerification(ctx context.Context, email string) Result {
	const message = "If the account exists and is not yet verified, a new verification email has been sent."

	addr, err := validation.Email(email)
	if err != nil {
		return s.fail("resend_verification", err)
	}
	if !s.allowEmail(ctx, emailKindVerify, addr) {
		return ok(message, nil)
	}

	user, token, err := s.coordinator.IssueVerification(ctx, addr)
	if err != nil {
		s.logger.Error("verification resend failed", "error", err)
		return ok(message, nil)
	}
	if user != nil {
		msg, err := s.composer.VerifyEmail(user.Email, user.Name, token)
		s.dispatch(ctx, emailKindVerify, msg, err)
	}
	return ok(message, nil)
}

func (s *Service) CheckVerificationStatus(ctx context.Context, sessionToken string) Result {
	snap, err := s.authenticate(ctx, sessionToken)
	if err != nil {
		return s.fail("check_verification_status", err)
	}
	return ok("", VerificationStatus{
		Email:         snap.User.Email,
		EmailVerified: snap.User.EmailVerified,
	})
}

// GetSession describes the session behind sessionToken. A missing or ended
// session is a successful answer with the matching state. A session this call
// refreshed carries a new cookie value.
func (s *Service) GetSession(ctx context.Context, sessionToken string) Result {
	snap, err := s.authenticate(ctx, sessionToken)
	switch {
	case errors.Is(err, errs.ErrSessionExpired):
		return ok("", &SessionData{State: session.StateExpired})
	case errors.Is(err, errs.ErrUnauthenticated):
		return ok("", &SessionData{State: session.StateUnauthenticated})
	case err != nil:
		return s.fail("get_session", err)
	}

	data, err := s.sessionData(snap, snap.Refreshed)
	if err != nil {
		return s.fail("get_session", err)
	}
	return ok("", data)
}

// SocialSignInURL starts the Google handshake. The returned state must be
// echoed back on the callback.
func (s *Service) SocialSignInURL(ctx context.Context, redirectTo string) Result {
	url, state, err := s.provider.GoogleAuthURL(redirectTo)
	if err != nil {
		return s.fail("social_sign_in_url", err)
	}
	return ok("", SocialRedirect{URL: url, State: state})
}

func (s *Service) SocialSignInCallback(ctx context.Context, code, state string, meta auth.SessionMeta) Result {
	user, claims, err := s.provider.SignInWithGoogle(ctx, code, state)
	if err != nil {
		return s.fail("social_sign_in_callback", err)
	}

	snap, err := s.coordinator.StartSession(ctx, user, meta)
	if err != nil {
		return s.fail("social_sign_in_callback", err)
	}
	if snap.State == session.StateUnverified {
		return s.unverified(ctx, snap)
	}

	data, err := s.sessionData(snap, true)
	if err != nil {
		return s.fail("social_sign_in_callback", err)
	}
	return ok("Signed in", SocialSignInData{Session: data, RedirectTo: claims.RedirectTo})
}
