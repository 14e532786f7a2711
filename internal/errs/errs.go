// Package errs holds the error taxonomy shared by the store, the identity
// provider, the membership registry and the session coordinator.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateEmail      = errors.New("an account with this email already exists")
	ErrDuplicateSlug       = errors.New("an organization with this slug already exists")
	ErrDuplicateMembership = errors.New("user is already a member of this organization")

	// ErrInvalidOrExpiredToken never says whether a token expired, was used
	// or never existed.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")

	ErrNotAMember      = errors.New("user is not a member of this organization")
	ErrSessionExpired  = errors.New("session expired")
	ErrUnauthenticated = errors.New("not authenticated")
	ErrForbidden       = errors.New("forbidden")

	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrEmailNotVerified      = errors.New("please verify your email before signing in")
	ErrProviderUnavailable   = errors.New("identity provider unavailable")
	ErrNotFound              = errors.New("not found")
	ErrInvitationUnavailable = errors.New("invitation is no longer available")
	ErrLastOwner             = errors.New("an organization must keep at least one owner")
)

// ValidationError reports malformed input. Message is safe to show verbatim.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Code is the stable, caller-facing identifier for an error.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case IsValidation(err):
		return "validation_error"
	case errors.Is(err, ErrDuplicateEmail):
		return "duplicate_email"
	case errors.Is(err, ErrDuplicateSlug):
		return "duplicate_slug"
	case errors.Is(err, ErrDuplicateMembership):
		return "duplicate_membership"
	case errors.Is(err, ErrInvalidOrExpiredToken):
		return "invalid_or_expired_token"
	case errors.Is(err, ErrNotAMember):
		return "not_a_member"
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrEmailNotVerified):
		return "email_not_verified"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvitationUnavailable):
		return "invitation_unavailable"
	case errors.Is(err, ErrLastOwner):
		return "last_owner"
	default:
		return "internal_error"
	}
}

// Message returns text that is safe to surface to the caller. Unknown errors
// collapse to a generic message so storage details never leak.
func Message(err error) string {
	var ve *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return ve.Message
	case errors.Is(err, ErrInvalidOrExpiredToken):
		return ErrInvalidOrExpiredToken.Error()
	case errors.Is(err, ErrProviderUnavailable):
		return "Something went wrong, please try again later"
	}
	if Code(err) == "internal_error" {
		return "An unknown error occurred"
	}
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
