// Package validation checks caller input before it reaches the store.
package validation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gosimple/slug"
	"github.com/hugh/tenantgate/internal/errs"
)

const (
	MinPasswordLength = 8
	// bcrypt refuses longer input.
	MaxPasswordBytes = 72

	MinNameLength = 2
	MaxNameLength = 50
)

// emailRegex validates email format
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// IsValidEmail checks if the string is a valid email format
func IsValidEmail(email string) bool {
	if len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}

// NormalizeEmail trims and lower-cases an address. Emails are stored in this
// form so the unique index is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Email returns the normalized address or a validation error.
func Email(email string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return "", errs.Validation("email", "Email is required")
	}
	if !IsValidEmail(email) {
		return "", errs.Validation("email", "Invalid email format")
	}
	return email, nil
}

// Password enforces length bounds only: at least 8 characters and at most
// 72 bytes. Composition rules are left to the caller's UI.
func Password(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return errs.Validation("password", "Password must be at least 8 characters")
	}
	if len(password) > MaxPasswordBytes {
		return errs.Validation("password", "Password must be at most 72 bytes")
	}
	return nil
}

// Name validates a display name for a user or an organization.
func Name(field, name string) (string, error) {
	name = strings.TrimSpace(SanitizeString(name))
	n := utf8.RuneCountInString(name)
	if n < MinNameLength {
		return "", errs.Validation(field, "Name must be at least 2 characters")
	}
	if n > MaxNameLength {
		return "", errs.Validation(field, "Name must be at most 50 characters")
	}
	return name, nil
}

// Slug validates an organization slug. An empty slug is derived from name.
// Supplied slugs must already be lowercase and URL-safe.
func Slug(s, name string) (string, error) {
	if s == "" {
		s = slug.Make(name)
	}
	n := len(s)
	if n < MinNameLength {
		return "", errs.Validation("slug", "Slug must be at least 2 characters")
	}
	if n > MaxNameLength {
		return "", errs.Validation("slug", "Slug must be at most 50 characters")
	}
	if !slug.IsSlug(s) || s != strings.ToLower(s) {
		return "", errs.Validation("slug", "Slug may only contain lowercase letters, numbers and dashes")
	}
	return s, nil
}

// SanitizeString removes potentially dangerous characters for display
func SanitizeString(s string) string {
	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	// Remove control characters except newlines and tabs
	var result strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}

	return result.String()
}

// TruncateString truncates a string to maxLen characters, never splitting a
// multi-byte rune.
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
