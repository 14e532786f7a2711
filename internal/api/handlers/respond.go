package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/hugh/tenantgate/internal/accounts"
	"github.com/hugh/tenantgate/internal/api/dto"
	"github.com/hugh/tenantgate/internal/api/middleware"
	"github.com/hugh/tenantgate/internal/auth"
)

const maxBodyBytes = 1 << 20

// statusFor maps an accounts.Result code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case "validation_error", "invalid_or_expired_token":
		return http.StatusBadRequest
	case "unauthenticated", "session_expired", "invalid_credentials":
		return http.StatusUnauthorized
	case "forbidden", "not_a_member", "email_not_verified":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	case "duplicate_email", "duplicate_slug", "duplicate_membership", "last_owner":
		return http.StatusConflict
	case "invitation_unavailable":
		return http.StatusGone
	case "provider_unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeResult writes res with status on success and the mapped status
// otherwise.
func writeResult(w http.ResponseWriter, res accounts.Result, status int) {
	if !res.Success {
		status = statusFor(res.Code)
	}
	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into v and runs its required-field checks. It
// writes the error response itself and reports whether to continue.
func decode(w http.ResponseWriter, r *http.Request, v dto.Validator) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Code:    "validation_error",
			Message: "Invalid request body",
		})
		return false
	}

	if details := v.Validate(); len(details) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Code:    "validation_error",
			Message: "Validation failed",
			Details: details,
		})
		return false
	}
	return true
}

func sessionToken(r *http.Request) string {
	return middleware.GetSessionToken(r.Context())
}

func sessionMeta(r *http.Request) auth.SessionMeta {
	return auth.SessionMeta{
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}
