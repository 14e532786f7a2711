package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/hugh/tenantgate/internal/accounts"
	"github.com/hugh/tenantgate/internal/api/dto"
	"github.com/hugh/tenantgate/internal/api/middleware"
)

const (
	stateCookieName = "oauth_state"
	stateCookieTTL  = 10 * time.Minute
	socialPath      = "/api/v1/auth/social"
)

type AuthHandler struct {
	accounts     *accounts.Service
	secureCookie bool
}

func NewAuthHandler(svc *accounts.Service, secureCookie bool) *AuthHandler {
	return &AuthHandler{accounts: svc, secureCookie: secureCookie}
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req dto.SignUpRequest
	if !decode(w, r, &req) {
		return
	}

	res := h.accounts.SignUp(r.Context(), accounts.SignUpInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Image:    req.Image,
		Meta:     sessionMeta(r),
	})
	if data, ok := res.Data.(*accounts.SessionData); ok && res.Success {
		h.setSessionCookie(w, data)
	}
	writeResult(w, res, http.StatusCreated)
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req dto.SignInRequest
	if !decode(w, r, &req) {
		return
	}

	res := h.accounts.SignIn(r.Context(), accounts.SignInInput{
		Email:    req.Email,
		Password: req.Password,
		Meta:     sessionMeta(r),
	})
	if data, ok := res.Data.(*accounts.SessionData); ok && res.Success {
		h.setSessionCookie(w, data)
	}
	writeResult(w, res, http.StatusOK)
}

func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	res := h.accounts.SignOut(r.Context(), sessionToken(r))
	if res.Success {
		h.clearCookie(w, middleware.SessionCookieName, "/")
	}
	writeResult(w, res, http.StatusOK)
}

// VerifyEmail redeems a token. When the caller already has a session it is
// upgraded in place; otherwise a new session cookie may be issued.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyEmailRequest
	if !decode(w, r, &req) {
		return
	}

	res := h.accounts.VerifyEmail(r.Context(), req.Token, sessionToken(r), sessionMeta(r))
	if data, ok := res.Data.(accounts.VerifyEmailData); ok && data.Session != nil && data.Session.Token != "" {
		h.setSessionCookie(w, data.Session)
	}
	writeResult(w, res, http.StatusOK)
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req dto.EmailRequest
	if !decode(w, r, &req) {
		return
	}
	writeResult(w, h.accounts.ResendVerification(r.Context(), req.Email), http.StatusOK)
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.EmailRequest
	if !decode(w, r, &req) {
		return
	}
	writeResult(w, h.accounts.RequestPasswordReset(r.Context(), req.Email), http.StatusOK)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}

	res := h.accounts.ResetPassword(r.Context(), req.Token, req.Password)
	if res.Success {
		// Every session of the user is gone, including this one.
		h.clearCookie(w, middleware.SessionCookieName, "/")
	}
	writeResult(w, res, http.StatusOK)
}

// Session reports the caller's session and re-issues the cookie when the
// lookup extended it.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	res := h.accounts.GetSession(r.Context(), sessionToken(r))
	if data, ok := res.Data.(*accounts.SessionData); ok && res.Success {
		h.setSessionCookie(w, data)
	}
	writeResult(w, res, http.StatusOK)
}

func (h *AuthHandler) VerificationStatus(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.accounts.CheckVerificationStatus(r.Context(), sessionToken(r)), http.StatusOK)
}

// GoogleStart redirects to Google. The signed state is also pinned in a
// short-lived cookie and compared on the callback.
func (h *AuthHandler) GoogleStart(w http.ResponseWriter, r *http.Request) {
	res := h.accounts.SocialSignInURL(r.Context(), safeRedirect(r.URL.Query().Get("redirect_to")))
	redirect, ok := res.Data.(accounts.SocialRedirect)
	if !res.Success || !ok {
		writeResult(w, res, http.StatusOK)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    redirect.State,
		Path:     socialPath,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(stateCookieTTL.Seconds()),
	})
	http.Redirect(w, r, redirect.URL, http.StatusFound)
}

func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")

	cookie, err := r.Cookie(stateCookieName)
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Code: "validation_error", Message: "Invalid or expired sign-in state"})
		return
	}
	h.clearCookie(w, stateCookieName, socialPath)

	if q.Get("error") != "" || q.Get("code") == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Code: "validation_error", Message: "Sign-in was canceled"})
		return
	}

	res := h.accounts.SocialSignInCallback(r.Context(), q.Get("code"), state, sessionMeta(r))
	data, ok := res.Data.(accounts.SocialSignInData)
	if !res.Success || !ok {
		writeResult(w, res, http.StatusOK)
		return
	}

	h.setSessionCookie(w, data.Session)
	http.Redirect(w, r, safeRedirect(data.RedirectTo), http.StatusFound)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, data *accounts.SessionData) {
	if data == nil || data.Token == "" {
		return
	}
	cookie := &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    data.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if data.ExpiresAt != nil {
		cookie.Expires = *data.ExpiresAt
		cookie.MaxAge = int(time.Until(*data.ExpiresAt).Seconds())
	}
	http.SetCookie(w, cookie)
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// safeRedirect only allows same-site absolute paths.
func safeRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}
