package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hugh/tenantgate/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoSession() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(GetSessionToken(r.Context())))
	})
}

func TestSession_AuthorizationHeader(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret")
	userID := uuid.New()
	value, err := jwtService.GenerateToken("opaque-token", userID)
	require.NoError(t, err)

	var gotUser uuid.UUID
	handler := Session(jwtService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetUserID(r.Context())
		_, _ = w.Write([]byte(GetSessionToken(r.Context())))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil)
	req.Header.Set("Authorization", "Bearer "+value)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "opaque-token", rec.Body.String())
	assert.Equal(t, userID, gotUser)
}

func TestSession_Cookie(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret")
	value, err := jwtService.GenerateToken("cookie-token", uuid.New())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: value})
	rec := httptest.NewRecorder()
	Session(jwtService)(echoSession()).ServeHTTP(rec, req)

	assert.Equal(t, "cookie-token", rec.Body.String())
}

func TestSession_InvalidValuesPassThrough(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret")
	other, err := auth.NewJWTService("other-secret").GenerateToken("forged", uuid.New())
	require.NoError(t, err)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		SessionToken: "old",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "tenantgate",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	for name, value := range map[string]string{
		"garbage":      "not-a-jwt",
		"wrong secret": other,
		"expired":      expired,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+value)
			rec := httptest.NewRecorder()
			Session(jwtService)(echoSession()).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, rec.Body.String())
		})
	}
}

func TestRequireSession(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret")
	handler := Session(jwtService)(RequireSession(echoSession()))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/organizations", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"unauthenticated"`)

	value, err := jwtService.GenerateToken("ok", uuid.New())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/organizations", nil)
	req.Header.Set("Authorization", "Bearer "+value)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLimiter_SlidingWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	ok, remaining, _ := l.Allow("a")
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)
	ok, _, _ = l.Allow("a")
	assert.True(t, ok)
	ok, _, reset := l.Allow("a")
	assert.False(t, ok)
	assert.Equal(t, now.Add(time.Minute), reset)

	ok, _, _ = l.Allow("b")
	assert.True(t, ok)

	now = now.Add(time.Minute + time.Second)
	ok, _, _ = l.Allow("a")
	assert.True(t, ok)
}

func TestRateLimit_Rejects(t *testing.T) {
	handler := RateLimit(NewLimiter(1, time.Minute), ByIP)(echoSession())

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/v1/auth/sign-in", nil))
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/v1/auth/sign-in", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", ClientIP(req))

	req.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.3")
	assert.Equal(t, "203.0.113.7", ClientIP(req))
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/organizations", nil))

	assert.Contains(t, buf.String(), `"status":201`)
	assert.Contains(t, buf.String(), `"path":"/api/v1/organizations"`)
}
