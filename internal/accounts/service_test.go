package accounts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/tenantgate/internal/auth"
	"github.com/hugh/tenantgate/internal/database/models"
	"github.com/hugh/tenantgate/internal/errs"
	"github.com/hugh/tenantgate/internal/mail"
	"github.com/hugh/tenantgate/internal/membership"
	"github.com/hugh/tenantgate/internal/session"
	"github.com/hugh/tenantgate/internal/store"
	"github.com/hugh/tenantgate/internal/testutil"
	"github.com/hugh/tenantgate/internal/throttle"
	"github.com/hugh/tenantgate/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type sentMail struct {
	kind string
	msg  mail.Message
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, kind string, msg mail.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, sentMail{kind: kind, msg: msg})
	return nil
}

func (d *recordingDispatcher) count(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.sent {
		if s.kind == kind {
			n++
		}
	}
	return n
}

var tokenPattern = regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)

// lastToken extracts the token from the most recent email of kind.
func (d *recordingDispatcher) lastToken(t *testing.T, kind string) string {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.sent) - 1; i >= 0; i-- {
		if d.sent[i].kind != kind {
			continue
		}
		m := tokenPattern.FindStringSubmatch(d.sent[i].msg.HTML)
		require.Len(t, m, 2, "no token in %s email", kind)
		return m[1]
	}
	t.Fatalf("no %s email sent", kind)
	return ""
}

type fakeLogos struct{}

func (fakeLogos) PutLogo(ctx context.Context, orgID uuid.UUID, contentType string, body io.Reader) (string, error) {
	return "https://cdn.example.com/organizations/" + orgID.String() + "/logo.png", nil
}

type fixture struct {
	db         *gorm.DB
	store      *store.Store
	provider   *auth.Provider
	dispatcher *recordingDispatcher
	svc        *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.SetupTestDB(t)
	s := store.New(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	encryptor, err := crypto.NewEncryptor("")
	require.NoError(t, err)

	provider := auth.NewProvider(s, auth.NewJWTService("test-secret"), encryptor, logger, auth.Options{
		SessionTTL:      24 * time.Hour,
		VerificationTTL: time.Hour,
		ResetTTL:        time.Hour,
	})
	resolver := membership.NewResolver(s, membership.PolicyFirstMembership, logger)
	coordinator := session.NewCoordinator(s, provider, resolver, logger, session.Options{
		UpdateAge:                   time.Hour,
		AutoSignInAfterVerification: true,
	})
	dispatcher := &recordingDispatcher{}

	svc := NewService(Deps{
		Store:       s,
		Provider:    provider,
		Coordinator: coordinator,
		Registry:    membership.NewRegistry(s, logger),
		Composer:    mail.NewComposer("https://app.example.com", "tenantgate"),
		Dispatcher:  dispatcher,
		Throttle:    throttle.NewMemory(),
		Logger:      logger,
		Config: Config{
			InvitationTTL: 48 * time.Hour,
			EmailThrottle: time.Minute,
		},
	})

	return &fixture{db: db, store: s, provider: provider, dispatcher: dispatcher, svc: svc}
}

// signIn signs user in and returns the opaque session token.
func (f *fixture) signIn(t *testing.T, user *models.User) string {
	t.Helper()
	res := f.svc.SignIn(testutil.TestContext(t), SignInInput{Email: user.Email, Password: testutil.TestPassword})
	require.True(t, res.Success, res.Message)
	return f.opaque(t, res.Data.(*SessionData).Token)
}

func (f *fixture) opaque(t *testing.T, cookie string) string {
	t.Helper()
	token, err := f.provider.ParseSessionCookie(cookie)
	require.NoError(t, err)
	return token
}

func (f *fixture) sessionCount(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Session{}).Where("user_id = ?", userID).Count(&n).Error)
	return n
}

func TestSignUpThenVerify(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)

	res := f.svc.SignUp(ctx, SignUpInput{Email: "New.User@Example.com", Password: "correct-horse", Name: "New User"})
	require.True(t, res.Success, res.Message)
	signUp := res.Data.(*SessionData)
	assert.Equal(t, session.StateUnverified, signUp.State)
	assert.Equal(t, "new.user@example.com", signUp.User.Email)
	assert.False(t, signUp.User.EmailVerified)
	assert.Nil(t, signUp.ActiveOrganization)
	assert.NotEmpty(t, signUp.Token)
	assert.Equal(t, 1, f.dispatcher.count(emailKindVerify))

	// Unverified sign-in is rejected and leaves no extra session behind.
	res = f.svc.SignIn(ctx, SignInInput{Email: "new.user@example.com", Password: "correct-horse"})
	assert.False(t, res.Success)
	assert.Equal(t, "email_not_verified", res.Code)
	assert.Equal(t, VerificationRequired{Email: "new.user@example.com", CanResend: true}, res.Data)
	assert.Equal(t, int64(1), f.sessionCount(t, signUp.User.ID))

	token := f.dispatcher.lastToken(t, emailKindVerify)
	res = f.svc.VerifyEmail(ctx, token, "", auth.SessionMeta{})
	require.True(t, res.Success, res.Message)
	verified := res.Data.(VerifyEmailData)
	assert.True(t, verified.User.EmailVerified)
	require.NotNil(t, verified.Session)
	assert.Equal(t, session.StateActive, verified.Session.State)
	assert.NotEmpty(t, verified.Session.Token)

	res = f.svc.VerifyEmail(ctx, token, "", auth.SessionMeta{})
	assert.False(t, res.Success)
	assert.Equal(t, "invalid_or_expired_token", res.Code)

	res = f.svc.SignIn(ctx, SignInInput{Email: "new.user@example.com", Password: "correct-horse"})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, session.StateActive, res.Data.(*SessionData).State)
}

func TestVerifyEmail_RestampsCurrentSession(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)

	res := f.svc.SignUp(ctx, SignUpInput{Email: "restamp@example.com", Password: "correct-horse", Name: "Restamp"})
	require.True(t, res.Success, res.Message)
	current := f.opaque(t, res.Data.(*SessionData).Token)

	res = f.svc.VerifyEmail(ctx, f.dispatcher.lastToken(t, emailKindVerify), current, auth.SessionMeta{})
	require.True(t, res.Success, res.Message)
	data := res.Data.(VerifyEmailData)
	require.NotNil(t, data.Session)
	assert.Equal(t, session.StateActive, data.Session.State)
	assert.Empty(t, data.Session.Token)

	res = f.svc.GetSession(ctx, current)
	require.True(t, res.Success)
	assert.Equal(t, session.StateActive, res.Data.(*SessionData).State)
}

func TestSignUp_ToleratesDispatchFailure(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = errors.New("queue down")

	res := f.svc.SignUp(testutil.TestContext(t), SignUpInput{Email: "down@example.com", Password: "correct-horse", Name: "Down"})
	assert.True(t, res.Success, res.Message)
}

func TestSignUp_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)

	res := f.svc.SignUp(ctx, SignUpInput{Email: "not-an-email", Password: "correct-horse", Name: "Bad"})
	assert.Equal(t, "validation_error", res.Code)

	res = f.svc.SignUp(ctx, SignUpInput{Email: "short@example.com", Password: "short", Name: "Short"})
	assert.Equal(t, "validation_error", res.Code)

	// Longer than bcrypt accepts.
	res = f.svc.SignUp(ctx, SignUpInput{Email: "long@example.com", Password: strings.Repeat("a", 100), Name: "Long"})
	assert.Equal(t, "validation_error", res.Code)
	_, err := f.store.GetUserByEmail(ctx, "long@example.com")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	user := testutil.CreateTestUser(t, f.db, true)
	res = f.svc.SignUp(ctx, SignUpInput{Email: user.Email, Password: "correct-horse", Name: "Dup"})
	assert.False(t, res.Success)
	assert.Equal(t, "duplicate_email", res.Code)
}

func TestSignIn_ZeroMemberships(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db, true)

	res := f.svc.SignIn(ctx, SignInInput{Email: user.Email, Password: testutil.TestPassword})
	require.True(t, res.Success, res.Message)
	data := res.Data.(*SessionData)
	assert.Equal(t, session.StateActive, data.State)
	assert.Nil(t, data.ActiveOrganization)

	res = f.svc.ListOrganizations(ctx, f.opaque(t, data.Token))
	require.True(t, res.Success)
	assert.Empty(t, res.Data)
}

func TestSignIn_InvalidCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db, true)

	wrong := f.svc.SignIn(ctx, SignInInput{Email: user.Email, Password: "wrong-password"})
	unknown := f.svc.SignIn(ctx, SignInInput{Email: "nobody@example.com", Password: "wrong-password"})

	assert.Equal(t, "invalid_credentials", wrong.Code)
	assert.Equal(t, wrong, unknown)
}

func TestGetSession_States(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db, true)

	res := f.svc.GetSession(ctx, "")
	require.True(t, res.Success)
	assert.Equal(t, session.StateUnauthenticated, res.Data.(*SessionData).State)

	expired := testutil.CreateTestSession(t, f.db, user, nil, -time.Minute)
	res = f.svc.GetSession(ctx, expired.Token)
	require.True(t, res.Success)
	assert.Equal(t, session.StateExpired, res.Data.(*SessionData).State)

	token := f.signIn(t, user)
	res = f.svc.GetSession(ctx, token)
	require.True(t, res.Success)
	data := res.Data.(*SessionData)
	assert.Equal(t, session.StateActive, data.State)
	assert.Equal(t, user.ID, data.User.ID)
	assert.Empty(t, data.Token)
}

func TestGetSession_RefreshReissuesCookie(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db, true)

	stale := testutil.CreateTestSession(t, f.db, user, nil, 10*time.Minute)
	require.NoError(t, f.db.Model(&models.Session{}).
		Where("id = ?", stale.ID).
		Update("refreshed_at", time.Now().UTC().Add(-2*time.Hour)).Error)

	res := f.svc.GetSession(ctx, stale.Token)
	require.True(t, res.Success, res.Message)
	data := res.Data.(*SessionData)
	require.NotEmpty(t, data.Token)
	require.NotNil(t, data.ExpiresAt)
	assert.True(t, data.ExpiresAt.After(time.Now().Add(23*time.Hour)))

	// The re-issued cookie resolves to the same, still live session.
	assert.Equal(t, stale.Token, f.opaque(t, data.Token))
	res = f.svc.GetSession(ctx, f.opaque(t, data.Token))
	require.True(t, res.Success)
	assert.Equal(t, session.StateActive, res.Data.(*SessionData).State)
	assert.Empty(t, res.Data.(*SessionData).Token)
}

func TestResetPassword_RejectsOverlongPassword(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db, true)

	require.True(t, f.svc.RequestPasswordReset(ctx, user.Email).Success)
	res := f.svc.ResetPassword(ctx, f.dispatcher.lastToken(t, emailKindReset), strings.Repeat("é", 40))
	assert.False(t, res.Success)
	assert.Equal(t, "validation_error", res.Code)
}

func TestSignOut(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db, true)
	token := f.signIn(t, user)

	assert.True(t, f.svc.SignOut(ctx, token).Success)
	assert.True(t, f.svc.SignOut(ctx, token).Success)
	assert.True(t, f.svc.SignOut(ctx, "").Success)

	res := f.svc.GetSession(ctx, token)
	assert.Equal(t, session.StateUnauthenticated, res.Data.(*SessionData).State)
}

func TestCheckVerificationStatus(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)

	res := f.svc.SignUp(ctx, SignUpInput{Email: "status@example.com", Password: "correct-horse", Name: "Status"})
	require.True(t, res.Success)
	token := f.opaque(t, res.Data.(*SessionData).Token)

	res = f.svc.CheckVerificationStatus(ctx, token)
	require.True(t, res.Success)
	assert.Equal(t, VerificationStatus{Email: "status@example.com", EmailVerified: false}, res.Data)

	res = f.svc.CheckVerificationStatus(ctx, "")
	assert.Equal(t, "unauthenticated", res.Code)
}

func TestRequestPasswordReset_DoesNotLeak(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db, true)

	known := f.svc.RequestPasswordReset(ctx, user.Email)
	unknown := f.svc.RequestPasswordReset(ctx, "nobody@example.com")

	assert.True(t, known.Success)
	assert.Equal(t, known, unknown)
	assert.Equal(t, 1, f.dispatcher.count(emailKindReset))

	// Throttled repeats look the same and send nothing.
	again := f.svc.RequestPasswordReset(ctx, user.Email)
	assert.Equal(t, known, again)
	assert.Equal(t, 1, f.dispatcher.count(emailKindReset))
}

func TestResetPassword_RevokesSessions(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	user := testutil.CreateTestUser(t, f.db, true)
	old := f.signIn(t, user)

	require.True(t, f.svc.RequestPasswordReset(ctx, user.Email).Success)
	token := f.dispatcher.lastToken(t, emailKindReset)

	res := f.svc.ResetPassword(ctx, token, "brand-new-password")
	require.True(t, res.Success, res.Message)

	res = f.svc.GetSession(ctx, old)
	assert.Equal(t, session.StateUnauthenticated, res.Data.(*SessionData).State)

	res = f.svc.SignIn(ctx, SignInInput{Email: user.Email, Password: testutil.TestPassword})
	assert.Equal(t, "invalid_credentials", res.Code)
	res = f.svc.SignIn(ctx, SignInInput{Email: user.Email, Password: "brand-new-password"})
	assert.True(t, res.Success)

	res = f.svc.ResetPassword(ctx, token, "another-password")
	assert.Equal(t, "invalid_or_expired_token", res.Code)
}

func TestResendVerification(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.TestContext(t)
	unverified := testutil.CreateTestUser(t, f.db, false)
	verified := testutil.CreateTestUser(t, f.db, true)

	a := f.svc.ResendVerification(ctx, unverified.Email)
	b := f.svc.ResendVerification(ctx, verified.Email)
	c := f.svc.ResendVerification(ctx, "nobody@example.com")

	assert.True(t, a.Success)
	assert.Equal(t, a, b)
	assert.Equal(t, a, c)
	assert.Equal(t, 1, f.dispatcher.count(emailKindVerify))

	assert.Equal(t, "validation_error", f.svc.ResendVerification(ctx, "nope").Code)
}

func TestSocialSignInURL_Disabled(t *testing.T) {
	f := newFixture(t)

	res := f.svc.SocialSignInURL(testutil.TestContext(t), "/dashboard")
	assert.False(t, res.Success)
	assert.Equal(t, "provider_unavailable", res.Code)
}

func TestResultMessagesDoNotLeakInternals(t *testing.T) {
	f := newFixture(t)
	res := f.svc.fail("test", errors.New("pq: connection refused"))
	assert.Equal(t, "internal_error", res.Code)
	assert.False(t, strings.Contains(res.Message, "pq"))
}
