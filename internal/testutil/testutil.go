package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/tenantgate/internal/database"
	"github.com/hugh/tenantgate/internal/database/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestPassword is the password of every user made by CreateTestUser.
const TestPassword = "testpassword123"

// SetupTestDB creates an in-memory SQLite database with foreign keys enforced.
// All access goes through a single connection, so code under test must use
// the transaction handle inside a transaction.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() { CleanupTestDB(t, db) })

	return db
}

// CleanupTestDB closes the test database connection
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("warning: failed to get sql.DB: %v", err)
		return
	}
	sqlDB.Close()
}

// CreateTestOrg creates a test organization
func CreateTestOrg(t *testing.T, db *gorm.DB) *models.Organization {
	t.Helper()

	org := &models.Organization{
		Base: models.Base{
			ID: uuid.New(),
		},
		Name: "Test Organization",
		Slug: "test-org-" + uuid.New().String()[:8],
	}

	if err := db.Create(org).Error; err != nil {
		t.Fatalf("failed to create test organization: %v", err)
	}

	return org
}

// CreateTestUser creates a user with a credential account whose password is
// TestPassword.
func CreateTestUser(t *testing.T, db *gorm.DB, verified bool) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Base: models.Base{
			ID: uuid.New(),
		},
		Email:         "test-" + uuid.New().String()[:8] + "@example.com",
		Name:          "Test User",
		EmailVerified: verified,
		Role:          "user",
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	account := &models.Account{
		AccountID:  user.ID.String(),
		ProviderID: models.ProviderCredential,
		UserID:     user.ID,
		Password:   string(hash),
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to create test account: %v", err)
	}

	return user
}

// CreateTestMember adds user to org with role
func CreateTestMember(t *testing.T, db *gorm.DB, user *models.User, org *models.Organization, role string) *models.Member {
	t.Helper()

	member := &models.Member{
		OrganizationID: org.ID,
		UserID:         user.ID,
		Role:           role,
	}
	if err := db.Create(member).Error; err != nil {
		t.Fatalf("failed to create test member: %v", err)
	}

	return member
}

// CreateTestSession creates a freshly refreshed session row that expires
// after ttl
func CreateTestSession(t *testing.T, db *gorm.DB, user *models.User, orgID *uuid.UUID, ttl time.Duration) *models.Session {
	t.Helper()

	now := time.Now().UTC()
	session := &models.Session{
		Token:                "session-" + uuid.New().String(),
		ExpiresAt:            now.Add(ttl),
		RefreshedAt:          now,
		UserID:               user.ID,
		ActiveOrganizationID: orgID,
	}
	if err := db.Create(session).Error; err != nil {
		t.Fatalf("failed to create test session: %v", err)
	}

	return session
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// AuthenticatedRequest creates an HTTP request carrying a bearer token
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}
