package storage

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/hugh/tenantgate/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu          sync.Mutex
	path        string
	contentType string
	body        []byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.path = r.URL.Path
	f.contentType = r.Header.Get("Content-Type")
	f.body, _ = io.ReadAll(r.Body)
	w.Header().Set("ETag", `"abc"`)
	w.WriteHeader(http.StatusOK)
}

func newTestStore(t *testing.T, handler http.Handler) *S3Store {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := NewS3Store(context.Background(), Config{
		Bucket:          "logos",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		PublicBaseURL:   "https://cdn.example.com",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func TestPutLogo(t *testing.T) {
	fake := &fakeS3{}
	s := newTestStore(t, fake)
	orgID := uuid.New()

	url, err := s.PutLogo(context.Background(), orgID, "image/png", bytes.NewReader([]byte("png-bytes")))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(url, "https://cdn.example.com/organizations/"+orgID.String()+"/logo-"))
	assert.True(t, strings.HasSuffix(url, ".png"))
	assert.True(t, strings.HasPrefix(fake.path, "/logos/organizations/"+orgID.String()))
	assert.Equal(t, "image/png", fake.contentType)
	assert.Equal(t, []byte("png-bytes"), fake.body)
}

func TestPutLogo_Validation(t *testing.T) {
	s := newTestStore(t, &fakeS3{})

	tests := []struct {
		name        string
		contentType string
		body        []byte
	}{
		{"unsupported_type", "application/pdf", []byte("x")},
		{"empty", "image/png", nil},
		{"too_large", "image/png", bytes.Repeat([]byte("x"), MaxLogoSize+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.PutLogo(context.Background(), uuid.New(), tt.contentType, bytes.NewReader(tt.body))
			assert.True(t, errs.IsValidation(err), "got %v", err)
		})
	}
}

func TestPutLogo_BackendError(t *testing.T) {
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := s.PutLogo(context.Background(), uuid.New(), "image/png", bytes.NewReader([]byte("x")))
	assert.ErrorIs(t, err, errs.ErrProviderUnavailable)
}
