package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capturePrincipal(captured **Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticateAttachesPrincipal(t *testing.T) {
	store, _ := newTokenStore(t, time.Hour)
	userID := uuid.New()
	token, err := store.Issue(context.Background(), Principal{UserID: userID, Email: "ada@example.org"})
	require.NoError(t, err)

	mw := Middleware{Tokens: store}
	var captured *Principal

	req := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mw.Authenticate(capturePrincipal(&captured)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, userID, captured.UserID)
}

func TestAuthenticateMissingHeaderIsAnonymous(t *testing.T) {
	store, _ := newTokenStore(t, time.Hour)
	mw := Middleware{Tokens: store}
	var captured *Principal

	req := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	rec := httptest.NewRecorder()
	mw.Authenticate(capturePrincipal(&captured)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, captured)
}

func TestAuthenticateInvalidTokenIsAnonymous(t *testing.T) {
	store, _ := newTokenStore(t, time.Hour)
	mw := Middleware{Tokens: store}
	var captured *Principal

	req := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec := httptest.NewRecorder()
	mw.Authenticate(capturePrincipal(&captured)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, captured)
}

func TestPrincipalID(t *testing.T) {
	userID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, ok := PrincipalID(req)
	assert.False(t, ok)

	req = req.WithContext(ContextWithPrincipal(req.Context(), &Principal{UserID: userID}))
	got, ok := PrincipalID(req)
	require.True(t, ok)
	assert.Equal(t, userID, got)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, bearerToken(req))

	req.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, bearerToken(req))

	req.Header.Set("Authorization", "Bearer abc123 ")
	assert.Equal(t, "abc123", bearerToken(req))
}
