package permissions

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	allowed map[string]bool
	roles   []Role
	err     error
}

func (s *stubResolver) Check(_ context.Context, _ uuid.UUID, permission string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.allowed[permission], nil
}

func (s *stubResolver) UserRoles(context.Context, uuid.UUID) ([]Role, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.roles, nil
}

type stubRecorder struct {
	decisions []string
}

func (s *stubRecorder) ObservePermissionDecision(decision string) {
	s.decisions = append(s.decisions, decision)
}

func authenticatedAs(userID uuid.UUID) PrincipalFunc {
	return func(*http.Request) (uuid.UUID, bool) { return userID, true }
}

func anonymous(*http.Request) (uuid.UUID, bool) { return uuid.Nil, false }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serveGuarded(t *testing.T, mw func(http.Handler) http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	mw(okHandler()).ServeHTTP(rec, req)
	return rec
}

func TestGuardRequirePermissionAllowed(t *testing.T) {
	g := Guard{
		Resolver:  &stubResolver{allowed: map[string]bool{"posts.post": true}},
		Principal: authenticatedAs(uuid.New()),
		Logger:    testLogger(),
	}
	rec := serveGuarded(t, g.RequirePermission("posts.post", false), http.MethodPost, "/api/v1/posts")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuardRequirePermissionDenied(t *testing.T) {
	g := Guard{
		Resolver:  &stubResolver{allowed: map[string]bool{}},
		Principal: authenticatedAs(uuid.New()),
		Logger:    testLogger(),
	}
	rec := serveGuarded(t, g.RequirePermission("posts.post", false), http.MethodPost, "/api/v1/posts")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "posts.post")
}

func TestGuardAnonymousDenied(t *testing.T) {
	g := Guard{
		Resolver:  &stubResolver{},
		Principal: anonymous,
		Routes:    DefaultRouteTable(),
		Logger:    testLogger(),
	}
	rec := serveGuarded(t, g.RequirePermission("posts.post", false), http.MethodPost, "/api/v1/posts")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuardAnonymousPublicRoute(t *testing.T) {
	g := Guard{
		Resolver:  &stubResolver{},
		Principal: anonymous,
		Routes:    DefaultRouteTable(),
		Logger:    testLogger(),
	}
	rec := serveGuarded(t, g.RequirePermission("auth.login.post", false), http.MethodPost, "/api/v1/auth/login")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuardAnonymousGuestRoute(t *testing.T) {
	g := Guard{
		Resolver:  &stubResolver{},
		Principal: anonymous,
		Routes:    DefaultRouteTable(),
		Logger:    testLogger(),
	}
	rec := serveGuarded(t, g.RequirePermission("posts.get", false), http.MethodGet, "/api/v1/posts")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serveGuarded(t, g.RequirePermission("posts.detail.get", false), http.MethodGet, "/api/v1/posts/42")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuardResolverErrorFailClosed(t *testing.T) {
	recorder := &stubRecorder{}
	g := Guard{
		Resolver:  &stubResolver{err: errors.New("connection refused")},
		Principal: authenticatedAs(uuid.New()),
		Logger:    testLogger(),
		Metrics:   recorder,
	}
	rec := serveGuarded(t, g.RequirePermission("posts.post", false), http.MethodPost, "/api/v1/posts")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Len(t, recorder.decisions, 1)
	assert.Equal(t, string(DecisionDenied), recorder.decisions[0])
}

func TestGuardResolverErrorFailOpen(t *testing.T) {
	recorder := &stubRecorder{}
	g := Guard{
		Resolver:  &stubResolver{err: errors.New("connection refused")},
		Principal: authenticatedAs(uuid.New()),
		Logger:    testLogger(),
		Metrics:   recorder,
	}
	rec := serveGuarded(t, g.RequirePermission("posts.post", true), http.MethodPost, "/api/v1/posts")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, recorder.decisions, 1)
	assert.Equal(t, string(DecisionBypassed), recorder.decisions[0])
}

func TestGuardRequireAll(t *testing.T) {
	g := Guard{
		Resolver:  &stubResolver{allowed: map[string]bool{"posts.get": true, "posts.post": true}},
		Principal: authenticatedAs(uuid.New()),
		Logger:    testLogger(),
	}
	rec := serveGuarded(t, g.RequireAll(false, "posts.get", "posts.post"), http.MethodPost, "/api/v1/posts")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serveGuarded(t, g.RequireAll(false, "posts.get", "posts.detail.delete"), http.MethodPost, "/api/v1/posts")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGuardRequireAnyRole(t *testing.T) {
	g := Guard{
		Resolver:  &stubResolver{roles: []Role{{Name: "moderator", Level: 50}}},
		Principal: authenticatedAs(uuid.New()),
		Logger:    testLogger(),
	}
	rec := serveGuarded(t, g.RequireAnyRole(false, "admin", "moderator"), http.MethodGet, "/api/v1/admin/users")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serveGuarded(t, g.RequireAnyRole(false, "admin", "super_admin"), http.MethodGet, "/api/v1/admin/users")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGuardRequireMinLevel(t *testing.T) {
	g := Guard{
		Resolver:  &stubResolver{roles: []Role{{Name: "moderator", Level: 50}}},
		Principal: authenticatedAs(uuid.New()),
		Logger:    testLogger(),
	}
	rec := serveGuarded(t, g.RequireMinLevel(50, false), http.MethodGet, "/api/v1/analytics/posts")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serveGuarded(t, g.RequireMinLevel(60, false), http.MethodGet, "/api/v1/analytics/posts")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
