package permissions

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFixture struct {
	store   *mockStore
	service *Service
	handler *Handler
	router  chi.Router
	adminID uuid.UUID
	userID  uuid.UUID
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	store := newMockStore()
	service := NewService(store, NewRegistry(), testLogger(), ServiceConfig{})

	adminID := uuid.New()
	adminRole := Role{ID: uuid.New(), Name: "admin", DisplayName: "Admin", Level: 60, IsSystem: true, IsActive: true}
	store.roles = append(store.roles, adminRole)
	store.activeRoles[adminID] = []Role{adminRole}

	principal := func(r *http.Request) (uuid.UUID, bool) {
		raw := r.Header.Get("X-Test-User")
		if raw == "" {
			return uuid.Nil, false
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, false
		}
		return id, true
	}

	guard := Guard{
		Resolver:  service,
		Principal: principal,
		Routes:    DefaultRouteTable(),
		Logger:    testLogger(),
	}
	handler := NewHandler(testLogger(), service, guard, principal, false, nil)

	router := chi.NewRouter()
	router.Route("/api/v1/permission-management", handler.MountRoutes)

	return &handlerFixture{
		store:   store,
		service: service,
		handler: handler,
		router:  router,
		adminID: adminID,
		userID:  uuid.New(),
	}
}

func (f *handlerFixture) do(t *testing.T, method, path string, body any, as uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if as != uuid.Nil {
		req.Header.Set("X-Test-User", as.String())
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerListRoles(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/permission-management/roles", nil, f.adminID)
	require.Equal(t, http.StatusOK, rec.Code)

	var out []roleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "admin", out[0].Name)
}

func TestHandlerListRolesRequiresModerator(t *testing.T) {
	f := newHandlerFixture(t)

	citizenID := uuid.New()
	f.store.activeRoles[citizenID] = []Role{{ID: uuid.New(), Name: "citizen", Level: 20}}

	rec := f.do(t, http.MethodGet, "/api/v1/permission-management/roles", nil, citizenID)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/permission-management/roles", nil, uuid.Nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerListPermissions(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/permission-management/permissions", nil, f.adminID)
	require.Equal(t, http.StatusOK, rec.Code)

	var out []permissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out, len(NewRegistry().Descriptors()))
}

func TestHandlerCreateRole(t *testing.T) {
	f := newHandlerFixture(t)

	body := map[string]any{
		"name":         "analyst",
		"display_name": "Analyst",
		"level":        25,
		"color":        "#112233",
	}
	rec := f.do(t, http.MethodPost, "/api/v1/permission-management/roles", body, f.adminID)
	require.Equal(t, http.StatusCreated, rec.Code)

	var out roleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "analyst", out.Name)
	assert.False(t, out.IsSystem)

	rec = f.do(t, http.MethodPost, "/api/v1/permission-management/roles", body, f.adminID)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerCreateRoleValidation(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/permission-management/roles",
		map[string]any{"display_name": "No Name"}, f.adminID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/permission-management/roles",
		map[string]any{"name": "x", "display_name": "X", "color": "not-a-color"}, f.adminID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerDeactivateRole(t *testing.T) {
	f := newHandlerFixture(t)
	f.store.roles = append(f.store.roles, Role{ID: uuid.New(), Name: "analyst", Level: 25, IsActive: true})

	rec := f.do(t, http.MethodDelete, "/api/v1/permission-management/roles/analyst", nil, f.adminID)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/v1/permission-management/roles/admin", nil, f.adminID)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/v1/permission-management/roles/ghost", nil, f.adminID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerAssignRole(t *testing.T) {
	f := newHandlerFixture(t)
	f.store.roles = append(f.store.roles, Role{ID: uuid.New(), Name: "moderator", Level: 50})

	path := "/api/v1/permission-management/users/" + f.userID.String() + "/roles"
	body := map[string]any{"role_name": "moderator"}

	rec := f.do(t, http.MethodPost, path, body, f.adminID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"assigned"}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, path, body, f.adminID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"already_assigned"}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, path, map[string]any{"role_name": "ghost"}, f.adminID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerAssignRoleRequiresAdmin(t *testing.T) {
	f := newHandlerFixture(t)
	f.store.roles = append(f.store.roles, Role{ID: uuid.New(), Name: "moderator", Level: 50})

	moderatorID := uuid.New()
	f.store.activeRoles[moderatorID] = []Role{{ID: uuid.New(), Name: "moderator", Level: 50}}

	rec := f.do(t, http.MethodPost,
		"/api/v1/permission-management/users/"+f.userID.String()+"/roles",
		map[string]any{"role_name": "moderator"}, moderatorID)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerRemoveRole(t *testing.T) {
	f := newHandlerFixture(t)
	f.store.roles = append(f.store.roles, Role{ID: uuid.New(), Name: "moderator", Level: 50})
	f.store.assignments[f.userID.String()+"|moderator"] = struct{}{}

	path := "/api/v1/permission-management/users/" + f.userID.String() + "/roles/moderator"

	rec := f.do(t, http.MethodDelete, path, nil, f.adminID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"removed"}`, rec.Body.String())

	rec = f.do(t, http.MethodDelete, path, nil, f.adminID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"not_assigned"}`, rec.Body.String())
}

type stubScheduler struct {
	calls int
	err   error
}

func (s *stubScheduler) SchedulePurgeExpired(context.Context) error {
	s.calls++
	return s.err
}

func TestHandlerPurgeExpiredInline(t *testing.T) {
	f := newHandlerFixture(t)
	f.store.purged = 4

	rec := f.do(t, http.MethodPost, "/api/v1/permission-management/maintenance/purge-expired", nil, f.adminID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"purged":4}`, rec.Body.String())
	assert.Equal(t, 1, f.store.purgeRuns)
}

func TestHandlerPurgeExpiredScheduled(t *testing.T) {
	f := newHandlerFixture(t)
	sched := &stubScheduler{}
	f.handler.scheduler = sched

	rec := f.do(t, http.MethodPost, "/api/v1/permission-management/maintenance/purge-expired", nil, f.adminID)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"status":"scheduled"}`, rec.Body.String())
	assert.Equal(t, 1, sched.calls)
	assert.Zero(t, f.store.purgeRuns, "scheduled purge must not run inline")
}

func TestHandlerPurgeExpiredRequiresAdmin(t *testing.T) {
	f := newHandlerFixture(t)

	moderatorID := uuid.New()
	f.store.activeRoles[moderatorID] = []Role{{ID: uuid.New(), Name: "moderator", Level: 50}}

	rec := f.do(t, http.MethodPost, "/api/v1/permission-management/maintenance/purge-expired", nil, moderatorID)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerUserSummaryListsAssignments(t *testing.T) {
	f := newHandlerFixture(t)
	f.store.roles = append(f.store.roles, Role{ID: uuid.New(), Name: "moderator", Level: 50})
	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	f.store.assignments[f.userID.String()+"|moderator"] = struct{}{}
	f.store.expiries[f.userID.String()+"|moderator"] = exp

	rec := f.do(t, http.MethodGet,
		"/api/v1/permission-management/users/"+f.userID.String()+"/permissions", nil, f.adminID)
	require.Equal(t, http.StatusOK, rec.Code)

	var out userPermissionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Assignments, 1)
	assert.Equal(t, "moderator", out.Assignments[0].RoleName)
	require.NotNil(t, out.Assignments[0].ExpiresAt)
	assert.True(t, out.Assignments[0].ExpiresAt.Equal(exp))
}

func TestHandlerMyPermissions(t *testing.T) {
	f := newHandlerFixture(t)
	role := Role{ID: uuid.New(), Name: "citizen", DisplayName: "Citizen", Level: 20, IsActive: true}
	f.store.activeRoles[f.userID] = []Role{role}
	f.store.grant(role.ID, "posts.get", true)

	rec := f.do(t, http.MethodGet, "/api/v1/permission-management/my/permissions", nil, f.userID)
	require.Equal(t, http.StatusOK, rec.Code)

	var out userPermissionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, f.userID.String(), out.UserID)
	require.Len(t, out.Roles, 1)
	assert.Equal(t, "citizen", out.Roles[0].Name)
	assert.Contains(t, out.Permissions, "posts.get")
}

func TestHandlerMyPermissionsAnonymous(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/permission-management/my/permissions", nil, uuid.Nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerCheckMyPermission(t *testing.T) {
	f := newHandlerFixture(t)
	role := Role{ID: uuid.New(), Name: "citizen", Level: 20}
	f.store.activeRoles[f.userID] = []Role{role}
	f.store.grant(role.ID, "posts.get", true)

	rec := f.do(t, http.MethodGet, "/api/v1/permission-management/my/permissions/check/posts.get", nil, f.userID)
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, true, out["registered"])
	assert.Equal(t, true, out["granted"])

	rec = f.do(t, http.MethodGet, "/api/v1/permission-management/my/permissions/check/posts.unknown", nil, f.userID)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, false, out["registered"])
	assert.Equal(t, false, out["granted"])
}
