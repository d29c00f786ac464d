package permissions

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/civicpulse/civicpulse/internal/platform/httpx"
)

// MaintenanceScheduler hands maintenance work to the background queue.
// Optional; without one the handler runs maintenance inline.
type MaintenanceScheduler interface {
	SchedulePurgeExpired(ctx context.Context) error
}

// Handler exposes the permission management API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validate  *validator.Validate
	guard     Guard
	principal PrincipalFunc
	failOpen  bool
	scheduler MaintenanceScheduler
}

// NewHandler builds a Handler instance. failOpen selects the guard policy
// applied when a permission check itself cannot complete.
func NewHandler(logger *slog.Logger, service *Service, guard Guard, principal PrincipalFunc, failOpen bool, scheduler MaintenanceScheduler) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validate:  validator.New(),
		guard:     guard,
		principal: principal,
		failOpen:  failOpen,
		scheduler: scheduler,
	}
}

// MountRoutes registers permission management routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireMinLevel(50, h.failOpen))
		r.Get("/roles", h.listRoles)
		r.Get("/roles/{role_name}/permissions", h.rolePermissions)
		r.Get("/permissions", h.listPermissions)
		r.Get("/permissions/registry", h.registryByCategory)
		r.Get("/users/{user_id}/permissions", h.userPermissionSummary)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAnyRole(h.failOpen, "admin", "super_admin"))
		r.Post("/permissions/sync", h.syncPermissions)
		r.Post("/roles", h.createRole)
		r.Delete("/roles/{role_name}", h.deactivateRole)
		r.Post("/users/{user_id}/roles", h.assignRole)
		r.Delete("/users/{user_id}/roles/{role_name}", h.removeRole)
		r.Post("/maintenance/purge-expired", h.purgeExpired)
	})

	r.Get("/my/permissions", h.myPermissions)
	r.Get("/my/permissions/check/{permission_name}", h.checkMyPermission)
}

type roleResponse struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Level       int    `json:"level"`
	Color       string `json:"color"`
	IsSystem    bool   `json:"is_system"`
	IsActive    bool   `json:"is_active"`
}

type permissionResponse struct {
	Name        string `json:"name"`
	RoutePath   string `json:"route_path"`
	Method      string `json:"method"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type assignmentResponse struct {
	RoleName   string     `json:"role_name"`
	AssignedAt time.Time  `json:"assigned_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

type userPermissionSummary struct {
	UserID      string               `json:"user_id"`
	Roles       []roleResponse       `json:"roles"`
	Assignments []assignmentResponse `json:"assignments"`
	Permissions []string             `json:"permissions"`
}

func toRoleResponse(role Role) roleResponse {
	return roleResponse{
		Name:        role.Name,
		DisplayName: role.DisplayName,
		Description: role.Description,
		Level:       role.Level,
		Color:       role.Color,
		IsSystem:    role.IsSystem,
		IsActive:    role.IsActive,
	}
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.Roles(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) rolePermissions(w http.ResponseWriter, r *http.Request) {
	roleName := chi.URLParam(r, "role_name")
	perms, err := h.service.RoleGrants(r.Context(), roleName)
	if err != nil {
		h.logger.Error("role permissions", slog.String("role", roleName), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	descriptors := h.service.Registry().Descriptors()
	out := make([]permissionResponse, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, permissionResponse{
			Name:        d.Name,
			RoutePath:   d.RoutePath,
			Method:      d.Method,
			Description: d.Description,
			Category:    d.Category,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) registryByCategory(w http.ResponseWriter, r *http.Request) {
	grouped := h.service.Registry().ByCategory()
	out := make(map[string][]permissionResponse, len(grouped))
	for category, descriptors := range grouped {
		entries := make([]permissionResponse, 0, len(descriptors))
		for _, d := range descriptors {
			entries = append(entries, permissionResponse{
				Name:        d.Name,
				RoutePath:   d.RoutePath,
				Method:      d.Method,
				Description: d.Description,
				Category:    d.Category,
			})
		}
		out[category] = entries
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) syncPermissions(w http.ResponseWriter, r *http.Request) {
	created, err := h.service.SyncFromRegistry(r.Context())
	if err != nil {
		h.logger.Error("sync permissions", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"created": created})
}

// purgeExpired removes role assignments past their expiry. With a scheduler
// configured the purge runs on the worker; otherwise it runs inline.
func (h *Handler) purgeExpired(w http.ResponseWriter, r *http.Request) {
	if h.scheduler != nil {
		if err := h.scheduler.SchedulePurgeExpired(r.Context()); err != nil {
			h.logger.Error("schedule assignment purge", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
		return
	}
	purged, err := h.service.PurgeExpiredAssignments(r.Context())
	if err != nil {
		h.logger.Error("purge expired assignments", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purged": purged})
}

type createRoleRequest struct {
	Name        string `json:"name" validate:"required,max=50"`
	DisplayName string `json:"display_name" validate:"required,max=100"`
	Description string `json:"description"`
	Level       int    `json:"level" validate:"gte=0"`
	Color       string `json:"color" validate:"omitempty,hexcolor"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.CreateRole(r.Context(), Role{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		Level:       req.Level,
		Color:       req.Color,
	})
	if err != nil {
		if errors.Is(err, ErrRoleExists) {
			httpx.Problem(w, http.StatusConflict, "Conflict", "role already exists")
			return
		}
		h.logger.Error("create role", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *Handler) deactivateRole(w http.ResponseWriter, r *http.Request) {
	roleName := chi.URLParam(r, "role_name")
	err := h.service.DeactivateRole(r.Context(), roleName)
	switch {
	case err == nil:
		httpx.NoContent(w)
	case errors.Is(err, ErrRoleNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "role not found")
	case errors.Is(err, ErrRoleImmutable):
		httpx.Problem(w, http.StatusConflict, "Conflict", "system role cannot be deactivated")
	default:
		h.logger.Error("deactivate role", slog.String("role", roleName), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

type assignRoleRequest struct {
	RoleName  string     `json:"role_name" validate:"required"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	var assignedBy *uuid.UUID
	if adminID, ok := h.principal(r); ok {
		assignedBy = &adminID
	}

	outcome, err := h.service.AssignRole(r.Context(), userID, req.RoleName, assignedBy, req.ExpiresAt)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "role not found")
			return
		}
		h.logger.Error("assign role", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	status := "assigned"
	if outcome == AlreadyAssigned {
		status = "already_assigned"
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": status})
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	roleName := chi.URLParam(r, "role_name")
	removed, err := h.service.RemoveRole(r.Context(), userID, roleName)
	if err != nil {
		h.logger.Error("remove role", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	status := "removed"
	if !removed {
		status = "not_assigned"
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": status})
}

func (h *Handler) userPermissionSummary(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	h.writeSummary(w, r, userID)
}

func (h *Handler) myPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.principal(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Authentication required")
		return
	}
	h.writeSummary(w, r, userID)
}

func (h *Handler) checkMyPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.principal(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Authentication required")
		return
	}
	name := chi.URLParam(r, "permission_name")
	httpx.JSON(w, http.StatusOK, map[string]any{
		"permission": name,
		"registered": h.service.Registry().ValidateName(name),
		"granted":    h.service.HasPermission(r.Context(), userID, name),
	})
}

func (h *Handler) writeSummary(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	roles, err := h.service.UserRoles(r.Context(), userID)
	if err != nil {
		h.logger.Error("user roles", slog.String("user_id", userID.String()), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	assignments, err := h.service.UserAssignments(r.Context(), userID)
	if err != nil {
		h.logger.Error("user assignments", slog.String("user_id", userID.String()), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	out := userPermissionSummary{
		UserID:      userID.String(),
		Roles:       make([]roleResponse, 0, len(roles)),
		Assignments: make([]assignmentResponse, 0, len(assignments)),
		Permissions: h.service.UserPermissions(r.Context(), userID),
	}
	for _, role := range roles {
		out.Roles = append(out.Roles, toRoleResponse(role))
	}
	for _, a := range assignments {
		out.Assignments = append(out.Assignments, assignmentResponse{
			RoleName:   a.RoleName,
			AssignedAt: a.AssignedAt,
			ExpiresAt:  a.ExpiresAt,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}
