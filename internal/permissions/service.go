package permissions

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Store is the persistence boundary the service resolves against.
type Store interface {
	ActiveRoles(ctx context.Context, userID uuid.UUID) ([]Role, error)
	Roles(ctx context.Context) ([]Role, error)
	RoleHasPermission(ctx context.Context, roleID uuid.UUID, permission string) (bool, error)
	RoleGrants(ctx context.Context, roleName string) ([]string, error)
	UserPermissionNames(ctx context.Context, userID uuid.UUID) ([]string, error)
	Assignments(ctx context.Context, userID uuid.UUID) ([]RoleAssignment, error)
	Override(ctx context.Context, userID uuid.UUID, permission string) (*Override, error)
	SyncFromRegistry(ctx context.Context, registry *Registry) (int, error)
	AssignRole(ctx context.Context, userID uuid.UUID, roleName string, assignedBy *uuid.UUID, expiresAt *time.Time) (AssignOutcome, error)
	RemoveRole(ctx context.Context, userID uuid.UUID, roleName string) (bool, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	DeactivateRole(ctx context.Context, roleName string) error
	SeedRoles(ctx context.Context, roles []Role) error
	SeedRoleGrants(ctx context.Context, roleName string, permissionNames []string) error
	PurgeExpiredAssignments(ctx context.Context) (int64, error)
}

// CacheRecorder receives decision cache lookup outcomes. Optional.
type CacheRecorder interface {
	ObservePermissionCacheLookup(hit bool)
}

// ServiceConfig tunes the permission service.
type ServiceConfig struct {
	// CacheTTL bounds how long a cached decision may outlive a role or grant
	// change. Zero disables the decision cache.
	CacheTTL time.Duration
	// CacheSize caps the number of cached decisions.
	CacheSize int
	// Metrics counts cache hits and misses when set.
	Metrics CacheRecorder
}

// Service orchestrates permission resolution against the store. It is the
// single in-process authority for "does user U hold permission P".
type Service struct {
	store    Store
	registry *Registry
	logger   *slog.Logger
	cache    *decisionCache
	metrics  CacheRecorder
	group    singleflight.Group
}

// NewService constructs a Service.
func NewService(store Store, registry *Registry, logger *slog.Logger, cfg ServiceConfig) *Service {
	s := &Service{store: store, registry: registry, logger: logger, metrics: cfg.Metrics}
	if cfg.CacheTTL > 0 && cfg.CacheSize > 0 {
		s.cache = newDecisionCache(cfg.CacheTTL, cfg.CacheSize)
	}
	return s
}

// Registry exposes the static permission registry backing this service.
func (s *Service) Registry() *Registry {
	return s.registry
}

// HasPermission reports whether the user holds the named permission. Storage
// errors never propagate: they are logged and reported as a deny.
func (s *Service) HasPermission(ctx context.Context, userID uuid.UUID, permission string) bool {
	allowed, err := s.Check(ctx, userID, permission)
	if err != nil {
		s.logger.Warn("permission resolution failed",
			slog.String("user_id", userID.String()),
			slog.String("permission", permission),
			slog.Any("error", err))
		return false
	}
	return allowed
}

// Check resolves the permission and surfaces storage errors to the caller.
// The enforcement layer uses the error to apply its fail-open or fail-closed
// policy; everything else should prefer HasPermission.
func (s *Service) Check(ctx context.Context, userID uuid.UUID, permission string) (bool, error) {
	key := userID.String() + "|" + permission
	if s.cache != nil {
		allowed, ok := s.cache.get(key)
		if s.metrics != nil {
			s.metrics.ObservePermissionCacheLookup(ok)
		}
		if ok {
			return allowed, nil
		}
	}

	// Coalesce concurrent lookups for the same (user, permission) key.
	result, err, _ := s.group.Do(key, func() (any, error) {
		allowed, err := s.resolve(ctx, userID, permission)
		if err != nil {
			return false, err
		}
		if s.cache != nil {
			s.cache.set(key, allowed)
		}
		return allowed, nil
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

func (s *Service) resolve(ctx context.Context, userID uuid.UUID, permission string) (bool, error) {
	override, err := s.store.Override(ctx, userID, permission)
	if err != nil {
		return false, err
	}
	if override != nil {
		return override.Granted, nil
	}

	roles, err := s.store.ActiveRoles(ctx, userID)
	if err != nil {
		return false, err
	}
	if len(roles) == 0 {
		return false, nil
	}
	for _, role := range roles {
		granted, err := s.store.RoleHasPermission(ctx, role.ID, permission)
		if err != nil {
			return false, err
		}
		if granted {
			return true, nil
		}
	}
	return false, nil
}

// UserPermissions returns every permission name the user holds through
// active roles. Errors are logged and reported as an empty set.
func (s *Service) UserPermissions(ctx context.Context, userID uuid.UUID) []string {
	names, err := s.store.UserPermissionNames(ctx, userID)
	if err != nil {
		s.logger.Warn("load user permissions failed",
			slog.String("user_id", userID.String()),
			slog.Any("error", err))
		return nil
	}
	return names
}

// UserRoles returns the user's active roles ordered by level, highest first.
func (s *Service) UserRoles(ctx context.Context, userID uuid.UUID) ([]Role, error) {
	return s.store.ActiveRoles(ctx, userID)
}

// UserAssignments returns the user's role assignments, including expired
// ones, with the assignment audit fields.
func (s *Service) UserAssignments(ctx context.Context, userID uuid.UUID) ([]RoleAssignment, error) {
	return s.store.Assignments(ctx, userID)
}

// Roles returns every role.
func (s *Service) Roles(ctx context.Context) ([]Role, error) {
	return s.store.Roles(ctx)
}

// RoleGrants returns the permission names granted to a role.
func (s *Service) RoleGrants(ctx context.Context, roleName string) ([]string, error) {
	return s.store.RoleGrants(ctx, roleName)
}

// AssignRole assigns a role to a user by name.
func (s *Service) AssignRole(ctx context.Context, userID uuid.UUID, roleName string, assignedBy *uuid.UUID, expiresAt *time.Time) (AssignOutcome, error) {
	outcome, err := s.store.AssignRole(ctx, userID, roleName, assignedBy, expiresAt)
	if err != nil {
		return 0, err
	}
	s.logger.Info("role assigned",
		slog.String("user_id", userID.String()),
		slog.String("role", roleName),
		slog.Bool("already_assigned", outcome == AlreadyAssigned))
	return outcome, nil
}

// RemoveRole removes a role from a user. Returns false when the user did not
// hold the role.
func (s *Service) RemoveRole(ctx context.Context, userID uuid.UUID, roleName string) (bool, error) {
	removed, err := s.store.RemoveRole(ctx, userID, roleName)
	if err != nil {
		return false, err
	}
	if removed {
		s.logger.Info("role removed",
			slog.String("user_id", userID.String()),
			slog.String("role", roleName))
	}
	return removed, nil
}

// CreateRole inserts a new administrator-defined role.
func (s *Service) CreateRole(ctx context.Context, role Role) (Role, error) {
	return s.store.CreateRole(ctx, role)
}

// DeactivateRole soft-deletes a role. System roles are immutable.
func (s *Service) DeactivateRole(ctx context.Context, roleName string) error {
	return s.store.DeactivateRole(ctx, roleName)
}

// SyncFromRegistry writes the registry into the store. Idempotent.
func (s *Service) SyncFromRegistry(ctx context.Context) (int, error) {
	created, err := s.store.SyncFromRegistry(ctx, s.registry)
	if err != nil {
		return created, err
	}
	s.logger.Info("permission registry synced", slog.Int("created", created))
	return created, nil
}

// PurgeExpiredAssignments removes role assignments past their expiry.
func (s *Service) PurgeExpiredAssignments(ctx context.Context) (int64, error) {
	return s.store.PurgeExpiredAssignments(ctx)
}
