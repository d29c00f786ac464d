package permissions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for the permission
// system. All writes are idempotent at the storage layer: unique constraints
// absorb concurrent callers, so no application-level locking is needed.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ActiveRoles returns the user's active roles: assignment present, not
// expired, role itself active. Ordered by hierarchy level, highest first.
func (r *Repository) ActiveRoles(ctx context.Context, userID uuid.UUID) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT sr.id, sr.name, sr.display_name, sr.description, sr.level, sr.color,
		       sr.is_system_role, sr.is_active, sr.created_at, sr.updated_at
		FROM user_roles ur
		JOIN system_roles sr ON ur.role_id = sr.id
		WHERE ur.user_id = $1
		  AND sr.is_active = TRUE
		  AND (ur.expires_at IS NULL OR ur.expires_at > now())
		ORDER BY sr.level DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRoles(rows)
}

// Roles returns every role ordered by hierarchy level, highest first.
func (r *Repository) Roles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, display_name, description, level, color,
		       is_system_role, is_active, created_at, updated_at
		FROM system_roles
		ORDER BY level DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRoles(rows)
}

// RoleHasPermission reports whether a role grants the named permission.
// Absence of a grant row means not granted; a row with granted = FALSE is an
// explicit denial.
func (r *Repository) RoleHasPermission(ctx context.Context, roleID uuid.UUID, permission string) (bool, error) {
	var granted bool
	err := r.pool.QueryRow(ctx, `
		SELECT rap.granted
		FROM role_api_permissions rap
		JOIN api_permissions ap ON rap.api_permission_id = ap.id
		WHERE rap.role_id = $1
		  AND ap.permission_name = $2
		  AND ap.is_active = TRUE`, roleID, permission).Scan(&granted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return granted, nil
}

// RoleGrants returns the permission names granted to a role.
func (r *Repository) RoleGrants(ctx context.Context, roleName string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ap.permission_name
		FROM api_permissions ap
		JOIN role_api_permissions rap ON ap.id = rap.api_permission_id
		JOIN system_roles sr ON rap.role_id = sr.id
		WHERE sr.name = $1
		  AND rap.granted = TRUE
		  AND ap.is_active = TRUE
		ORDER BY ap.permission_name`, roleName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

// UserPermissionNames returns the de-duplicated union of permission names
// granted through the user's active roles.
func (r *Repository) UserPermissionNames(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ap.permission_name
		FROM api_permissions ap
		JOIN role_api_permissions rap ON ap.id = rap.api_permission_id
		JOIN user_roles ur ON rap.role_id = ur.role_id
		JOIN system_roles sr ON ur.role_id = sr.id
		WHERE ur.user_id = $1
		  AND rap.granted = TRUE
		  AND ap.is_active = TRUE
		  AND sr.is_active = TRUE
		  AND (ur.expires_at IS NULL OR ur.expires_at > now())
		ORDER BY ap.permission_name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

// Assignments returns every role assignment for a user, expired ones
// included, ordered by assignment time.
func (r *Repository) Assignments(ctx context.Context, userID uuid.UUID) ([]RoleAssignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ur.user_id, ur.role_id, sr.name, ur.assigned_by, ur.created_at, ur.expires_at
		FROM user_roles ur
		JOIN system_roles sr ON ur.role_id = sr.id
		WHERE ur.user_id = $1
		ORDER BY ur.created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RoleAssignment
	for rows.Next() {
		var a RoleAssignment
		if err := rows.Scan(&a.UserID, &a.RoleID, &a.RoleName,
			&a.AssignedBy, &a.AssignedAt, &a.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Override returns the non-expired permission override for (user, permission),
// or nil when none exists.
func (r *Repository) Override(ctx context.Context, userID uuid.UUID, permission string) (*Override, error) {
	var o Override
	o.UserID = userID
	o.PermissionName = permission
	err := r.pool.QueryRow(ctx, `
		SELECT po.granted, COALESCE(po.reason, ''), po.granted_by, po.expires_at
		FROM permission_overrides po
		JOIN api_permissions ap ON po.api_permission_id = ap.id
		WHERE po.user_id = $1
		  AND ap.permission_name = $2
		  AND (po.expires_at IS NULL OR po.expires_at > now())`, userID, permission).
		Scan(&o.Granted, &o.Reason, &o.GrantedBy, &o.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// UpsertPermission writes a registry descriptor, skipping rows that already
// exist for the (route, method) pair. Returns true when a row was created.
func (r *Repository) UpsertPermission(ctx context.Context, d Descriptor) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO api_permissions (route_path, method, permission_name, description, category)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (route_path, method) DO NOTHING`,
		d.RoutePath, d.Method, d.Name, d.Description, d.Category)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SyncFromRegistry writes every registry descriptor into storage. Safe to
// re-run: existing rows and their role grants are left untouched.
func (r *Repository) SyncFromRegistry(ctx context.Context, registry *Registry) (int, error) {
	created := 0
	for _, d := range registry.Descriptors() {
		ok, err := r.UpsertPermission(ctx, d)
		if err != nil {
			return created, fmt.Errorf("permissions: sync %s %s: %w", d.Method, d.RoutePath, err)
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// AssignRole assigns a role to a user by role name. Re-assigning an already
// held role is an idempotent no-op reported as AlreadyAssigned.
func (r *Repository) AssignRole(ctx context.Context, userID uuid.UUID, roleName string, assignedBy *uuid.UUID, expiresAt *time.Time) (AssignOutcome, error) {
	var roleID uuid.UUID
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM system_roles WHERE name = $1 AND is_active = TRUE`, roleName).Scan(&roleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrRoleNotFound
		}
		return 0, err
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, assigned_by, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, role_id) DO NOTHING`, userID, roleID, assignedBy, expiresAt)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		return AlreadyAssigned, nil
	}
	return Assigned, nil
}

// RemoveRole removes a role from a user. Returns false when the user did not
// hold the role.
func (r *Repository) RemoveRole(ctx context.Context, userID uuid.UUID, roleName string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM user_roles
		WHERE user_id = $1
		  AND role_id = (SELECT id FROM system_roles WHERE name = $2)`, userID, roleName)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CreateRole inserts a new administrator-defined role.
func (r *Repository) CreateRole(ctx context.Context, role Role) (Role, error) {
	var out Role
	err := r.pool.QueryRow(ctx, `
		INSERT INTO system_roles (name, display_name, description, level, color, is_system_role, is_active)
		VALUES ($1, $2, $3, $4, $5, FALSE, TRUE)
		RETURNING id, name, display_name, description, level, color,
		          is_system_role, is_active, created_at, updated_at`,
		role.Name, role.DisplayName, role.Description, role.Level, role.Color).
		Scan(&out.ID, &out.Name, &out.DisplayName, &out.Description,
			&out.Level, &out.Color, &out.IsSystem, &out.IsActive,
			&out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Role{}, ErrRoleExists
		}
		return Role{}, err
	}
	return out, nil
}

// DeactivateRole soft-deletes a role. System roles are immutable.
func (r *Repository) DeactivateRole(ctx context.Context, roleName string) error {
	var isSystem bool
	err := r.pool.QueryRow(ctx,
		`SELECT is_system_role FROM system_roles WHERE name = $1`, roleName).Scan(&isSystem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRoleNotFound
		}
		return err
	}
	if isSystem {
		return ErrRoleImmutable
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE system_roles SET is_active = FALSE, updated_at = now() WHERE name = $1`, roleName)
	return err
}

// SeedRoles inserts the built-in roles, skipping names that already exist.
func (r *Repository) SeedRoles(ctx context.Context, roles []Role) error {
	for _, role := range roles {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO system_roles (name, display_name, description, level, color, is_system_role, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE)
			ON CONFLICT (name) DO NOTHING`,
			role.Name, role.DisplayName, role.Description, role.Level, role.Color, role.IsSystem)
		if err != nil {
			return fmt.Errorf("permissions: seed role %s: %w", role.Name, err)
		}
	}
	return nil
}

// SeedRoleGrants inserts granted rows linking a role to each named
// permission. Existing rows, including explicit denials applied by
// administrators, are never overwritten.
func (r *Repository) SeedRoleGrants(ctx context.Context, roleName string, permissionNames []string) error {
	for _, name := range permissionNames {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO role_api_permissions (role_id, api_permission_id, granted)
			SELECT sr.id, ap.id, TRUE
			FROM system_roles sr, api_permissions ap
			WHERE sr.name = $1 AND ap.permission_name = $2
			ON CONFLICT (role_id, api_permission_id) DO NOTHING`, roleName, name)
		if err != nil {
			return fmt.Errorf("permissions: seed grant %s -> %s: %w", roleName, name, err)
		}
	}
	return nil
}

// PurgeExpiredAssignments deletes user role assignments past their expiry.
func (r *Repository) PurgeExpiredAssignments(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM user_roles WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanRoles(rows pgx.Rows) ([]Role, error) {
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Description,
			&role.Level, &role.Color, &role.IsSystem, &role.IsActive,
			&role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func scanStrings(rows pgx.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
