package permissions

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrRoleNotFound indicates that the referenced role does not exist or is inactive.
	ErrRoleNotFound = errors.New("permissions: role not found")
	// ErrRoleExists indicates a role with the same name already exists.
	ErrRoleExists = errors.New("permissions: role already exists")
	// ErrRoleImmutable indicates an attempt to delete or deactivate a system role.
	ErrRoleImmutable = errors.New("permissions: system role cannot be modified")
)

// Role is a named, leveled bundle of permissions assignable to users.
type Role struct {
	ID          uuid.UUID
	Name        string
	DisplayName string
	Description string
	Level       int
	Color       string
	IsSystem    bool
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission is an atomic capability derived from an API route and method.
type Permission struct {
	ID          uuid.UUID
	RoutePath   string
	Method      string
	Name        string
	Description string
	Category    string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RoleAssignment links a user to a role, optionally until an expiry.
type RoleAssignment struct {
	UserID     uuid.UUID
	RoleID     uuid.UUID
	RoleName   string
	AssignedBy *uuid.UUID
	AssignedAt time.Time
	ExpiresAt  *time.Time
}

// Override grants or denies a single permission for a single user,
// taking precedence over anything derived from roles.
type Override struct {
	UserID         uuid.UUID
	PermissionName string
	Granted        bool
	Reason         string
	GrantedBy      *uuid.UUID
	ExpiresAt      *time.Time
}

// AssignOutcome reports the result of a role assignment.
type AssignOutcome int

const (
	// Assigned means a new assignment row was created.
	Assigned AssignOutcome = iota
	// AlreadyAssigned means the user already held the role; the call is a no-op.
	AlreadyAssigned
)
