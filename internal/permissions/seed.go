package permissions

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// DefaultRoles returns the built-in role hierarchy. Levels increase with
// privilege; the names line up with the pattern table in DefaultRolePatterns.
func DefaultRoles() []Role {
	roles := []Role{
		{Name: "guest", Level: 10, Color: "#9e9e9e", Description: "Unauthenticated visitor with read-only access"},
		{Name: "citizen", Level: 20, Color: "#4caf50", Description: "Registered user who can post, comment, vote and follow"},
		{Name: "verified_citizen", Level: 30, Color: "#2196f3", Description: "Identity-verified user who can also edit own content"},
		{Name: "representative", Level: 40, Color: "#9c27b0", Description: "Elected official managing a representative profile"},
		{Name: "moderator", Level: 50, Color: "#ff9800", Description: "Community moderator with moderation and analytics access"},
		{Name: "admin", Level: 60, Color: "#f44336", Description: "Administrator with full system access"},
		{Name: "super_admin", Level: 70, Color: "#b71c1c", Description: "Unrestricted administrator"},
	}
	for i := range roles {
		roles[i].DisplayName = displayName(roles[i].Name)
		roles[i].IsSystem = true
		roles[i].IsActive = true
	}
	return roles
}

func displayName(roleName string) string {
	return titleCaser.String(strings.ReplaceAll(roleName, "_", " "))
}

// Seed installs the permission system's reference data: registry descriptors,
// built-in roles, and the grant rows produced by expanding each role's
// pattern list. Every step skips rows that already exist, so re-running on
// deploy is safe and administrator customizations survive.
func Seed(ctx context.Context, store Store, registry *Registry, logger *slog.Logger) error {
	created, err := store.SyncFromRegistry(ctx, registry)
	if err != nil {
		return err
	}
	if err := store.SeedRoles(ctx, DefaultRoles()); err != nil {
		return err
	}

	expander := NewExpander(registry, DefaultRolePatterns())
	for _, roleName := range expander.Roles() {
		names := expander.ExpandSorted(roleName)
		if len(names) == 0 {
			continue
		}
		if err := store.SeedRoleGrants(ctx, roleName, names); err != nil {
			return err
		}
	}

	logger.Info("permission system seeded",
		slog.Int("permissions_created", created),
		slog.Int("roles", len(DefaultRoles())))
	return nil
}
