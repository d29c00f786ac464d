package permissions

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/civicpulse/civicpulse/internal/platform/httpx"
)

// Decision is the terminal state of a guard evaluation.
type Decision string

const (
	// DecisionAllowed means every requirement passed.
	DecisionAllowed Decision = "allowed"
	// DecisionDenied means a requirement failed or authentication was missing.
	DecisionDenied Decision = "denied"
	// DecisionBypassed means the check could not complete and the guard's
	// fail-open policy let the request through.
	DecisionBypassed Decision = "bypassed"
)

// Resolver is the permission service surface the guard enforces with. Check
// surfaces resolution errors so the guard can apply its fail-open policy.
type Resolver interface {
	Check(ctx context.Context, userID uuid.UUID, permission string) (bool, error)
	UserRoles(ctx context.Context, userID uuid.UUID) ([]Role, error)
}

// PrincipalFunc extracts the authenticated user from a request, reporting
// false when the request is anonymous.
type PrincipalFunc func(r *http.Request) (uuid.UUID, bool)

// DecisionRecorder receives guard outcomes for metrics. Optional.
type DecisionRecorder interface {
	ObservePermissionDecision(decision string)
}

// Guard enforces permission requirements on HTTP routes. Decisions are
// logged with principal, requirement and outcome through Logger.
type Guard struct {
	Resolver  Resolver
	Principal PrincipalFunc
	Routes    *RouteTable
	Logger    *slog.Logger
	Metrics   DecisionRecorder
}

// RequirePermission admits requests whose principal holds the permission.
func (g Guard) RequirePermission(permission string, failOpen bool) func(http.Handler) http.Handler {
	return g.middleware(fmt.Sprintf("permission '%s' required", permission), failOpen,
		func(ctx context.Context, userID uuid.UUID) (bool, error) {
			return g.Resolver.Check(ctx, userID, permission)
		})
}

// RequireAll admits requests whose principal holds every listed permission.
func (g Guard) RequireAll(failOpen bool, perms ...string) func(http.Handler) http.Handler {
	return g.middleware(fmt.Sprintf("permissions [%s] required", strings.Join(perms, ", ")), failOpen,
		func(ctx context.Context, userID uuid.UUID) (bool, error) {
			for _, perm := range perms {
				ok, err := g.Resolver.Check(ctx, userID, perm)
				if err != nil {
					return false, err
				}
				if !ok {
					return false, nil
				}
			}
			return true, nil
		})
}

// RequireRole admits requests whose principal holds the named role.
func (g Guard) RequireRole(role string, failOpen bool) func(http.Handler) http.Handler {
	return g.RequireAnyRole(failOpen, role)
}

// RequireAnyRole admits requests whose principal holds one of the roles.
func (g Guard) RequireAnyRole(failOpen bool, roles ...string) func(http.Handler) http.Handler {
	detail := fmt.Sprintf("role '%s' required", strings.Join(roles, "' or '"))
	return g.middleware(detail, failOpen,
		func(ctx context.Context, userID uuid.UUID) (bool, error) {
			held, err := g.Resolver.UserRoles(ctx, userID)
			if err != nil {
				return false, err
			}
			for _, role := range held {
				for _, want := range roles {
					if role.Name == want {
						return true, nil
					}
				}
			}
			return false, nil
		})
}

// RequireMinLevel admits requests whose principal holds a role at or above
// the given hierarchy level.
func (g Guard) RequireMinLevel(level int, failOpen bool) func(http.Handler) http.Handler {
	return g.middleware(fmt.Sprintf("minimum role level %d required", level), failOpen,
		func(ctx context.Context, userID uuid.UUID) (bool, error) {
			held, err := g.Resolver.UserRoles(ctx, userID)
			if err != nil {
				return false, err
			}
			for _, role := range held {
				if role.Level >= level {
					return true, nil
				}
			}
			return false, nil
		})
}

// middleware runs the shared decision flow: anonymous handling against the
// route table, then the requirement check, with resolution errors mapped to
// the fail-open or fail-closed policy.
func (g Guard) middleware(denyDetail string, failOpen bool, check func(context.Context, uuid.UUID) (bool, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, authenticated := g.Principal(r)
			if !authenticated {
				if g.Routes != nil && (g.Routes.IsPublic(r.URL.Path, r.Method) || g.Routes.IsGuestAllowed(r.URL.Path, r.Method)) {
					g.record(r, uuid.Nil, denyDetail, DecisionAllowed)
					next.ServeHTTP(w, r)
					return
				}
				if failOpen {
					g.record(r, uuid.Nil, denyDetail, DecisionBypassed)
					next.ServeHTTP(w, r)
					return
				}
				g.record(r, uuid.Nil, denyDetail, DecisionDenied)
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Authentication required")
				return
			}

			ok, err := check(r.Context(), userID)
			if err != nil {
				if failOpen {
					g.logger().Warn("permission check bypassed",
						slog.String("user_id", userID.String()),
						slog.String("requirement", denyDetail),
						slog.Any("error", err))
					g.record(r, userID, denyDetail, DecisionBypassed)
					next.ServeHTTP(w, r)
					return
				}
				g.record(r, userID, denyDetail, DecisionDenied)
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "Permission check failed")
				return
			}
			if !ok {
				g.record(r, userID, denyDetail, DecisionDenied)
				httpx.Problem(w, http.StatusForbidden, "Forbidden", denyDetail)
				return
			}
			g.record(r, userID, denyDetail, DecisionAllowed)
			next.ServeHTTP(w, r)
		})
	}
}

func (g Guard) record(r *http.Request, userID uuid.UUID, requirement string, decision Decision) {
	g.logger().Info("access decision",
		slog.String("user_id", userID.String()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("requirement", requirement),
		slog.String("decision", string(decision)))
	if g.Metrics != nil {
		g.Metrics.ObservePermissionDecision(string(decision))
	}
}

func (g Guard) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}
