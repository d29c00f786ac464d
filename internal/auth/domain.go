// Package auth resolves bearer tokens to authenticated principals. It is the
// only authentication surface the permission system depends on.
package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
)

// ErrInvalidCredentials covers unknown emails, wrong passwords and disabled
// accounts without distinguishing between them.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// ErrTokenNotFound indicates the presented token is unknown or expired.
var ErrTokenNotFound = errors.New("auth: token not found")

// Principal is the authenticated actor attached to a request.
type Principal struct {
	UserID uuid.UUID
	Email  string
}

type contextKey struct{}

// ContextWithPrincipal stores the principal on the context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// PrincipalFromContext returns the request principal, or nil when anonymous.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(contextKey{}).(*Principal)
	return p
}

// PrincipalID extracts the authenticated user id from a request. Shaped for
// injection into the permission guard.
func PrincipalID(r *http.Request) (uuid.UUID, bool) {
	p := PrincipalFromContext(r.Context())
	if p == nil {
		return uuid.Nil, false
	}
	return p.UserID, true
}
