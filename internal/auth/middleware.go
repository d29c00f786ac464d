package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// Middleware attaches the authenticated principal to the request context.
// Requests without a valid token continue anonymously; the permission guard
// decides whether anonymity is acceptable for the route.
type Middleware struct {
	Tokens *TokenStore
	Logger *slog.Logger
}

// Authenticate resolves an Authorization: Bearer token, if present.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		principal, err := m.Tokens.Verify(r.Context(), token)
		if err != nil {
			if !errors.Is(err, ErrTokenNotFound) && m.Logger != nil {
				m.Logger.Warn("token verification failed", slog.Any("error", err))
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
