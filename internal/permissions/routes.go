package permissions

import (
	"net/http"
	"strings"
)

// RouteRule identifies a concrete request path and method.
type RouteRule struct {
	Path   string
	Method string
}

// RouteTable is the static classification of routes reachable without a
// permission check: public routes need no authentication at all, guest
// routes allow anonymous read access. The table is configuration data, not
// derived from the registry.
type RouteTable struct {
	public        map[RouteRule]struct{}
	guest         map[RouteRule]struct{}
	guestPrefixes []string
}

// NewRouteTable builds a table from explicit rule lists. guestPrefixes apply
// the single-resource rule: an anonymous GET under a prefix is allowed when
// the path has exactly one trailing path segment (e.g. /api/v1/posts/{id}).
func NewRouteTable(public, guest []RouteRule, guestPrefixes []string) *RouteTable {
	t := &RouteTable{
		public:        make(map[RouteRule]struct{}, len(public)),
		guest:         make(map[RouteRule]struct{}, len(guest)),
		guestPrefixes: guestPrefixes,
	}
	for _, rule := range public {
		t.public[rule] = struct{}{}
	}
	for _, rule := range guest {
		t.guest[rule] = struct{}{}
	}
	return t
}

// DefaultRouteTable returns the CivicPulse route classification.
func DefaultRouteTable() *RouteTable {
	return NewRouteTable(
		[]RouteRule{
			{Path: "/api/v1/auth/register", Method: http.MethodPost},
			{Path: "/api/v1/auth/login", Method: http.MethodPost},
			{Path: "/api/v1/auth/refresh", Method: http.MethodPost},
			{Path: "/healthz", Method: http.MethodGet},
		},
		[]RouteRule{
			{Path: "/api/v1/posts", Method: http.MethodGet},
			{Path: "/api/v1/posts/search", Method: http.MethodGet},
			{Path: "/api/v1/representatives", Method: http.MethodGet},
			{Path: "/api/v1/jurisdictions", Method: http.MethodGet},
		},
		[]string{
			"/api/v1/posts/",
			"/api/v1/representatives/",
		},
	)
}

// IsPublic reports whether the route is reachable without authentication.
func (t *RouteTable) IsPublic(path, method string) bool {
	_, ok := t.public[RouteRule{Path: path, Method: method}]
	return ok
}

// IsGuestAllowed reports whether an anonymous request may pass.
func (t *RouteTable) IsGuestAllowed(path, method string) bool {
	if _, ok := t.guest[RouteRule{Path: path, Method: method}]; ok {
		return true
	}
	if method != http.MethodGet {
		return false
	}
	for _, prefix := range t.guestPrefixes {
		if strings.HasPrefix(path, prefix) && strings.Count(path, "/") == strings.Count(prefix, "/") {
			return true
		}
	}
	return false
}
