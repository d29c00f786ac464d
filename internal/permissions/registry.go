package permissions

import "net/http"

// MethodAll marks a descriptor that covers every HTTP method of its route.
const MethodAll = "*"

// Descriptor pairs an API route template and method with the metadata stored
// for its permission. Name is always DeriveName(RoutePath, Method).
type Descriptor struct {
	RoutePath   string
	Method      string
	Name        string
	Description string
	Category    string
}

// Registry is the static, process-wide table of every known permission.
// It is built once at startup and is the single source of truth synced into
// the store.
type Registry struct {
	descriptors   []Descriptor
	byRouteMethod map[routeMethod]string
	names         map[string]struct{}
}

type routeMethod struct {
	route  string
	method string
}

// NewRegistry builds the registry from the default descriptor table.
func NewRegistry() *Registry {
	return newRegistry(defaultDescriptors())
}

func newRegistry(entries []Descriptor) *Registry {
	reg := &Registry{
		descriptors:   make([]Descriptor, 0, len(entries)),
		byRouteMethod: make(map[routeMethod]string, len(entries)),
		names:         make(map[string]struct{}, len(entries)),
	}
	for _, entry := range entries {
		entry.Name = DeriveName(entry.RoutePath, entry.Method)
		reg.descriptors = append(reg.descriptors, entry)
		reg.byRouteMethod[routeMethod{entry.RoutePath, entry.Method}] = entry.Name
		reg.names[entry.Name] = struct{}{}
	}
	return reg
}

// Descriptors returns every registered descriptor in declaration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Lookup resolves the permission name registered for a route and method.
func (r *Registry) Lookup(routePath, method string) (string, bool) {
	name, ok := r.byRouteMethod[routeMethod{routePath, method}]
	return name, ok
}

// Names returns every registered permission name.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.names))
	for _, d := range r.descriptors {
		out = append(out, d.Name)
	}
	return out
}

// ValidateName reports whether a permission name corresponds to a registered
// API endpoint.
func (r *Registry) ValidateName(name string) bool {
	_, ok := r.names[name]
	return ok
}

// ByCategory groups descriptors by their category tag.
func (r *Registry) ByCategory() map[string][]Descriptor {
	out := make(map[string][]Descriptor)
	for _, d := range r.descriptors {
		out[d.Category] = append(out[d.Category], d)
	}
	return out
}

func defaultDescriptors() []Descriptor {
	return []Descriptor{
		// Authentication
		{RoutePath: "/api/v1/auth/register", Method: http.MethodPost, Description: "Register new user", Category: "auth"},
		{RoutePath: "/api/v1/auth/login", Method: http.MethodPost, Description: "User login", Category: "auth"},
		{RoutePath: "/api/v1/auth/refresh", Method: http.MethodPost, Description: "Refresh access token", Category: "auth"},
		{RoutePath: "/api/v1/auth/logout", Method: http.MethodPost, Description: "User logout", Category: "auth"},

		// User profiles
		{RoutePath: "/api/v1/users/me", Method: http.MethodGet, Description: "Get current user profile", Category: "users"},
		{RoutePath: "/api/v1/users/me", Method: http.MethodPut, Description: "Update current user profile", Category: "users"},
		{RoutePath: "/api/v1/users/{user_id}", Method: http.MethodGet, Description: "Get user profile by ID", Category: "users"},
		{RoutePath: "/api/v1/users", Method: http.MethodGet, Description: "List users (admin)", Category: "users"},
		{RoutePath: "/api/v1/users/{user_id}", Method: http.MethodDelete, Description: "Delete user (admin)", Category: "users"},

		// Posts
		{RoutePath: "/api/v1/posts", Method: http.MethodGet, Description: "List posts", Category: "posts"},
		{RoutePath: "/api/v1/posts", Method: http.MethodPost, Description: "Create new post", Category: "posts"},
		{RoutePath: "/api/v1/posts/{post_id}", Method: http.MethodGet, Description: "Get post details", Category: "posts"},
		{RoutePath: "/api/v1/posts/{post_id}", Method: http.MethodPut, Description: "Update post", Category: "posts"},
		{RoutePath: "/api/v1/posts/{post_id}", Method: http.MethodDelete, Description: "Delete post", Category: "posts"},
		{RoutePath: "/api/v1/posts/search", Method: http.MethodGet, Description: "Search posts", Category: "posts"},

		// Comments
		{RoutePath: "/api/v1/posts/{post_id}/comments", Method: http.MethodGet, Description: "List post comments", Category: "comments"},
		{RoutePath: "/api/v1/posts/{post_id}/comments", Method: http.MethodPost, Description: "Create comment", Category: "comments"},
		{RoutePath: "/api/v1/comments/{comment_id}", Method: http.MethodPut, Description: "Update comment", Category: "comments"},
		{RoutePath: "/api/v1/comments/{comment_id}", Method: http.MethodDelete, Description: "Delete comment", Category: "comments"},

		// Voting
		{RoutePath: "/api/v1/posts/{post_id}/vote", Method: http.MethodPost, Description: "Vote on post", Category: "voting"},
		{RoutePath: "/api/v1/posts/{post_id}/vote", Method: http.MethodDelete, Description: "Remove vote from post", Category: "voting"},
		{RoutePath: "/api/v1/comments/{comment_id}/vote", Method: http.MethodPost, Description: "Vote on comment", Category: "voting"},
		{RoutePath: "/api/v1/comments/{comment_id}/vote", Method: http.MethodDelete, Description: "Remove vote from comment", Category: "voting"},

		// Follows
		{RoutePath: "/api/v1/follows", Method: http.MethodGet, Description: "List user follows", Category: "follows"},
		{RoutePath: "/api/v1/follows", Method: http.MethodPost, Description: "Follow user/topic", Category: "follows"},
		{RoutePath: "/api/v1/follows/{follow_id}", Method: http.MethodDelete, Description: "Unfollow", Category: "follows"},
		{RoutePath: "/api/v1/users/{user_id}/followers", Method: http.MethodGet, Description: "Get user followers", Category: "follows"},
		{RoutePath: "/api/v1/users/{user_id}/following", Method: http.MethodGet, Description: "Get user following", Category: "follows"},

		// Notifications
		{RoutePath: "/api/v1/notifications", Method: http.MethodGet, Description: "List notifications", Category: "notifications"},
		{RoutePath: "/api/v1/notifications/{notification_id}", Method: http.MethodPut, Description: "Mark notification as read", Category: "notifications"},
		{RoutePath: "/api/v1/notifications/mark-all-read", Method: http.MethodPost, Description: "Mark all notifications as read", Category: "notifications"},

		// Representatives
		{RoutePath: "/api/v1/representatives", Method: http.MethodGet, Description: "List representatives", Category: "representatives"},
		{RoutePath: "/api/v1/representatives/{rep_id}", Method: http.MethodGet, Description: "Get representative details", Category: "representatives"},
		{RoutePath: "/api/v1/representatives", Method: http.MethodPost, Description: "Create representative (admin)", Category: "representatives"},
		{RoutePath: "/api/v1/representatives/{rep_id}", Method: http.MethodPut, Description: "Update representative (admin)", Category: "representatives"},
		{RoutePath: "/api/v1/representatives/{rep_id}", Method: http.MethodDelete, Description: "Delete representative (admin)", Category: "representatives"},

		// Jurisdictions
		{RoutePath: "/api/v1/jurisdictions", Method: http.MethodGet, Description: "List jurisdictions", Category: "jurisdictions"},
		{RoutePath: "/api/v1/jurisdictions/{jurisdiction_id}", Method: http.MethodGet, Description: "Get jurisdiction details", Category: "jurisdictions"},

		// File uploads
		{RoutePath: "/api/v1/upload", Method: http.MethodPost, Description: "Upload files", Category: "files"},
		{RoutePath: "/api/v1/upload/avatar", Method: http.MethodPost, Description: "Upload avatar", Category: "files"},

		// Analytics
		{RoutePath: "/api/v1/analytics/posts", Method: http.MethodGet, Description: "Post analytics", Category: "analytics"},
		{RoutePath: "/api/v1/analytics/users", Method: http.MethodGet, Description: "User analytics", Category: "analytics"},
		{RoutePath: "/api/v1/analytics/engagement", Method: http.MethodGet, Description: "Engagement analytics", Category: "analytics"},

		// Admin
		{RoutePath: "/api/v1/admin/users", Method: http.MethodGet, Description: "Admin user management", Category: "admin"},
		{RoutePath: "/api/v1/admin/posts/moderate", Method: http.MethodPost, Description: "Moderate posts", Category: "admin"},
		{RoutePath: "/api/v1/admin/comments/moderate", Method: http.MethodPost, Description: "Moderate comments", Category: "admin"},
		{RoutePath: "/api/v1/admin/system/status", Method: http.MethodGet, Description: "System status", Category: "admin"},
	}
}

// DefaultRolePatterns returns the permission pattern lists for the built-in
// roles. Patterns are expanded by the Expander: "*" means every registered
// permission, "*role" inherits another role's patterns, "prefix.*" matches
// every permission name starting with "prefix.", and anything else is taken
// verbatim.
func DefaultRolePatterns() map[string][]string {
	return map[string][]string{
		"guest": {},

		"citizen": {
			"auth.*",
			"users.me.get", "users.me.put",
			"users.detail.get",
			"posts.get", "posts.post", "posts.detail.get", "posts.search.get",
			"posts.comments.get", "posts.comments.post",
			"posts.detail.vote.post", "posts.detail.vote.delete",
			"comments.detail.vote.post", "comments.detail.vote.delete",
			"follows.get", "follows.post", "follows.detail.delete",
			"users.detail.followers.get", "users.detail.following.get",
			"notifications.get", "notifications.detail.put", "notifications.mark-all-read.post",
			"representatives.get", "representatives.detail.get",
			"jurisdictions.get", "jurisdictions.detail.get",
			"upload.post", "upload.avatar.post",
		},

		"verified_citizen": {
			"*citizen",
			"posts.detail.put",
			"comments.detail.put",
		},

		"representative": {
			"*verified_citizen",
			"representatives.post", "representatives.detail.put",
		},

		"moderator": {
			"*representative",
			"admin.posts.moderate.post",
			"admin.comments.moderate.post",
			"analytics.posts.get", "analytics.engagement.get",
		},

		"admin": {
			"*",
		},

		"super_admin": {
			"*",
		},
	}
}
