package permissions

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouteTablePublic(t *testing.T) {
	table := DefaultRouteTable()

	assert.True(t, table.IsPublic("/api/v1/auth/login", http.MethodPost))
	assert.True(t, table.IsPublic("/api/v1/auth/register", http.MethodPost))
	assert.True(t, table.IsPublic("/healthz", http.MethodGet))

	assert.False(t, table.IsPublic("/api/v1/auth/login", http.MethodGet))
	assert.False(t, table.IsPublic("/api/v1/posts", http.MethodGet))
}

func TestRouteTableGuestExact(t *testing.T) {
	table := DefaultRouteTable()

	assert.True(t, table.IsGuestAllowed("/api/v1/posts", http.MethodGet))
	assert.True(t, table.IsGuestAllowed("/api/v1/posts/search", http.MethodGet))
	assert.True(t, table.IsGuestAllowed("/api/v1/representatives", http.MethodGet))
	assert.True(t, table.IsGuestAllowed("/api/v1/jurisdictions", http.MethodGet))

	assert.False(t, table.IsGuestAllowed("/api/v1/posts", http.MethodPost))
	assert.False(t, table.IsGuestAllowed("/api/v1/notifications", http.MethodGet))
}

func TestRouteTableGuestSingleResource(t *testing.T) {
	table := DefaultRouteTable()

	// One trailing segment under an allowed prefix is readable anonymously.
	assert.True(t, table.IsGuestAllowed("/api/v1/posts/42", http.MethodGet))
	assert.True(t, table.IsGuestAllowed("/api/v1/representatives/7", http.MethodGet))

	// Deeper paths and writes are not.
	assert.False(t, table.IsGuestAllowed("/api/v1/posts/42/comments", http.MethodGet))
	assert.False(t, table.IsGuestAllowed("/api/v1/posts/42", http.MethodDelete))
	assert.False(t, table.IsGuestAllowed("/api/v1/jurisdictions/3", http.MethodGet))
}
