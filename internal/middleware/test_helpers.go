package middleware

import (
	"net/http"

	"github.com/gluk-w/grbbs/internal/database"
)

// WithUserForTest attaches a User to the request context for testing.
func WithUserForTest(r *http.Request, user *database.User, displayName string) *http.Request {
	return withUser(r, user, displayName)
}
