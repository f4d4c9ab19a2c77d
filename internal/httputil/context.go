package httputil

import (
	"context"
	"net/http"
)

// contextKey is unexported so no other package can collide with our values.
type contextKey int

const userIDKey contextKey = iota

// WithUserID returns a request whose context carries the authenticated user.
func WithUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userIDKey, userID))
}

// GetUserID returns the authenticated user ID, or "" on an unauthenticated
// request. Handlers behind the auth middleware can rely on it being set.
func GetUserID(r *http.Request) string {
	userID, _ := r.Context().Value(userIDKey).(string)
	return userID
}
