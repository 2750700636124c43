package furlong

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	// RequestIDKey is the context key for the request ID (uuid.UUID)
	RequestIDKey contextKey = "RequestID"
	// UserIDKey is the context key for the signed in user ID (string)
	UserIDKey contextKey = "UserID"
	// GuestSessionKey is the context key for the guest session key (string) of anonymous visitors
	GuestSessionKey contextKey = "GuestSession"
	// AdminKey is the context key for the flag (bool) that marks administrators
	AdminKey contextKey = "Admin"
)

// ContextWithRequestID returns a new request with a request ID in the context
func ContextWithRequestID(req *http.Request, requestID uuid.UUID) *http.Request {
	ctx := context.WithValue(req.Context(), RequestIDKey, requestID)
	return req.WithContext(ctx)
}

// RequestIDFromContext returns the request ID from the context if it exists
func RequestIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(RequestIDKey).(uuid.UUID)
	return id, ok
}

// ContextWithUserID returns a new request with the signed in user ID in the context
func ContextWithUserID(req *http.Request, userID string) *http.Request {
	ctx := context.WithValue(req.Context(), UserIDKey, userID)
	return req.WithContext(ctx)
}

// UserIDFromContext returns the user ID from the context if it exists
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDKey).(string)
	return id, ok && id != ""
}

// ContextWithGuestSession returns a new request with the guest session key in the context
func ContextWithGuestSession(req *http.Request, session string) *http.Request {
	ctx := context.WithValue(req.Context(), GuestSessionKey, session)
	return req.WithContext(ctx)
}

// GuestSessionFromContext returns the guest session key from the context if it exists
func GuestSessionFromContext(ctx context.Context) (string, bool) {
	session, ok := ctx.Value(GuestSessionKey).(string)
	return session, ok && session != ""
}

// ContextWithAdminFlag returns a new request with the admin flag in the context
func ContextWithAdminFlag(req *http.Request, admin bool) *http.Request {
	ctx := context.WithValue(req.Context(), AdminKey, admin)
	return req.WithContext(ctx)
}

// AdminFlagFromContext returns the admin flag from the context if it exists
func AdminFlagFromContext(ctx context.Context) (bool, bool) {
	admin, ok := ctx.Value(AdminKey).(bool)
	return admin, ok
}
