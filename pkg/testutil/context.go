package testutil

import (
	"context"
	"net/http"

	"lexvault/internal/platform/middleware"
)

// WithIdentity adds an authenticated identity to the request context,
// simulating what RequireAuth does after validating a bearer token.
func WithIdentity(req *http.Request, userID, role string) *http.Request {
	ctx := req.Context()
	if userID != "" {
		ctx = context.WithValue(ctx, middleware.ContextKeyUserID, userID)
	}
	if role != "" {
		ctx = context.WithValue(ctx, middleware.ContextKeyRole, role)
	}
	return req.WithContext(ctx)
}
