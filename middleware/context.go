package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/bi-chat-gateway/oidc"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// PrincipalKey is the context key for the authenticated principal
	PrincipalKey contextKey = "principal"
)

// GetRequestIDFromContext retrieves the request ID from context, falling
// back to the id set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok && requestID != "" {
			return requestID
		}
	}
	return chimw.GetReqID(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetPrincipalFromContext retrieves the authenticated principal from context
func GetPrincipalFromContext(ctx context.Context) *oidc.Principal {
	if val := ctx.Value(PrincipalKey); val != nil {
		if principal, ok := val.(*oidc.Principal); ok {
			return principal
		}
	}
	return nil
}

// WithPrincipal adds the authenticated principal to the context
func WithPrincipal(ctx context.Context, principal *oidc.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}
