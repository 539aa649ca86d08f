package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/upb/bi-chat-gateway/internal/observability"
	"github.com/upb/bi-chat-gateway/oidc"
	"github.com/upb/bi-chat-gateway/utils"
	"go.uber.org/zap"
)

// TokenVerifier defines the interface for verifying bearer tokens
type TokenVerifier interface {
	// Verify validates a token and returns the principal it carries
	Verify(ctx context.Context, token string) (*oidc.Principal, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	verifier TokenVerifier
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware. metrics may be nil.
func NewAuthMiddleware(verifier TokenVerifier, metrics *observability.Metrics, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		metrics:  metrics,
		logger:   logger,
	}
}

// RequireAuth is a middleware that requires a valid bearer token
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token := extractBearerToken(r)
		if token == "" {
			m.reject(w, r, &oidc.AuthError{Reason: oidc.ReasonMissingToken})
			return
		}

		principal, err := m.verifier.Verify(ctx, token)
		if err != nil {
			m.reject(w, r, err)
			return
		}

		ctx = WithPrincipal(ctx, principal)

		m.logger.Debug("authentication successful",
			zap.String("request_id", GetRequestIDFromContext(r.Context())),
			zap.String("principal_id", principal.ID),
			zap.Bool("dev_bypass", principal.DevBypass))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request, err error) {
	var authErr *oidc.AuthError
	if !errors.As(err, &authErr) {
		authErr = &oidc.AuthError{Reason: oidc.ReasonInvalidToken, Err: err}
	}

	if m.metrics != nil {
		m.metrics.AuthRejections.WithLabelValues(string(authErr.Reason)).Inc()
	}

	fields := []zap.Field{
		zap.String("request_id", GetRequestIDFromContext(r.Context())),
		zap.String("reason", string(authErr.Reason)),
		zap.String("path", r.URL.Path),
	}
	if authErr.Err != nil {
		fields = append(fields, zap.Error(authErr.Err))
	}
	m.logger.Warn("request rejected", fields...)

	_ = utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse{
		Error:   "unauthorized",
		Message: authErr.Message(),
		Details: map[string]interface{}{"reason": string(authErr.Reason)},
	})
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
