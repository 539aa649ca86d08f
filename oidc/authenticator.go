package oidc

import (
	"context"
	"errors"
)

// TokenVerifier verifies a raw bearer token
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// Authenticator checks the development bypass first, then falls back to
// full token verification.
type Authenticator struct {
	bypass   *DevBypass
	verifier TokenVerifier
}

// NewAuthenticator creates an Authenticator. bypass may be nil.
func NewAuthenticator(verifier TokenVerifier, bypass *DevBypass) *Authenticator {
	return &Authenticator{bypass: bypass, verifier: verifier}
}

// Verify implements TokenVerifier
func (a *Authenticator) Verify(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, &AuthError{Reason: ReasonMissingToken}
	}

	if a.bypass != nil {
		if principal, ok := a.bypass.Match(token); ok {
			return principal, nil
		}
	}

	return a.verifier.Verify(ctx, token)
}

// RejectAll is a TokenVerifier used when no identity provider is configured
type RejectAll struct{}

var errNotConfigured = errors.New("identity provider not configured")

// Verify always fails
func (RejectAll) Verify(ctx context.Context, token string) (*Principal, error) {
	return nil, &AuthError{Reason: ReasonKeyUnavailable, Err: errNotConfigured}
}
