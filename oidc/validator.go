package oidc

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// KeySource resolves verification keys by key id
type KeySource interface {
	Resolve(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// Config holds configuration for Verifier
type Config struct {
	Issuer     string
	Audience   string
	Algorithms []string
	Leeway     time.Duration
}

// Verifier validates bearer JWTs issued by the identity provider
type Verifier struct {
	keys   KeySource
	parser *jwt.Parser
}

// NewVerifier creates a new JWT verifier
func NewVerifier(cfg Config, keys KeySource) *Verifier {
	if len(cfg.Algorithms) == 0 {
		cfg.Algorithms = []string{"RS256"}
	}

	return &Verifier{
		keys: keys,
		parser: jwt.NewParser(
			jwt.WithValidMethods(cfg.Algorithms),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(cfg.Leeway),
		),
	}
}

// Verify checks signature, algorithm, issuer, audience and expiry, then
// returns the principal carried by the token. Failures are *AuthError.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Principal, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("kid header not found")
		}

		key, err := v.keys.Resolve(ctx, kid)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errKeyUnavailable, err)
		}
		return key, nil
	})

	if err != nil {
		switch {
		case errors.Is(err, errKeyUnavailable):
			return nil, &AuthError{Reason: ReasonKeyUnavailable, Err: err}
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, &AuthError{Reason: ReasonTokenExpired, Err: err}
		default:
			return nil, &AuthError{Reason: ReasonInvalidToken, Err: err}
		}
	}

	principal, err := claims.Principal()
	if err != nil {
		return nil, &AuthError{Reason: ReasonInvalidPayload, Err: err}
	}

	return principal, nil
}

var errKeyUnavailable = errors.New("verification key unavailable")
