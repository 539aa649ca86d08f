package oidc

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingClaim is returned when a required claim is missing
	ErrMissingClaim = errors.New("missing required claim")
)

// Claims represents the claims read from an identity token
type Claims struct {
	jwt.RegisteredClaims
	Name              string `json:"name"`
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	UPN               string `json:"upn"`
}

// Principal is the authenticated identity attached to a request
type Principal struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`

	// DevBypass is set when the principal was derived from a development token
	DevBypass bool `json:"-"`
}

// Principal converts verified claims to a Principal. sub is mandatory;
// the email falls back to preferred_username and then upn.
func (c *Claims) Principal() (*Principal, error) {
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return &Principal{
		ID:          c.Subject,
		DisplayName: c.Name,
		Email:       firstNonEmpty(c.Email, c.PreferredUsername, c.UPN),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
