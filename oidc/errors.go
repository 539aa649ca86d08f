package oidc

import "fmt"

// Reason classifies why a request failed authentication
type Reason string

const (
	ReasonMissingToken   Reason = "missing_token"
	ReasonInvalidToken   Reason = "invalid_token"
	ReasonTokenExpired   Reason = "token_expired"
	ReasonKeyUnavailable Reason = "key_unavailable"
	ReasonInvalidPayload Reason = "invalid_payload"
)

// AuthError is returned for every authentication failure
type AuthError struct {
	Reason Reason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return string(e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Message returns a human-readable description suitable for clients
func (e *AuthError) Message() string {
	switch e.Reason {
	case ReasonMissingToken:
		return "Authorization header with a bearer token is required"
	case ReasonTokenExpired:
		return "Token has expired"
	case ReasonKeyUnavailable:
		return "Token signing key could not be resolved"
	case ReasonInvalidPayload:
		return "Token payload is missing required claims"
	default:
		return "Token is invalid"
	}
}
