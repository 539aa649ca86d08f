package oidc

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DefaultDevBypassPrefix marks development tokens when no prefix is configured
const DefaultDevBypassPrefix = "dev-bypass-"

// DevBypass turns prefixed development tokens into synthetic principals.
// It must only be constructed outside production.
type DevBypass struct {
	prefix string
}

// NewDevBypass creates a DevBypass matching tokens that start with prefix
func NewDevBypass(prefix string) *DevBypass {
	if prefix == "" {
		prefix = DefaultDevBypassPrefix
	}
	return &DevBypass{prefix: prefix}
}

// Match returns the principal encoded in token, or false when the token
// does not carry the bypass prefix or has an empty identifier.
//
// The identifier after the prefix encodes an email address with "_at_"
// for "@" and "_dot_" for ".". The principal id is the first 32 hex
// characters of the identifier's SHA-256, so the same token always maps
// to the same id.
func (d *DevBypass) Match(token string) (*Principal, bool) {
	if !strings.HasPrefix(token, d.prefix) {
		return nil, false
	}

	identifier := strings.TrimPrefix(token, d.prefix)
	if identifier == "" {
		return nil, false
	}

	sum := sha256.Sum256([]byte(identifier))
	email := strings.ReplaceAll(identifier, "_at_", "@")
	email = strings.ReplaceAll(email, "_dot_", ".")

	displayName := email
	if i := strings.Index(email, "@"); i > 0 {
		displayName = email[:i]
	}

	return &Principal{
		ID:          hex.EncodeToString(sum[:])[:32],
		DisplayName: displayName,
		Email:       email,
		DevBypass:   true,
	}, true
}
