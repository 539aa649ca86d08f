package embed

import (
	"context"
	"fmt"
	"time"
)

// CacheStatus reports how a credential was obtained
type CacheStatus string

const (
	// StatusHit means a fresh cached credential was served without a network call
	StatusHit CacheStatus = "hit"
	// StatusMiss means nothing was cached and a credential was issued
	StatusMiss CacheStatus = "miss"
	// StatusRefreshed means a cached credential was replaced by a newly issued one
	StatusRefreshed CacheStatus = "refreshed"
	// StatusStaleFallback means issuance failed and a still-valid cached credential was served
	StatusStaleFallback CacheStatus = "stale-fallback"
)

// Credential is a view-only embed token scoped to one report
type Credential struct {
	ResourceID string    `json:"reportId"`
	Token      string    `json:"token"`
	TokenID    string    `json:"tokenId,omitempty"`
	EmbedURL   string    `json:"embedUrl"`
	ExpiresAt  time.Time `json:"expiration"`
}

// Expired reports whether the credential can no longer be served
func (c *Credential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Stale reports whether the credential is inside the refresh window
func (c *Credential) Stale(now time.Time, skew time.Duration) bool {
	return !now.Before(c.ExpiresAt.Add(-skew))
}

// Provider issues embed credentials from the BI service
type Provider interface {
	Issue(ctx context.Context, resourceID string) (*Credential, error)
}

// ProviderError describes a failed step of the issuance sequence
type ProviderError struct {
	Step       string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d: %s", e.Step, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Step, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Step, e.Message)
	}
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// EntryInfo describes one cached credential without exposing the token
type EntryInfo struct {
	ResourceID string    `json:"reportId"`
	ExpiresAt  time.Time `json:"expiration"`
	Stale      bool      `json:"stale"`
}
