package oidc

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

var (
	// ErrKeyNotFound is returned when the key set does not contain the requested kid
	ErrKeyNotFound = errors.New("signing key not found")

	// ErrKeyFetch is returned when the key set cannot be fetched or decoded
	ErrKeyFetch = errors.New("failed to fetch signing keys")
)

// KeyResolverConfig holds configuration for KeyResolver
type KeyResolverConfig struct {
	JWKSURL    string
	MaxEntries int
	MaxAge     time.Duration
	HTTPClient *http.Client
}

// KeyResolver resolves RSA public keys by key id, fetching the provider's
// key set on a miss. Resolved keys are kept in a bounded LRU with an
// absolute age limit. Concurrent misses for the same kid may each fetch.
type KeyResolver struct {
	jwksURL    string
	httpClient *http.Client
	keys       *expirable.LRU[string, *rsa.PublicKey]
}

// NewKeyResolver creates a new KeyResolver
func NewKeyResolver(cfg KeyResolverConfig) *KeyResolver {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 16
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 10 * time.Hour
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &KeyResolver{
		jwksURL:    cfg.JWKSURL,
		httpClient: cfg.HTTPClient,
		keys:       expirable.NewLRU[string, *rsa.PublicKey](cfg.MaxEntries, nil, cfg.MaxAge),
	}
}

// Resolve returns the public key for kid. A fetched set that no longer
// carries kid means the provider rotated its keys, so every cached key is
// dropped before KeyNotFound is reported.
func (r *KeyResolver) Resolve(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok := r.keys.Get(kid); ok {
		return key, nil
	}

	set, err := r.fetch(ctx)
	if err != nil {
		return nil, err
	}

	matches := set.Key(kid)
	if len(matches) == 0 {
		r.Invalidate()
		return nil, fmt.Errorf("%w: kid %s", ErrKeyNotFound, kid)
	}

	key, ok := matches[0].Key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: kid %s: unsupported key type %T", ErrKeyFetch, kid, matches[0].Key)
	}
	r.keys.Add(kid, key)
	return key, nil
}

// Invalidate drops every cached key
func (r *KeyResolver) Invalidate() {
	r.keys.Purge()
}

// Len returns the number of cached keys
func (r *KeyResolver) Len() int {
	return r.keys.Len()
}

func (r *KeyResolver) fetch(ctx context.Context) (*jose.JSONWebKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrKeyFetch, resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrKeyFetch, err)
	}

	return &set, nil
}
