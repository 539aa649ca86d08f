package oidc

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyResolver_CachesResolvedKeys(t *testing.T) {
	_, publicKey := generateTestKeyPair(t)
	var hits int32
	server := createMockJWKSServer(t, publicKey, "kid-1", &hits)
	defer server.Close()

	resolver := NewKeyResolver(KeyResolverConfig{JWKSURL: server.URL})

	key, err := resolver.Resolve(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, publicKey.N, key.N)
	assert.Equal(t, publicKey.E, key.E)

	_, err = resolver.Resolve(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, 1, resolver.Len())
}

func TestKeyResolver_UnknownKid(t *testing.T) {
	_, publicKey := generateTestKeyPair(t)
	var hits int32
	server := createMockJWKSServer(t, publicKey, "kid-1", &hits)
	defer server.Close()

	resolver := NewKeyResolver(KeyResolverConfig{JWKSURL: server.URL})

	_, err := resolver.Resolve(context.Background(), "kid-2")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	// misses are not cached
	_, err = resolver.Resolve(context.Background(), "kid-2")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, 0, resolver.Len())
}

func TestKeyResolver_FetchErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("{not json"))
			},
		},
		{
			name: "invalid modulus",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"keys":[{"kid":"kid-1","kty":"RSA","n":"!!","e":"AQAB"}]}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			resolver := NewKeyResolver(KeyResolverConfig{JWKSURL: server.URL})
			_, err := resolver.Resolve(context.Background(), "kid-1")
			assert.ErrorIs(t, err, ErrKeyFetch)
		})
	}
}

func TestKeyResolver_EntriesExpire(t *testing.T) {
	_, publicKey := generateTestKeyPair(t)
	var hits int32
	server := createMockJWKSServer(t, publicKey, "kid-1", &hits)
	defer server.Close()

	resolver := NewKeyResolver(KeyResolverConfig{JWKSURL: server.URL, MaxAge: 50 * time.Millisecond})

	_, err := resolver.Resolve(context.Background(), "kid-1")
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	_, err = resolver.Resolve(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestKeyResolver_RotationDropsCachedKeys(t *testing.T) {
	_, publicKey := generateTestKeyPair(t)
	var hits int32
	server := createMockJWKSServer(t, publicKey, "kid-1", &hits)
	defer server.Close()

	resolver := NewKeyResolver(KeyResolverConfig{JWKSURL: server.URL})
	_, err := resolver.Resolve(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.Len())

	_, err = resolver.Resolve(context.Background(), "kid-rotated")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Equal(t, 0, resolver.Len())

	// the next lookup goes back to the provider
	_, err = resolver.Resolve(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestKeyResolver_RejectsNonRSAKey(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(jose.JSONWebKeySet{
			Keys: []jose.JSONWebKey{{Key: &ecKey.PublicKey, KeyID: "kid-1", Algorithm: "ES256", Use: "sig"}},
		})
	}))
	defer server.Close()

	resolver := NewKeyResolver(KeyResolverConfig{JWKSURL: server.URL})
	_, err = resolver.Resolve(context.Background(), "kid-1")
	assert.ErrorIs(t, err, ErrKeyFetch)
	assert.Equal(t, 0, resolver.Len())
}
