package auth

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultStateTTL is how long an issued login state stays valid
const DefaultStateTTL = 10 * time.Minute

// StateStore holds single-use anti-forgery states for the login redirect
type StateStore struct {
	mu      sync.Mutex
	entries *cache.Cache
}

// NewStateStore creates a StateStore whose entries expire after ttl
func NewStateStore(ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateStore{entries: cache.New(ttl, ttl)}
}

// Issue generates and stores a new random state
func (s *StateStore) Issue() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	state := base64.RawURLEncoding.EncodeToString(b)

	s.entries.SetDefault(state, true)
	return state, nil
}

// Consume reports whether state was issued and not yet used or expired,
// removing it in the same step so it can succeed only once.
func (s *StateStore) Consume(state string) bool {
	if state == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.entries.Get(state); !found {
		return false
	}
	s.entries.Delete(state)
	return true
}

// Len returns the number of outstanding states, including expired ones
// not yet swept
func (s *StateStore) Len() int {
	return s.entries.ItemCount()
}
