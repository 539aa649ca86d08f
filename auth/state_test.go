package auth

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateStore_IssueAndConsume(t *testing.T) {
	store := NewStateStore(time.Minute)

	state, err := store.Issue()
	require.NoError(t, err)
	assert.Len(t, state, 32)
	assert.Equal(t, 1, store.Len())

	assert.True(t, store.Consume(state))
	assert.False(t, store.Consume(state), "state must be single-use")
	assert.False(t, store.Consume("never-issued"))
	assert.False(t, store.Consume(""))
}

func TestStateStore_UniqueStates(t *testing.T) {
	store := NewStateStore(time.Minute)
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		state, err := store.Issue()
		require.NoError(t, err)
		assert.False(t, seen[state])
		seen[state] = true
	}
}

func TestStateStore_Expiry(t *testing.T) {
	store := NewStateStore(20 * time.Millisecond)

	state, err := store.Issue()
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.False(t, store.Consume(state))
}

func TestStateStore_ConcurrentConsumeSucceedsOnce(t *testing.T) {
	store := NewStateStore(time.Minute)
	state, err := store.Issue()
	require.NoError(t, err)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.Consume(state) {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}
