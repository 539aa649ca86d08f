package embed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/bi-chat-gateway/internal/observability"
	"github.com/upb/bi-chat-gateway/services"
	"go.uber.org/zap"
)

// fakeProvider issues sequential tokens with a fixed lifetime
type fakeProvider struct {
	mu       sync.Mutex
	calls    map[string]int
	lifetime time.Duration
	delay    time.Duration
	fail     map[string]error
}

func newFakeProvider(lifetime time.Duration) *fakeProvider {
	return &fakeProvider{
		calls:    make(map[string]int),
		fail:     make(map[string]error),
		lifetime: lifetime,
	}
}

func (p *fakeProvider) Issue(ctx context.Context, resourceID string) (*Credential, error) {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls[resourceID]++
	if err := p.fail[resourceID]; err != nil {
		return nil, err
	}

	return &Credential{
		ResourceID: resourceID,
		Token:      fmt.Sprintf("token-%s-%d", resourceID, p.calls[resourceID]),
		EmbedURL:   "https://app.powerbi.com/reportEmbed?reportId=" + resourceID,
		ExpiresAt:  time.Now().Add(p.lifetime),
	}, nil
}

func (p *fakeProvider) setFailure(resourceID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail[resourceID] = err
}

func (p *fakeProvider) callCount(resourceID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[resourceID]
}

func newTestService(t *testing.T, provider Provider, skew time.Duration) (*Service, *observability.Metrics) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	scheduler := NewScheduler(metrics.EmbedScheduled, zap.NewNop())
	t.Cleanup(scheduler.Stop)
	return NewService(Config{RefreshSkew: skew, RefreshTimeout: time.Second}, provider, scheduler, metrics, zap.NewNop()), metrics
}

func TestGetCredential_CachesWithinFreshnessWindow(t *testing.T) {
	provider := newFakeProvider(time.Hour)
	svc, metrics := newTestService(t, provider, 5*time.Minute)
	ctx := context.Background()

	first, status, err := svc.GetCredential(ctx, "R1", false)
	require.NoError(t, err)
	assert.Equal(t, StatusMiss, status)
	assert.Contains(t, first.EmbedURL, "R1")

	second, status, err := svc.GetCredential(ctx, "R1", false)
	require.NoError(t, err)
	assert.Equal(t, StatusHit, status)
	assert.Equal(t, first.Token, second.Token)

	assert.Equal(t, 1, provider.callCount("R1"))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EmbedRequests.WithLabelValues("hit")))
	assert.Equal(t, 1, svc.PendingRefreshes())
}

func TestGetCredential_ForceRefresh(t *testing.T) {
	provider := newFakeProvider(time.Hour)
	svc, _ := newTestService(t, provider, 5*time.Minute)
	ctx := context.Background()

	first, _, err := svc.GetCredential(ctx, "R1", true)
	require.NoError(t, err)

	second, status, err := svc.GetCredential(ctx, "R1", true)
	require.NoError(t, err)
	assert.Equal(t, StatusRefreshed, status)
	assert.NotEqual(t, first.Token, second.Token)
	assert.Equal(t, 2, provider.callCount("R1"))

	// repeated force refreshes never accumulate timers
	assert.Equal(t, 1, svc.PendingRefreshes())
}

func TestGetCredential_StaleEntryReissues(t *testing.T) {
	// lifetime shorter than skew: every stored credential is already stale
	provider := newFakeProvider(time.Minute)
	svc, _ := newTestService(t, provider, 5*time.Minute)
	ctx := context.Background()

	_, status, err := svc.GetCredential(ctx, "R1", false)
	require.NoError(t, err)
	assert.Equal(t, StatusMiss, status)
	assert.Equal(t, 0, svc.PendingRefreshes())

	_, status, err = svc.GetCredential(ctx, "R1", false)
	require.NoError(t, err)
	assert.Equal(t, StatusRefreshed, status)
	assert.Equal(t, 2, provider.callCount("R1"))
}

func TestGetCredential_FailureFallsBackToUnexpiredEntry(t *testing.T) {
	provider := newFakeProvider(time.Minute)
	svc, _ := newTestService(t, provider, 5*time.Minute)
	ctx := context.Background()

	cached, _, err := svc.GetCredential(ctx, "R1", false)
	require.NoError(t, err)

	provider.setFailure("R1", errors.New("provider down"))

	got, status, err := svc.GetCredential(ctx, "R1", false)
	require.NoError(t, err)
	assert.Equal(t, StatusStaleFallback, status)
	assert.Equal(t, cached.Token, got.Token)
}

func TestGetCredential_FailureWithoutCachePropagates(t *testing.T) {
	provider := newFakeProvider(time.Hour)
	provider.setFailure("R1", &ProviderError{Step: "get report", StatusCode: 404, Message: "not found"})
	svc, _ := newTestService(t, provider, 5*time.Minute)

	cred, _, err := svc.GetCredential(context.Background(), "R1", false)
	require.Error(t, err)
	assert.Nil(t, cred)
	assert.True(t, services.IsExternalError(err))
	assert.ErrorIs(t, err, services.ErrEmbedProviderError)
	assert.Equal(t, "R1", services.GetErrorDetails(err)["reportId"])
	assert.Empty(t, services.ErrEmbedProviderError.Details)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 404, perr.StatusCode)
}

func TestGetCredential_ExpiredEntryIsNeverServed(t *testing.T) {
	provider := newFakeProvider(time.Hour)
	svc, _ := newTestService(t, provider, 5*time.Minute)
	ctx := context.Background()

	_, _, err := svc.GetCredential(ctx, "R1", false)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	provider.setFailure("R1", errors.New("provider down"))

	_, _, err = svc.GetCredential(ctx, "R1", false)
	assert.Error(t, err)
}

func TestGetCredential_ResourcesAreIndependent(t *testing.T) {
	provider := newFakeProvider(time.Hour)
	svc, _ := newTestService(t, provider, 5*time.Minute)
	ctx := context.Background()

	r1, _, err := svc.GetCredential(ctx, "R1", false)
	require.NoError(t, err)

	provider.setFailure("R2", errors.New("forbidden"))
	_, _, err = svc.GetCredential(ctx, "R2", false)
	require.Error(t, err)

	again, status, err := svc.GetCredential(ctx, "R1", false)
	require.NoError(t, err)
	assert.Equal(t, StatusHit, status)
	assert.Equal(t, r1.Token, again.Token)

	entries := svc.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "R1", entries[0].ResourceID)
	assert.False(t, entries[0].Stale)
}

func TestGetCredential_ConcurrentMissIssuesOnce(t *testing.T) {
	provider := newFakeProvider(time.Hour)
	provider.delay = 50 * time.Millisecond
	svc, _ := newTestService(t, provider, 5*time.Minute)

	var wg sync.WaitGroup
	var failures int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := svc.GetCredential(context.Background(), "R1", false); err != nil {
				atomic.AddInt32(&failures, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(0), failures)
	assert.Equal(t, 1, provider.callCount("R1"))
}

func TestGetCredential_RequiresResourceID(t *testing.T) {
	svc, _ := newTestService(t, newFakeProvider(time.Hour), 5*time.Minute)

	_, _, err := svc.GetCredential(context.Background(), "", false)
	assert.True(t, services.IsValidationError(err))
}

func TestBackgroundRefresh(t *testing.T) {
	// expiry 5m+100ms with a 5m skew fires the refresh after ~100ms
	provider := newFakeProvider(5*time.Minute + 100*time.Millisecond)
	svc, metrics := newTestService(t, provider, 5*time.Minute)

	first, _, err := svc.GetCredential(context.Background(), "R1", false)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return provider.callCount("R1") >= 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.EmbedRefreshes.WithLabelValues("success")) >= 1
	}, time.Second, 10*time.Millisecond)

	latest := svc.lookup("R1")
	require.NotNil(t, latest)
	assert.NotEqual(t, first.Token, latest.Token)
}

func TestBackgroundRefreshFailureIsNotRetried(t *testing.T) {
	provider := newFakeProvider(5*time.Minute + 50*time.Millisecond)
	svc, metrics := newTestService(t, provider, 5*time.Minute)

	_, _, err := svc.GetCredential(context.Background(), "R1", false)
	require.NoError(t, err)
	provider.setFailure("R1", errors.New("provider down"))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.EmbedRefreshes.WithLabelValues("error")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 2, provider.callCount("R1"))
	assert.Equal(t, 0, svc.PendingRefreshes())
}

func TestCredential_Staleness(t *testing.T) {
	now := time.Now()
	cred := &Credential{ExpiresAt: now.Add(10 * time.Minute)}

	assert.False(t, cred.Stale(now, 5*time.Minute))
	assert.True(t, cred.Stale(now.Add(5*time.Minute), 5*time.Minute))
	assert.False(t, cred.Expired(now.Add(9*time.Minute)))
	assert.True(t, cred.Expired(now.Add(10*time.Minute)))
}
