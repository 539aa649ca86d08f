package completion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/upb/bi-chat-gateway/internal/observability"
	"github.com/upb/bi-chat-gateway/models"
	"github.com/upb/bi-chat-gateway/repositories"
	"go.uber.org/zap"
)

// MockAppDocumentRepository is a mock implementation of repositories.AppDocumentRepository
type MockAppDocumentRepository struct {
	mock.Mock
}

func (m *MockAppDocumentRepository) GetCompletionConfig(ctx context.Context) (*models.CompletionConfigDocument, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CompletionConfigDocument), args.Error(1)
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func TestCache_LoadsAndCaches(t *testing.T) {
	repo := new(MockAppDocumentRepository)
	repo.On("GetCompletionConfig", mock.Anything).Return(&models.CompletionConfigDocument{
		SystemPrompt: strPtr("Be concise."),
		Temperature:  floatPtr(0.1),
		MaxTokens:    intPtr(300),
	}, nil).Once()

	cache := NewCache(repo, time.Minute, nil, zap.NewNop())

	cfg, source := cache.GetWithSource(context.Background(), false)
	assert.Equal(t, SourceStore, source)
	assert.Equal(t, Config{SystemPrompt: "Be concise.", Temperature: 0.1, MaxTokens: 300}, cfg)

	cfg, source = cache.GetWithSource(context.Background(), false)
	assert.Equal(t, SourceCache, source)
	assert.Equal(t, "Be concise.", cfg.SystemPrompt)

	repo.AssertNumberOfCalls(t, "GetCompletionConfig", 1)
}

func TestCache_NormalizesMissingFields(t *testing.T) {
	repo := new(MockAppDocumentRepository)
	repo.On("GetCompletionConfig", mock.Anything).Return(&models.CompletionConfigDocument{
		Temperature: floatPtr(0),
	}, nil)

	cfg := NewCache(repo, time.Minute, nil, zap.NewNop()).Get(context.Background(), false)

	defaults := DefaultConfig()
	assert.Equal(t, defaults.SystemPrompt, cfg.SystemPrompt)
	assert.Equal(t, 0.0, cfg.Temperature)
	assert.Equal(t, defaults.MaxTokens, cfg.MaxTokens)
}

func TestCache_NotFoundUsesDefaultsSilently(t *testing.T) {
	repo := new(MockAppDocumentRepository)
	repo.On("GetCompletionConfig", mock.Anything).Return(nil, repositories.ErrNotFound)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	cfg, source := NewCache(repo, time.Minute, metrics, zap.NewNop()).GetWithSource(context.Background(), false)

	assert.Equal(t, SourceDefault, source)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.CompletionConfig.WithLabelValues("error")))
}

func TestCache_StoreErrorUsesDefaults(t *testing.T) {
	repo := new(MockAppDocumentRepository)
	repo.On("GetCompletionConfig", mock.Anything).Return(nil, errors.New("connection refused"))
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	cfg := NewCache(repo, time.Minute, metrics, zap.NewNop()).Get(context.Background(), false)

	assert.Equal(t, DefaultConfig(), cfg)
	assert.NotEmpty(t, cfg.SystemPrompt)
	assert.NotZero(t, cfg.Temperature)
	assert.NotZero(t, cfg.MaxTokens)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CompletionConfig.WithLabelValues("error")))
}

func TestCache_DefaultIsCachedForTTL(t *testing.T) {
	repo := new(MockAppDocumentRepository)
	repo.On("GetCompletionConfig", mock.Anything).Return(nil, errors.New("timeout"))
	cache := NewCache(repo, time.Minute, nil, zap.NewNop())

	cache.Get(context.Background(), false)
	cache.Get(context.Background(), false)

	repo.AssertNumberOfCalls(t, "GetCompletionConfig", 1)
}

func TestCache_ExpiryAndForceRefresh(t *testing.T) {
	repo := new(MockAppDocumentRepository)
	repo.On("GetCompletionConfig", mock.Anything).Return(&models.CompletionConfigDocument{MaxTokens: intPtr(100)}, nil)

	cache := NewCache(repo, time.Minute, nil, zap.NewNop())
	start := time.Now()
	cache.now = func() time.Time { return start }

	cache.Get(context.Background(), false)
	cache.Get(context.Background(), true)
	repo.AssertNumberOfCalls(t, "GetCompletionConfig", 2)

	cache.now = func() time.Time { return start.Add(2 * time.Minute) }
	cache.Get(context.Background(), false)
	repo.AssertNumberOfCalls(t, "GetCompletionConfig", 3)
}

func TestCache_NilRepository(t *testing.T) {
	cfg, source := NewCache(nil, 0, nil, zap.NewNop()).GetWithSource(context.Background(), false)
	assert.Equal(t, SourceDefault, source)
	assert.Equal(t, DefaultConfig(), cfg)
}
