package completion

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/upb/bi-chat-gateway/internal/observability"
	"github.com/upb/bi-chat-gateway/models"
	"github.com/upb/bi-chat-gateway/repositories"
	"go.uber.org/zap"
)

// DefaultTTL is how long a loaded configuration is served before re-reading the store
const DefaultTTL = 5 * time.Minute

// Config is the effective chat-completion configuration
type Config struct {
	SystemPrompt string  `json:"systemPrompt"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"maxTokens"`
}

// Source reports where the served configuration came from
type Source string

const (
	SourceCache   Source = "cache"
	SourceStore   Source = "store"
	SourceDefault Source = "default"
)

// DefaultConfig is used whenever the store has no document or cannot be read
func DefaultConfig() Config {
	return Config{
		SystemPrompt: "You are a helpful analytics assistant. Answer questions about the report the user is viewing " +
			"using the supplied report context. If the context does not contain the answer, say so.",
		Temperature: 0.7,
		MaxTokens:   800,
	}
}

// Cache serves the completion configuration with a short TTL and never fails
type Cache struct {
	repo    repositories.AppDocumentRepository
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.RWMutex
	current  Config
	loadedAt time.Time
	loaded   bool
}

// NewCache creates a new Cache. repo and metrics may be nil.
func NewCache(repo repositories.AppDocumentRepository, ttl time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		repo:    repo,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger.Named("completion_config"),
		now:     time.Now,
	}
}

// Get returns the current configuration, reloading it from the store when
// the cached value is older than the TTL or forceRefresh is set
func (c *Cache) Get(ctx context.Context, forceRefresh bool) Config {
	cfg, _ := c.GetWithSource(ctx, forceRefresh)
	return cfg
}

// GetWithSource is Get plus where the value came from
func (c *Cache) GetWithSource(ctx context.Context, forceRefresh bool) (Config, Source) {
	if !forceRefresh {
		c.mu.RLock()
		if c.loaded && c.now().Sub(c.loadedAt) < c.ttl {
			cfg := c.current
			c.mu.RUnlock()
			c.observe(SourceCache)
			return cfg, SourceCache
		}
		c.mu.RUnlock()
	}

	cfg, source := c.load(ctx)

	c.mu.Lock()
	c.current = cfg
	c.loadedAt = c.now()
	c.loaded = true
	c.mu.Unlock()

	c.observe(source)
	return cfg, source
}

func (c *Cache) load(ctx context.Context) (Config, Source) {
	if c.repo == nil {
		return DefaultConfig(), SourceDefault
	}

	doc, err := c.repo.GetCompletionConfig(ctx)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.logger.Debug("no completion config stored, using defaults")
			return DefaultConfig(), SourceDefault
		}
		c.logger.Warn("failed to load completion config, using defaults", zap.Error(err))
		if c.metrics != nil {
			c.metrics.CompletionConfig.WithLabelValues("error").Inc()
		}
		return DefaultConfig(), SourceDefault
	}

	return normalize(doc), SourceStore
}

// normalize fills fields the stored document leaves out with defaults
func normalize(doc *models.CompletionConfigDocument) Config {
	cfg := DefaultConfig()
	if doc.SystemPrompt != nil && *doc.SystemPrompt != "" {
		cfg.SystemPrompt = *doc.SystemPrompt
	}
	if doc.Temperature != nil {
		cfg.Temperature = *doc.Temperature
	}
	if doc.MaxTokens != nil && *doc.MaxTokens > 0 {
		cfg.MaxTokens = *doc.MaxTokens
	}
	return cfg
}

func (c *Cache) observe(source Source) {
	if c.metrics != nil {
		c.metrics.CompletionConfig.WithLabelValues(string(source)).Inc()
	}
}
