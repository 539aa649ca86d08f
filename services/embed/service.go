package embed

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/upb/bi-chat-gateway/internal/observability"
	"github.com/upb/bi-chat-gateway/services"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshSkew is how long before expiry a credential counts as stale
const DefaultRefreshSkew = 5 * time.Minute

// Config holds configuration for Service
type Config struct {
	RefreshSkew    time.Duration
	RefreshTimeout time.Duration
}

// Service caches embed credentials per report and refreshes them in the
// background shortly before they expire
type Service struct {
	provider  Provider
	scheduler *Scheduler
	metrics   *observability.Metrics
	logger    *zap.Logger

	skew           time.Duration
	refreshTimeout time.Duration
	now            func() time.Time

	mu      sync.RWMutex
	entries map[string]*Credential
	flight  singleflight.Group
}

// NewService creates a new embed credential service. metrics may be nil.
func NewService(cfg Config, provider Provider, scheduler *Scheduler, metrics *observability.Metrics, logger *zap.Logger) *Service {
	if cfg.RefreshSkew <= 0 {
		cfg.RefreshSkew = DefaultRefreshSkew
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 30 * time.Second
	}

	return &Service{
		provider:       provider,
		scheduler:      scheduler,
		metrics:        metrics,
		logger:         logger.Named("embed"),
		skew:           cfg.RefreshSkew,
		refreshTimeout: cfg.RefreshTimeout,
		now:            time.Now,
		entries:        make(map[string]*Credential),
	}
}

// GetCredential returns a credential for resourceID, serving a fresh cached
// value unless forceRefresh is set. When issuance fails, a cached credential
// that has not yet expired is served instead; with nothing usable cached the
// error is returned.
func (s *Service) GetCredential(ctx context.Context, resourceID string, forceRefresh bool) (*Credential, CacheStatus, error) {
	if resourceID == "" {
		return nil, "", services.NewDomainError(services.ErrorTypeValidation, "reportId is required", nil)
	}

	cached := s.lookup(resourceID)
	if !forceRefresh && cached != nil && !cached.Stale(s.now(), s.skew) {
		s.observeRequest(StatusHit)
		return cached, StatusHit, nil
	}

	cred, err := s.issue(ctx, resourceID)
	if err != nil {
		if cached != nil && !cached.Expired(s.now()) {
			s.logger.Warn("embed token issuance failed, serving cached credential",
				zap.String("resource_id", resourceID),
				zap.Time("expires_at", cached.ExpiresAt),
				zap.Error(err))
			s.observeRequest(StatusStaleFallback)
			return cached, StatusStaleFallback, nil
		}

		s.logger.Error("embed token issuance failed",
			zap.String("resource_id", resourceID),
			zap.Error(err))
		return nil, "", services.NewDomainError(services.ErrEmbedProviderError.Type, services.ErrEmbedProviderError.Message, err).
			WithDetail("reportId", resourceID)
	}

	status := StatusMiss
	if cached != nil {
		status = StatusRefreshed
	}
	s.observeRequest(status)
	return cred, status, nil
}

// Entries lists cached credentials ordered by report id
func (s *Service) Entries() []EntryInfo {
	now := s.now()

	s.mu.RLock()
	infos := make([]EntryInfo, 0, len(s.entries))
	for id, cred := range s.entries {
		infos = append(infos, EntryInfo{
			ResourceID: id,
			ExpiresAt:  cred.ExpiresAt,
			Stale:      cred.Stale(now, s.skew),
		})
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ResourceID < infos[j].ResourceID })
	return infos
}

// PendingRefreshes returns the number of scheduled background refreshes
func (s *Service) PendingRefreshes() int {
	return s.scheduler.Pending()
}

func (s *Service) lookup(resourceID string) *Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[resourceID]
}

// issue collapses concurrent issuance for the same resource into one
// upstream sequence and stores the result.
func (s *Service) issue(ctx context.Context, resourceID string) (*Credential, error) {
	v, err, _ := s.flight.Do(resourceID, func() (interface{}, error) {
		// shared by every waiting caller, so one caller's cancellation must not abort it
		issueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refreshTimeout)
		defer cancel()

		cred, err := s.provider.Issue(issueCtx, resourceID)
		if err != nil {
			s.observeIssuance("error")
			return nil, err
		}
		if cred.ResourceID == "" {
			cred.ResourceID = resourceID
		}
		s.observeIssuance("success")
		s.store(cred)
		return cred, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Credential), nil
}

// store replaces the entry and re-derives the refresh timer from the new expiry
func (s *Service) store(cred *Credential) {
	s.mu.Lock()
	s.entries[cred.ResourceID] = cred
	s.mu.Unlock()

	delay := cred.ExpiresAt.Sub(s.now()) - s.skew
	if delay <= 0 {
		s.scheduler.Cancel(cred.ResourceID)
		return
	}

	resourceID := cred.ResourceID
	s.scheduler.Schedule(resourceID, delay, func() {
		s.backgroundRefresh(resourceID)
	})

	s.logger.Debug("embed token stored",
		zap.String("resource_id", resourceID),
		zap.Time("expires_at", cred.ExpiresAt),
		zap.Duration("refresh_in", delay))
}

// backgroundRefresh is not retried on failure; the next request issues on demand
func (s *Service) backgroundRefresh(resourceID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.refreshTimeout)
	defer cancel()

	if _, err := s.issue(ctx, resourceID); err != nil {
		s.logger.Error("background embed token refresh failed",
			zap.String("resource_id", resourceID),
			zap.Error(err))
		s.observeRefresh("error")
		return
	}

	s.logger.Info("embed token refreshed in background", zap.String("resource_id", resourceID))
	s.observeRefresh("success")
}

func (s *Service) observeRequest(status CacheStatus) {
	if s.metrics != nil {
		s.metrics.EmbedRequests.WithLabelValues(string(status)).Inc()
	}
}

func (s *Service) observeIssuance(outcome string) {
	if s.metrics != nil {
		s.metrics.EmbedIssuances.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) observeRefresh(outcome string) {
	if s.metrics != nil {
		s.metrics.EmbedRefreshes.WithLabelValues(outcome).Inc()
	}
}
