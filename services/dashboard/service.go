package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/upb/bi-chat-gateway/models"
	"github.com/upb/bi-chat-gateway/repositories"
	"github.com/upb/bi-chat-gateway/services"
	"go.uber.org/zap"
)

// Service reads and saves per-user dashboard layouts
type Service struct {
	repo   repositories.DashboardRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new dashboard Service
func NewService(repo repositories.DashboardRepository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.Named("dashboard"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the saved layout for userID
func (s *Service) Get(ctx context.Context, userID string) (*models.Dashboard, error) {
	if userID == "" {
		return nil, services.ErrUnauthorized
	}

	dashboard, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrDashboardNotFound
		}
		s.logger.Error("failed to load dashboard", zap.String("user_id", userID), zap.Error(err))
		return nil, services.StoreUnavailable("load dashboard", err)
	}

	return dashboard, nil
}

// Save replaces the layout for userID. visualOrder must be a JSON array;
// nothing is written otherwise.
func (s *Service) Save(ctx context.Context, userID string, visualOrder json.RawMessage) (*models.Dashboard, error) {
	if userID == "" {
		return nil, services.ErrUnauthorized
	}
	if !isJSONArray(visualOrder) {
		return nil, services.ErrInvalidVisualOrder
	}

	dashboard := models.NewDashboard(userID, visualOrder)
	dashboard.LastUpdated = s.now()

	if err := s.repo.Upsert(ctx, dashboard); err != nil {
		s.logger.Error("failed to save dashboard", zap.String("user_id", userID), zap.Error(err))
		return nil, services.StoreUnavailable("save dashboard", err)
	}

	s.logger.Debug("dashboard saved", zap.String("user_id", userID), zap.String("id", dashboard.ID.String()))
	return dashboard, nil
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return false
	}
	var items []json.RawMessage
	return json.Unmarshal(trimmed, &items) == nil
}
