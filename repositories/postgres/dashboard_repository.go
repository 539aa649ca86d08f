package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/bi-chat-gateway/models"
	"github.com/upb/bi-chat-gateway/repositories"
	"go.uber.org/zap"
)

// DashboardRepository implements the repositories.DashboardRepository interface
type DashboardRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewDashboardRepository creates a new dashboard repository
func NewDashboardRepository(db *DB, logger *zap.Logger) repositories.DashboardRepository {
	return &DashboardRepository{
		db:     db,
		logger: logger,
	}
}

// GetByUserID retrieves a user's dashboard
func (r *DashboardRepository) GetByUserID(ctx context.Context, userID string) (*models.Dashboard, error) {
	query := `
		SELECT id, user_id, pages, last_updated
		FROM dashboards
		WHERE user_id = $1
	`

	dashboard := &models.Dashboard{}
	var pages []byte

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&dashboard.ID,
		&dashboard.UserID,
		&pages,
		&dashboard.LastUpdated,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get dashboard: %w", err)
	}

	dashboard.Pages = pages
	return dashboard, nil
}

// Upsert creates or replaces a user's dashboard
func (r *DashboardRepository) Upsert(ctx context.Context, dashboard *models.Dashboard) error {
	query := `
		INSERT INTO dashboards (user_id, id, pages, last_updated)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET pages = EXCLUDED.pages, last_updated = EXCLUDED.last_updated
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		dashboard.UserID,
		dashboard.ID,
		[]byte(dashboard.Pages),
		dashboard.LastUpdated,
	).Scan(&dashboard.ID)

	if err != nil {
		return fmt.Errorf("failed to upsert dashboard: %w", err)
	}

	r.logger.Debug("dashboard saved", zap.String("user_id", dashboard.UserID))
	return nil
}
