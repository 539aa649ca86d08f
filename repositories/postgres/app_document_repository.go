package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/upb/bi-chat-gateway/models"
	"github.com/upb/bi-chat-gateway/repositories"
	"go.uber.org/zap"
)

// AppDocumentRepository implements the repositories.AppDocumentRepository interface
type AppDocumentRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAppDocumentRepository creates a new application document repository
func NewAppDocumentRepository(db *DB, logger *zap.Logger) repositories.AppDocumentRepository {
	return &AppDocumentRepository{
		db:     db,
		logger: logger,
	}
}

// GetCompletionConfig retrieves the completion configuration document
func (r *AppDocumentRepository) GetCompletionConfig(ctx context.Context) (*models.CompletionConfigDocument, error) {
	query := `
		SELECT document, updated_at
		FROM app_documents
		WHERE id = $1
	`

	var raw []byte
	var updatedAt time.Time

	err := r.db.QueryRowContext(ctx, query, models.CompletionConfigDocumentID).Scan(&raw, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get completion config: %w", err)
	}

	doc := &models.CompletionConfigDocument{}
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal completion config: %w", err)
	}
	doc.UpdatedAt = &updatedAt

	return doc, nil
}
