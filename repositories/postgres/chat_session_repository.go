package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/upb/bi-chat-gateway/models"
	"github.com/upb/bi-chat-gateway/repositories"
	"go.uber.org/zap"
)

// ChatSessionRepository implements the repositories.ChatSessionRepository interface
type ChatSessionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewChatSessionRepository creates a new chat session repository
func NewChatSessionRepository(db *DB, logger *zap.Logger) repositories.ChatSessionRepository {
	return &ChatSessionRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a chat session
func (r *ChatSessionRepository) Create(ctx context.Context, session *models.ChatSession) error {
	query := `
		INSERT INTO chat_sessions (id, session_id, user_id, messages, save_reason, session_ended_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	messages, err := json.Marshal(session.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		session.ID,
		session.SessionID,
		session.UserID,
		messages,
		nullString(session.SaveReason),
		session.SessionEndedAt,
		session.CreatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("chat session %s: %w", session.SessionID, repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to create chat session: %w", err)
	}

	r.logger.Debug("chat session saved",
		zap.String("session_id", session.SessionID),
		zap.Int("messages", len(session.Messages)))
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
