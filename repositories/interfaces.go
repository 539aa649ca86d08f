package repositories

import (
	"context"
	"errors"

	"github.com/upb/bi-chat-gateway/models"
)

var (
	// ErrNotFound is returned when the requested document does not exist
	ErrNotFound = errors.New("document not found")

	// ErrDuplicate is returned when a write violates a uniqueness constraint
	ErrDuplicate = errors.New("duplicate document")
)

// DashboardRepository handles dashboard layout documents
type DashboardRepository interface {
	// GetByUserID retrieves the dashboard for a user, or ErrNotFound
	GetByUserID(ctx context.Context, userID string) (*models.Dashboard, error)

	// Upsert creates or replaces the dashboard for dashboard.UserID
	Upsert(ctx context.Context, dashboard *models.Dashboard) error
}

// ChatSessionRepository handles chat session transcripts
type ChatSessionRepository interface {
	// Create stores a session; ErrDuplicate when the sessionId was already saved
	Create(ctx context.Context, session *models.ChatSession) error
}

// AppDocumentRepository handles global application documents
type AppDocumentRepository interface {
	// GetCompletionConfig retrieves the completion configuration, or ErrNotFound
	GetCompletionConfig(ctx context.Context) (*models.CompletionConfigDocument, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Dashboards   DashboardRepository
	ChatSessions ChatSessionRepository
	AppDocuments AppDocumentRepository
}
