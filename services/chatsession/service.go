package chatsession

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/upb/bi-chat-gateway/models"
	"github.com/upb/bi-chat-gateway/repositories"
	"github.com/upb/bi-chat-gateway/services"
	"github.com/upb/bi-chat-gateway/utils"
	"go.uber.org/zap"
)

// SaveRequest carries a finished conversation transcript
type SaveRequest struct {
	SessionID      string               `json:"sessionId" validate:"required,max=128"`
	Messages       []models.ChatMessage `json:"messages" validate:"dive"`
	SaveReason     string               `json:"saveReason,omitempty" validate:"max=64"`
	SessionEndedAt *time.Time           `json:"sessionEndedAt,omitempty"`
}

// Service persists chat session transcripts
type Service struct {
	repo   repositories.ChatSessionRepository
	logger *zap.Logger
}

// NewService creates a new chat session Service
func NewService(repo repositories.ChatSessionRepository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.Named("chatsession"),
	}
}

// Save stores the transcript once per session id
func (s *Service) Save(ctx context.Context, userID string, req SaveRequest) (*models.ChatSession, error) {
	if userID == "" {
		return nil, services.ErrUnauthorized
	}

	req.SessionID = strings.TrimSpace(req.SessionID)
	if err := utils.ValidateStruct(&req); err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, services.ErrInvalidSessionInput.Message, err)
	}

	session := models.NewChatSession(userID, req.SessionID, req.Messages)
	session.SaveReason = req.SaveReason
	session.SessionEndedAt = req.SessionEndedAt
	if session.Messages == nil {
		session.Messages = []models.ChatMessage{}
	}

	if err := s.repo.Create(ctx, session); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, services.NewDomainError(services.ErrorTypeConflict, services.ErrDuplicateSession.Message, err).
				WithDetail("sessionId", req.SessionID)
		}
		s.logger.Error("failed to save chat session",
			zap.String("user_id", userID),
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		return nil, services.StoreUnavailable("save chat session", err)
	}

	s.logger.Info("chat session saved",
		zap.String("user_id", userID),
		zap.String("session_id", req.SessionID),
		zap.Int("messages", len(session.Messages)))
	return session, nil
}
