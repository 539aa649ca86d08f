package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/upb/bi-chat-gateway/middleware"
	"github.com/upb/bi-chat-gateway/models"
	"github.com/upb/bi-chat-gateway/services/chatsession"
	"github.com/upb/bi-chat-gateway/utils"
	"go.uber.org/zap"
)

// ChatSessionService defines the chat session persistence operations
type ChatSessionService interface {
	Save(ctx context.Context, userID string, req chatsession.SaveRequest) (*models.ChatSession, error)
}

// SaveSessionResponse is returned on a successful save
type SaveSessionResponse struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
}

// SessionHandler handles chat session transcripts
type SessionHandler struct {
	service ChatSessionService
	logger  *zap.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(service ChatSessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		service: service,
		logger:  logger,
	}
}

// HandleSave handles POST /api/session/save
func (h *SessionHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	principal := middleware.GetPrincipalFromContext(ctx)
	if principal == nil {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	var req chatsession.SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	session, err := h.service.Save(ctx, principal.ID, req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteCreated(w, SaveSessionResponse{
		ID:        session.ID.String(),
		SessionID: session.SessionID,
	}); err != nil {
		h.logger.Error("failed to write response", zap.String("request_id", requestID), zap.Error(err))
	}
}
