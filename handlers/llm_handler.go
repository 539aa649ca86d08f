package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/upb/bi-chat-gateway/middleware"
	"github.com/upb/bi-chat-gateway/models"
	"github.com/upb/bi-chat-gateway/services"
	"github.com/upb/bi-chat-gateway/services/chat"
	"github.com/upb/bi-chat-gateway/utils"
	"go.uber.org/zap"
)

const maxLLMRequestBytes = 1 << 20

// LLMRequest is the body of POST /llm-response
type LLMRequest struct {
	UserInput   string          `json:"userInput"`
	Messages    json.RawMessage `json:"messages,omitempty"`
	ContextData json.RawMessage `json:"contextData,omitempty"`
}

// LLMErrorResponse is written when the stream could not be started
type LLMErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ChatStreamer relays a chat turn as a server-sent event stream
type ChatStreamer interface {
	Stream(ctx context.Context, w http.ResponseWriter, req chat.StreamRequest) error
}

// LLMHandler handles streamed chat completions
type LLMHandler struct {
	streamer ChatStreamer
	logger   *zap.Logger
}

// NewLLMHandler creates a new LLMHandler
func NewLLMHandler(streamer ChatStreamer, logger *zap.Logger) *LLMHandler {
	return &LLMHandler{
		streamer: streamer,
		logger:   logger,
	}
}

// HandleLLMResponse handles POST /llm-response
func (h *LLMHandler) HandleLLMResponse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	principal := middleware.GetPrincipalFromContext(ctx)
	if principal == nil {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	var body LLMRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLLMRequestBytes)).Decode(&body); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}

	messages, err := decodeMessages(body.Messages)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, services.ErrInvalidMessages.Message, "")
		return
	}

	err = h.streamer.Stream(ctx, w, chat.StreamRequest{
		UserID:      principal.ID,
		Messages:    messages,
		UserInput:   body.UserInput,
		ContextData: body.ContextData,
	})
	if err == nil {
		return
	}

	var upstreamErr *chat.UpstreamError
	switch {
	case services.IsValidationError(err):
		h.writeError(w, http.StatusBadRequest, publicMessage(err), "")
	case errors.As(err, &upstreamErr):
		h.logger.Error("completion service rejected request",
			zap.String("request_id", requestID),
			zap.String("user_id", principal.ID),
			zap.Int("status", upstreamErr.StatusCode),
			zap.Error(err))
		h.writeError(w, upstreamErr.StatusCode, "Completion service error", upstreamErr.Message)
	default:
		h.logger.Error("failed to start completion stream",
			zap.String("request_id", requestID),
			zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Failed to get LLM response", publicMessage(err))
	}
}

func (h *LLMHandler) writeError(w http.ResponseWriter, status int, message, details string) {
	if err := utils.WriteJSON(w, status, LLMErrorResponse{Error: message, Details: details}); err != nil {
		h.logger.Error("failed to write error response", zap.Error(err))
	}
}

// decodeMessages accepts an absent or null list; anything else must be an array of messages
func decodeMessages(raw json.RawMessage) ([]models.ChatMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] != '[' {
		return nil, services.ErrInvalidMessages
	}

	var messages []models.ChatMessage
	if err := json.Unmarshal(trimmed, &messages); err != nil {
		return nil, services.ErrInvalidMessages
	}
	return messages, nil
}
