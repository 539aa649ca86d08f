package chat

import (
	"encoding/json"
	"fmt"

	"github.com/upb/bi-chat-gateway/models"
	"github.com/upb/bi-chat-gateway/services"
)

// StreamRequest is one chat turn to relay to the completion service
type StreamRequest struct {
	UserID      string
	Messages    []models.ChatMessage
	UserInput   string
	ContextData json.RawMessage
}

// UpstreamError is returned when the completion service fails before any
// response bytes were sent to the client
type UpstreamError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("completion service: status %d: %s: %v", e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("completion service: status %d: %s", e.StatusCode, e.Message)
}

// Unwrap exposes the transport cause and classifies the failure as a
// completion service error
func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{services.ErrCompletionError}
	}
	return []error{services.ErrCompletionError, e.Err}
}

type completionRequest struct {
	Model       string               `json:"model,omitempty"`
	Messages    []models.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens"`
	Stream      bool                 `json:"stream"`
	User        string               `json:"user,omitempty"`
}

type completionErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}
