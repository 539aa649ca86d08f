package models

import (
	"time"

	"github.com/google/uuid"
)

// Chat message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a conversation
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

// ChatSession is a saved conversation transcript
type ChatSession struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	SessionID      string        `json:"sessionId" db:"session_id"`
	UserID         string        `json:"userId" db:"user_id"`
	Messages       []ChatMessage `json:"messages" db:"messages"` // stored as JSONB
	SaveReason     string        `json:"saveReason,omitempty" db:"save_reason"`
	SessionEndedAt *time.Time    `json:"sessionEndedAt,omitempty" db:"session_ended_at"`
	CreatedAt      time.Time     `json:"createdAt" db:"created_at"`
}

// TableName returns the table name for the ChatSession model
func (ChatSession) TableName() string {
	return "chat_sessions"
}

// NewChatSession creates a new ChatSession instance
func NewChatSession(userID, sessionID string, messages []ChatMessage) *ChatSession {
	return &ChatSession{
		ID:        uuid.New(),
		SessionID: sessionID,
		UserID:    userID,
		Messages:  messages,
		CreatedAt: time.Now().UTC(),
	}
}
