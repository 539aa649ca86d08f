package models

import "time"

// CompletionConfigDocumentID is the id of the single global completion configuration document
const CompletionConfigDocumentID = "completion-config"

// CompletionConfigDocument is the stored chat-completion configuration.
// Absent fields are nil so callers can fall back to defaults.
type CompletionConfigDocument struct {
	SystemPrompt *string    `json:"systemPrompt,omitempty"`
	Temperature  *float64   `json:"temperature,omitempty"`
	MaxTokens    *int       `json:"maxTokens,omitempty"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
}
