package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Dashboard is a user's saved report layout
type Dashboard struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	UserID      string          `json:"userId" db:"user_id"`
	Pages       json.RawMessage `json:"pages" db:"pages"` // JSONB array, opaque to the gateway
	LastUpdated time.Time       `json:"lastUpdated" db:"last_updated"`
}

// TableName returns the table name for the Dashboard model
func (Dashboard) TableName() string {
	return "dashboards"
}

// NewDashboard creates a new Dashboard instance
func NewDashboard(userID string, pages json.RawMessage) *Dashboard {
	return &Dashboard{
		ID:          uuid.New(),
		UserID:      userID,
		Pages:       pages,
		LastUpdated: time.Now().UTC(),
	}
}
