package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NotificationPriority orders delivery prominence.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
)

// NotificationCategory groups notifications for client filtering.
type NotificationCategory string

const (
	CategorySession NotificationCategory = "session"
	CategoryOrder   NotificationCategory = "order"
	CategorySystem  NotificationCategory = "system"
)

// Notification is one fact delivered to one recipient. Broadcast is modeled as
// N independent rows, never one fan-out row.
type Notification struct {
	ID        uuid.UUID            `json:"id"`
	UserID    uuid.UUID            `json:"user_id"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	Link      string               `json:"link,omitempty"` // deep-link path
	Category  NotificationCategory `json:"category"`
	Priority  NotificationPriority `json:"priority"`
	IsRead    bool                 `json:"is_read"`
	Metadata  json.RawMessage      `json:"metadata,omitempty"` // event type + correlated ids
	CreatedAt time.Time            `json:"created_at"`
}
