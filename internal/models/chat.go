package models

import (
	"time"

	"github.com/google/uuid"
)

// Chat is a 1:1 conversation keyed by the unordered participant pair.
// UserA/UserB are stored in lexicographic order of their string form so the
// pair maps to exactly one row regardless of who initiates.
type Chat struct {
	ID        uuid.UUID `json:"id"`
	UserA     uuid.UUID `json:"user_a"`
	UserB     uuid.UUID `json:"user_b"`
	CreatedAt time.Time `json:"created_at"`
}

// Forum is the single group conversation of a course.
type Forum struct {
	ID        uuid.UUID `json:"id"`
	CourseID  uuid.UUID `json:"course_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one utterance in a chat or forum. Messages are append-only and
// persisted before any client observes them.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"` // chat or forum id
	SenderID       uuid.UUID `json:"sender_id"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}
