package models

import (
	"time"

	"github.com/google/uuid"
)

// Course is a purchasable course with live sessions.
type Course struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	InstructorID uuid.UUID `json:"instructor_id"`
	PriceCents   int       `json:"price_cents"`
	Currency     string    `json:"currency"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CourseEnrollment is a direct enrollment grant on a user's profile
// (legacy path; paid orders are the primary enrollment source).
type CourseEnrollment struct {
	UserID     uuid.UUID `json:"user_id"`
	CourseID   uuid.UUID `json:"course_id"`
	EnrolledAt time.Time `json:"enrolled_at"`
}
