package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents live-session lifecycle state.
type SessionStatus string

const (
	SessionScheduled   SessionStatus = "scheduled"
	SessionLive        SessionStatus = "live"
	SessionCompleted   SessionStatus = "completed"
	SessionCancelled   SessionStatus = "cancelled"
	SessionRescheduled SessionStatus = "rescheduled" // reserved; no transition produces it yet
)

// Session is one scheduled live meeting instance belonging to a course.
type Session struct {
	ID            uuid.UUID `json:"id"`
	CourseID      uuid.UUID `json:"course_id"`
	InstructorID  uuid.UUID `json:"instructor_id"`
	SessionNumber int       `json:"session_number"`

	Title       string `json:"title"`
	Description string `json:"description"`

	ScheduledDate time.Time `json:"scheduled_date"`
	TimeOfDay     string    `json:"time_of_day"` // "19:30"
	Duration      int       `json:"duration"`    // planned minutes
	Timezone      string    `json:"timezone"`

	Status SessionStatus `json:"status"`

	// Conferencing binding. ChannelName is generated once at creation and never
	// changes. Token fields are refreshed by start/join. Host identity is set on
	// first host join only.
	ChannelName    string     `json:"channel_name"`
	AppID          uint32     `json:"app_id"`
	Token          *string    `json:"token,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	HostUID        *int32     `json:"host_uid,omitempty"`
	HostName       *string    `json:"host_name,omitempty"`

	Materials   []string `json:"materials,omitempty"`
	ChatEnabled bool     `json:"chat_enabled"`
	Notes       string   `json:"notes,omitempty"`

	Summary   string   `json:"summary,omitempty"`
	KeyTopics []string `json:"key_topics,omitempty"`
	Homework  string   `json:"homework,omitempty"`

	Recording SessionRecording `json:"recording"`

	// Timing facts, set only by the state machine.
	ActualStart    *time.Time `json:"actual_start,omitempty"`
	ActualEnd      *time.Time `json:"actual_end,omitempty"`
	ActualDuration *int       `json:"actual_duration,omitempty"` // whole minutes, completed only

	ReminderSent bool      `json:"reminder_sent"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SessionRecording is the optional recording metadata attached to a session.
// The URL is user-supplied, never generated by the platform.
type SessionRecording struct {
	URL          string `json:"url,omitempty"`
	S3Key        string `json:"s3_key,omitempty"` // set when the URL points into our recordings bucket
	Duration     int    `json:"duration,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Visible      bool   `json:"visible"`
	Downloadable bool   `json:"downloadable"`
}

// SessionAttendee is one student's attendance record within a session.
// At most one row exists per (session, student); re-joins update it.
type SessionAttendee struct {
	SessionID          uuid.UUID  `json:"session_id"`
	StudentID          uuid.UUID  `json:"student_id"`
	JoinedAt           time.Time  `json:"joined_at"`
	LeftAt             *time.Time `json:"left_at,omitempty"`
	MinutesAttended    int        `json:"minutes_attended"`
	ParticipationScore int        `json:"participation_score"` // 0-100
}

// DisplayStatus is the human-readable status label for listings.
func (s *Session) DisplayStatus(now time.Time) string {
	switch s.Status {
	case SessionCompleted:
		return "Completed"
	case SessionCancelled:
		return "Cancelled"
	case SessionLive:
		return "Live Now"
	}
	if s.ScheduledDate.Before(now) {
		return "Missed"
	}
	return "Upcoming"
}
