package models

import (
	"time"

	"github.com/google/uuid"
)

// Progress is a student's per-course progress record.
type Progress struct {
	ID               uuid.UUID `json:"id"`
	StudentID        uuid.UUID `json:"student_id"`
	CourseID         uuid.UUID `json:"course_id"`
	TotalSessions    int       `json:"total_sessions"`
	AttendedSessions int       `json:"attended_sessions"`
	MinutesAttended  int       `json:"minutes_attended"`
	AvgParticipation int       `json:"avg_participation"`
	UpdatedAt        time.Time `json:"updated_at"`
}
