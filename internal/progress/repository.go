package progress

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vedalearn/backend/internal/models"
)

// Repository handles per-course student progress records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a progress repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns the progress record for (student, course), or nil if absent.
func (r *Repository) Get(ctx context.Context, studentID, courseID uuid.UUID) (*models.Progress, error) {
	const q = `SELECT id, student_id, course_id, total_sessions, attended_sessions, minutes_attended, avg_participation, updated_at
		FROM progress WHERE student_id = $1 AND course_id = $2`
	var p models.Progress
	err := r.pool.QueryRow(ctx, q, studentID, courseID).
		Scan(&p.ID, &p.StudentID, &p.CourseID, &p.TotalSessions, &p.AttendedSessions, &p.MinutesAttended, &p.AvgParticipation, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// IncrementTotalSessions bumps the total-sessions counter, creating the record
// when absent.
func (r *Repository) IncrementTotalSessions(ctx context.Context, studentID, courseID uuid.UUID) error {
	const q = `INSERT INTO progress (student_id, course_id, total_sessions)
		VALUES ($1, $2, 1)
		ON CONFLICT (student_id, course_id)
		DO UPDATE SET total_sessions = progress.total_sessions + 1, updated_at = NOW()`
	_, err := r.pool.Exec(ctx, q, studentID, courseID)
	return err
}

// SetTotalSessions overwrites the total-sessions counter with the live count,
// creating the record when absent.
func (r *Repository) SetTotalSessions(ctx context.Context, studentID, courseID uuid.UUID, total int) error {
	const q = `INSERT INTO progress (student_id, course_id, total_sessions)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id, course_id)
		DO UPDATE SET total_sessions = $3, updated_at = NOW()`
	_, err := r.pool.Exec(ctx, q, studentID, courseID, total)
	return err
}

// ApplyAttendance folds one session's attendance into the progress record:
// bumps the attended counter, accumulates minutes and re-averages the
// participation score.
func (r *Repository) ApplyAttendance(ctx context.Context, studentID, courseID uuid.UUID, attended bool, minutes, participationScore int) error {
	if !attended {
		return nil
	}
	const q = `INSERT INTO progress (student_id, course_id, attended_sessions, minutes_attended, avg_participation)
		VALUES ($1, $2, 1, $3, $4)
		ON CONFLICT (student_id, course_id)
		DO UPDATE SET
			attended_sessions = progress.attended_sessions + 1,
			minutes_attended  = progress.minutes_attended + $3,
			avg_participation = (progress.avg_participation * progress.attended_sessions + $4) / (progress.attended_sessions + 1),
			updated_at        = NOW()`
	_, err := r.pool.Exec(ctx, q, studentID, courseID, minutes, participationScore)
	return err
}
