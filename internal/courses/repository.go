package courses

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vedalearn/backend/internal/errs"
	"github.com/vedalearn/backend/internal/models"
	"github.com/vedalearn/backend/internal/notifications"
)

func isNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }

// Repository handles course and direct-enrollment persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a course repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns a course by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	const q = `SELECT id, title, description, instructor_id, price_cents, currency, is_active, created_at, updated_at
		FROM courses WHERE id = $1`
	var c models.Course
	err := r.pool.QueryRow(ctx, q, id).Scan(&c.ID, &c.Title, &c.Description, &c.InstructorID, &c.PriceCents, &c.Currency, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, mapNoRows(err, "course not found")
	}
	return &c, nil
}

// mapNoRows turns a pgx no-rows result into the caller-facing not-found
// error; other errors pass through untouched.
func mapNoRows(err error, what string) error {
	if isNoRows(err) {
		return errs.NotFound(what)
	}
	return err
}

// Enroll records a direct enrollment grant on the user's profile.
func (r *Repository) Enroll(ctx context.Context, userID, courseID uuid.UUID) error {
	const q = `INSERT INTO course_enrollments (user_id, course_id) VALUES ($1, $2)
		ON CONFLICT (user_id, course_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, q, userID, courseID)
	return err
}

// HasEnrollment reports whether the user's profile lists the course.
func (r *Repository) HasEnrollment(ctx context.Context, userID, courseID uuid.UUID) (bool, error) {
	const q = `SELECT 1 FROM course_enrollments WHERE user_id = $1 AND course_id = $2`
	var one int
	err := r.pool.QueryRow(ctx, q, userID, courseID).Scan(&one)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListEnrolledRecipients returns all users whose profile lists the course,
// with their email addresses (the session-event notification audience).
func (r *Repository) ListEnrolledRecipients(ctx context.Context, courseID uuid.UUID) ([]notifications.Recipient, error) {
	const q = `SELECT ce.user_id, u.email FROM course_enrollments ce
		JOIN users u ON u.id = ce.user_id
		WHERE ce.course_id = $1`
	rows, err := r.pool.Query(ctx, q, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notifications.Recipient
	for rows.Next() {
		var rec notifications.Recipient
		if err := rows.Scan(&rec.ID, &rec.Email); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
