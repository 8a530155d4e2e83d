package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vedalearn/backend/internal/errs"
	"github.com/vedalearn/backend/internal/models"
)

// Repository is the pgx-backed SessionStore.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const sessionColumns = `id, course_id, instructor_id, session_number, title, description,
	scheduled_date, time_of_day, duration, timezone, status, channel_name, app_id,
	token, token_expires_at, host_uid, host_name, materials, chat_enabled, notes,
	summary, key_topics, homework,
	recording_url, recording_s3_key, recording_duration, recording_thumbnail_url,
	recording_visible, recording_downloadable,
	actual_start, actual_end, actual_duration, reminder_sent, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	err := row.Scan(
		&s.ID, &s.CourseID, &s.InstructorID, &s.SessionNumber, &s.Title, &s.Description,
		&s.ScheduledDate, &s.TimeOfDay, &s.Duration, &s.Timezone, &s.Status, &s.ChannelName, &s.AppID,
		&s.Token, &s.TokenExpiresAt, &s.HostUID, &s.HostName, &s.Materials, &s.ChatEnabled, &s.Notes,
		&s.Summary, &s.KeyTopics, &s.Homework,
		&s.Recording.URL, &s.Recording.S3Key, &s.Recording.Duration, &s.Recording.ThumbnailURL,
		&s.Recording.Visible, &s.Recording.Downloadable,
		&s.ActualStart, &s.ActualEnd, &s.ActualDuration, &s.ReminderSent, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts the session and its enrollment snapshot in one transaction.
func (r *Repository) Create(ctx context.Context, s *models.Session, enrolled []uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const q = `
		INSERT INTO sessions (course_id, instructor_id, session_number, title, description,
			scheduled_date, time_of_day, duration, timezone, status, channel_name, app_id,
			materials, chat_enabled, notes, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,TRUE)
		RETURNING id, created_at, updated_at`
	materials := s.Materials
	if materials == nil {
		materials = []string{}
	}
	err = tx.QueryRow(ctx, q,
		s.CourseID, s.InstructorID, s.SessionNumber, s.Title, s.Description,
		s.ScheduledDate, s.TimeOfDay, s.Duration, s.Timezone, s.Status, s.ChannelName, s.AppID,
		materials, s.ChatEnabled, s.Notes,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	if len(enrolled) > 0 {
		rows := make([][]any, 0, len(enrolled))
		for _, studentID := range enrolled {
			rows = append(rows, []any{s.ID, studentID})
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"session_enrollments"},
			[]string{"session_id", "student_id"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("copy enrollments: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	s, err := scanSession(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFound("session not found")
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (r *Repository) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]models.Session, error) {
	q := `SELECT ` + sessionColumns + `
		FROM sessions WHERE course_id = $1 AND is_active ORDER BY session_number`
	rows, err := r.pool.Query(ctx, q, courseID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

// ListForStudent returns active sessions of every course the student holds a
// paid order or an enrollment record for.
func (r *Repository) ListForStudent(ctx context.Context, studentID uuid.UUID) ([]models.Session, error) {
	q := `SELECT ` + sessionColumns + `
		FROM sessions s
		WHERE s.is_active AND s.course_id IN (
			SELECT course_id FROM course_enrollments WHERE user_id = $1
			UNION
			SELECT oi.item_id FROM order_items oi
			JOIN orders o ON o.id = oi.order_id
			WHERE o.user_id = $1 AND oi.item_type = 'course'
			  AND o.status IN ('paid','accepted','completed')
		)
		ORDER BY s.scheduled_date`
	rows, err := r.pool.Query(ctx, q, studentID)
	if err != nil {
		return nil, fmt.Errorf("list student sessions: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

func collectSessions(rows pgx.Rows) ([]models.Session, error) {
	var out []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *Repository) NextSessionNumber(ctx context.Context, courseID uuid.UUID) (int, error) {
	const q = `SELECT COALESCE(MAX(session_number), 0) + 1 FROM sessions WHERE course_id = $1`
	var n int
	if err := r.pool.QueryRow(ctx, q, courseID).Scan(&n); err != nil {
		return 0, fmt.Errorf("next session number: %w", err)
	}
	return n, nil
}

// UpdateFields applies the editable subset. Lifecycle columns (status, channel,
// token, host identity, timing facts) are deliberately not reachable here.
func (r *Repository) UpdateFields(ctx context.Context, id uuid.UUID, f UpdateFields) error {
	const q = `
		UPDATE sessions SET
			title          = COALESCE($2, title),
			description    = COALESCE($3, description),
			scheduled_date = COALESCE($4, scheduled_date),
			time_of_day    = COALESCE($5, time_of_day),
			duration       = COALESCE($6, duration),
			timezone       = COALESCE($7, timezone),
			materials      = COALESCE($8, materials),
			chat_enabled   = COALESCE($9, chat_enabled),
			notes          = COALESCE($10, notes),
			updated_at     = NOW()
		WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id,
		f.Title, f.Description, f.ScheduledDate, f.TimeOfDay, f.Duration,
		f.Timezone, f.Materials, f.ChatEnabled, f.Notes)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// MarkLive flips scheduled → live. The WHERE clause carries the state guard,
// so of two concurrent starts exactly one sees a row updated.
func (r *Repository) MarkLive(ctx context.Context, id uuid.UUID, token *string, tokenExpiresAt *time.Time, appID uint32) (bool, error) {
	const q = `
		UPDATE sessions SET
			status = 'live', actual_start = NOW(),
			token = $2, token_expires_at = $3, app_id = $4,
			updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled' AND is_active`
	tag, err := r.pool.Exec(ctx, q, id, token, tokenExpiresAt, appID)
	if err != nil {
		return false, fmt.Errorf("mark live: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkCompleted flips live → completed and computes the actual duration in
// whole minutes from actual_start.
func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID, summary string, keyTopics []string, homework string) (bool, error) {
	if keyTopics == nil {
		keyTopics = []string{}
	}
	const q = `
		UPDATE sessions SET
			status = 'completed', actual_end = NOW(),
			actual_duration = FLOOR(EXTRACT(EPOCH FROM (NOW() - actual_start)) / 60),
			summary = $2, key_topics = $3, homework = $4,
			updated_at = NOW()
		WHERE id = $1 AND status = 'live' AND is_active`
	tag, err := r.pool.Exec(ctx, q, id, summary, keyTopics, homework)
	if err != nil {
		return false, fmt.Errorf("mark completed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SoftDelete flags the session inactive. Live sessions are refused at the SQL
// level as well as in the service.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `
		UPDATE sessions SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1 AND status <> 'live' AND is_active`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, fmt.Errorf("soft delete: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkAttendance records a student's first join. Re-joins are swallowed by the
// primary key conflict, keeping the original joined_at.
func (r *Repository) MarkAttendance(ctx context.Context, sessionID, studentID uuid.UUID, joinedAt time.Time) error {
	const q = `
		INSERT INTO session_attendees (session_id, student_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, student_id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, q, sessionID, studentID, joinedAt); err != nil {
		return fmt.Errorf("mark attendance: %w", err)
	}
	return nil
}

// UpdateAttendanceLeave closes an attendance entry. Returns false when the
// student never joined.
func (r *Repository) UpdateAttendanceLeave(ctx context.Context, sessionID, studentID uuid.UUID, leftAt time.Time, minutes, score int) (bool, error) {
	const q = `
		UPDATE session_attendees SET left_at = $3, minutes_attended = $4, participation_score = $5
		WHERE session_id = $1 AND student_id = $2`
	tag, err := r.pool.Exec(ctx, q, sessionID, studentID, leftAt, minutes, score)
	if err != nil {
		return false, fmt.Errorf("update attendance: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetHostIdentity persists the host's derived uid and display name, first join
// wins.
func (r *Repository) SetHostIdentity(ctx context.Context, sessionID uuid.UUID, uid int32, name string) error {
	const q = `
		UPDATE sessions SET host_uid = $2, host_name = $3, updated_at = NOW()
		WHERE id = $1 AND host_uid IS NULL`
	if _, err := r.pool.Exec(ctx, q, sessionID, uid, name); err != nil {
		return fmt.Errorf("set host identity: %w", err)
	}
	return nil
}

func (r *Repository) SetRecording(ctx context.Context, id uuid.UUID, rec models.SessionRecording) error {
	const q = `
		UPDATE sessions SET
			recording_url = $2, recording_s3_key = $3, recording_duration = $4,
			recording_thumbnail_url = $5, recording_visible = $6, recording_downloadable = $7,
			updated_at = NOW()
		WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id,
		rec.URL, rec.S3Key, rec.Duration, rec.ThumbnailURL, rec.Visible, rec.Downloadable)
	if err != nil {
		return fmt.Errorf("set recording: %w", err)
	}
	return nil
}

func (r *Repository) ClearRecording(ctx context.Context, id uuid.UUID) error {
	const q = `
		UPDATE sessions SET
			recording_url = '', recording_s3_key = '', recording_duration = 0,
			recording_thumbnail_url = '', recording_visible = FALSE, recording_downloadable = FALSE,
			updated_at = NOW()
		WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("clear recording: %w", err)
	}
	return nil
}

func (r *Repository) ListAttendees(ctx context.Context, sessionID uuid.UUID) ([]models.SessionAttendee, error) {
	const q = `
		SELECT session_id, student_id, joined_at, left_at, minutes_attended, participation_score
		FROM session_attendees WHERE session_id = $1 ORDER BY joined_at`
	rows, err := r.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	defer rows.Close()

	var out []models.SessionAttendee
	for rows.Next() {
		var a models.SessionAttendee
		if err := rows.Scan(&a.SessionID, &a.StudentID, &a.JoinedAt, &a.LeftAt, &a.MinutesAttended, &a.ParticipationScore); err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repository) ListEnrolledSnapshot(ctx context.Context, sessionID uuid.UUID) ([]uuid.UUID, error) {
	const q = `SELECT student_id FROM session_enrollments WHERE session_id = $1`
	rows, err := r.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list snapshot: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// HasSnapshotEnrollment reports whether any active session of the course holds
// the user in its creation-time enrollment snapshot.
func (r *Repository) HasSnapshotEnrollment(ctx context.Context, userID, courseID uuid.UUID) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM session_enrollments se
			JOIN sessions s ON s.id = se.session_id
			WHERE se.student_id = $1 AND s.course_id = $2 AND s.is_active
		)`
	var exists bool
	if err := r.pool.QueryRow(ctx, q, userID, courseID).Scan(&exists); err != nil {
		return false, fmt.Errorf("snapshot enrollment: %w", err)
	}
	return exists, nil
}

func (r *Repository) CountActiveByCourse(ctx context.Context, courseID uuid.UUID) (int, error) {
	const q = `SELECT COUNT(*) FROM sessions WHERE course_id = $1 AND is_active`
	var n int
	if err := r.pool.QueryRow(ctx, q, courseID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// ListDueForReminder returns scheduled sessions starting before windowEnd that
// have not been reminded yet.
func (r *Repository) ListDueForReminder(ctx context.Context, windowEnd time.Time) ([]models.Session, error) {
	q := `SELECT ` + sessionColumns + `
		FROM sessions
		WHERE is_active AND status = 'scheduled' AND NOT reminder_sent
		  AND scheduled_date <= $1 AND scheduled_date > NOW()
		ORDER BY scheduled_date`
	rows, err := r.pool.Query(ctx, q, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

func (r *Repository) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE sessions SET reminder_sent = TRUE, updated_at = NOW() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	return nil
}
