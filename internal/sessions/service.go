// Package sessions owns the live-session lifecycle: scheduling, start/end
// transitions, attendance, conferencing identities and recording metadata.
package sessions

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vedalearn/backend/internal/errs"
	"github.com/vedalearn/backend/internal/models"
	"github.com/vedalearn/backend/internal/notifications"
	"github.com/vedalearn/backend/internal/rtc"
)

// recordingURLPattern accepts http(s)/ftp URLs with a host and path.
var recordingURLPattern = regexp.MustCompile(`^(https?|ftp)://[^\s/$.?#].[^\s]*$`)

// SessionStore persists sessions, their enrollment snapshot and attendance.
type SessionStore interface {
	Create(ctx context.Context, s *models.Session, enrolled []uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListByCourse(ctx context.Context, courseID uuid.UUID) ([]models.Session, error)
	ListForStudent(ctx context.Context, studentID uuid.UUID) ([]models.Session, error)
	NextSessionNumber(ctx context.Context, courseID uuid.UUID) (int, error)
	UpdateFields(ctx context.Context, id uuid.UUID, f UpdateFields) error
	MarkLive(ctx context.Context, id uuid.UUID, token *string, tokenExpiresAt *time.Time, appID uint32) (bool, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, summary string, keyTopics []string, homework string) (bool, error)
	SoftDelete(ctx context.Context, id uuid.UUID) (bool, error)
	MarkAttendance(ctx context.Context, sessionID, studentID uuid.UUID, joinedAt time.Time) error
	UpdateAttendanceLeave(ctx context.Context, sessionID, studentID uuid.UUID, leftAt time.Time, minutes, score int) (bool, error)
	SetHostIdentity(ctx context.Context, sessionID uuid.UUID, uid int32, name string) error
	SetRecording(ctx context.Context, id uuid.UUID, rec models.SessionRecording) error
	ClearRecording(ctx context.Context, id uuid.UUID) error
	ListAttendees(ctx context.Context, sessionID uuid.UUID) ([]models.SessionAttendee, error)
	ListEnrolledSnapshot(ctx context.Context, sessionID uuid.UUID) ([]uuid.UUID, error)
	CountActiveByCourse(ctx context.Context, courseID uuid.UUID) (int, error)
	ListDueForReminder(ctx context.Context, windowEnd time.Time) ([]models.Session, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID) error
}

// CourseStore looks up courses.
type CourseStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error)
}

// UserStore looks up users.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// PaidEnrollmentLister snapshots users with a paid order for a course.
type PaidEnrollmentLister interface {
	ListPaidCourseUserIDs(ctx context.Context, courseID uuid.UUID) ([]uuid.UUID, error)
}

// ProgressStore applies session effects to per-course progress records.
type ProgressStore interface {
	IncrementTotalSessions(ctx context.Context, studentID, courseID uuid.UUID) error
	SetTotalSessions(ctx context.Context, studentID, courseID uuid.UUID, total int) error
	ApplyAttendance(ctx context.Context, studentID, courseID uuid.UUID, attended bool, minutes, participationScore int) error
}

// EnrollmentChecker answers whether a user may access a course's sessions.
type EnrollmentChecker interface {
	IsEnrolled(ctx context.Context, userID, courseID uuid.UUID) bool
}

// TokenIssuer signs conferencing tokens. A (nil, nil) return means "proceed
// without a token" (sandbox mode).
type TokenIssuer interface {
	AppID() uint32
	Issue(channelName string, uid int32, role rtc.Role, ttlSeconds int64) (*rtc.Token, error)
}

// Notifier fans session events out to enrolled students. Failures are logged
// here and never fail the triggering transition.
type Notifier interface {
	NotifySession(ctx context.Context, ev notifications.SessionEvent) (int, error)
}

// Config holds lifecycle tunables.
type Config struct {
	ChannelPrefix     string
	TokenTTLSeconds   int64
	JoinWindowMinutes int
}

// Service is the session state machine.
type Service struct {
	store    SessionStore
	courses  CourseStore
	users    UserStore
	paid     PaidEnrollmentLister
	progress ProgressStore
	enroll   EnrollmentChecker
	issuer   TokenIssuer
	notifier Notifier
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates the session lifecycle service.
func NewService(store SessionStore, courses CourseStore, users UserStore, paid PaidEnrollmentLister,
	progress ProgressStore, enroll EnrollmentChecker, issuer TokenIssuer, notifier Notifier,
	cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.JoinWindowMinutes <= 0 {
		cfg.JoinWindowMinutes = 15
	}
	return &Service{
		store: store, courses: courses, users: users, paid: paid,
		progress: progress, enroll: enroll, issuer: issuer, notifier: notifier,
		cfg: cfg, logger: logger, now: time.Now,
	}
}

// GenerateChannelName builds the immutable conferencing channel name from the
// configured prefix, the course id's trailing 6 hex characters, the zero-padded
// session number and a timestamp suffix. The timestamp component makes
// collisions negligible.
func GenerateChannelName(prefix string, courseID uuid.UUID, sessionNumber int, now time.Time) string {
	compact := strings.ReplaceAll(courseID.String(), "-", "")
	tail := compact[len(compact)-6:]
	return fmt.Sprintf("%s_%s_s%02d_%d", prefix, tail, sessionNumber, now.Unix())
}

// AttendancePercent is attended ÷ enrolled × 100. Zero enrollment is defined
// as 0, never NaN.
func AttendancePercent(attended, enrolled int) float64 {
	if enrolled <= 0 {
		return 0
	}
	return float64(attended) / float64(enrolled) * 100
}

// CreateParams are the admin-supplied fields for a new session.
type CreateParams struct {
	CourseID      uuid.UUID
	InstructorID  uuid.UUID
	Title         string
	Description   string
	ScheduledDate time.Time
	TimeOfDay     string
	Duration      int
	Timezone      string
	Materials     []string
	ChatEnabled   bool
	Notes         string
}

// Create schedules a new session: validates course and instructor, snapshots
// currently paid-enrolled students, generates the channel name and fans out
// "session created" notifications.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.Session, error) {
	course, err := s.courses.GetByID(ctx, p.CourseID)
	if err != nil {
		return nil, errs.NotFound("course not found")
	}
	if _, err := s.users.GetByID(ctx, p.InstructorID); err != nil {
		return nil, errs.NotFound("instructor not found")
	}

	number, err := s.store.NextSessionNumber(ctx, p.CourseID)
	if err != nil {
		return nil, fmt.Errorf("next session number: %w", err)
	}

	enrolled, err := s.paid.ListPaidCourseUserIDs(ctx, p.CourseID)
	if err != nil {
		return nil, fmt.Errorf("snapshot enrollments: %w", err)
	}

	now := s.now()
	sess := &models.Session{
		CourseID:      p.CourseID,
		InstructorID:  p.InstructorID,
		SessionNumber: number,
		Title:         p.Title,
		Description:   p.Description,
		ScheduledDate: p.ScheduledDate,
		TimeOfDay:     p.TimeOfDay,
		Duration:      p.Duration,
		Timezone:      p.Timezone,
		Status:        models.SessionScheduled,
		ChannelName:   GenerateChannelName(s.cfg.ChannelPrefix, p.CourseID, number, now),
		AppID:         s.issuer.AppID(),
		Materials:     p.Materials,
		ChatEnabled:   p.ChatEnabled,
		Notes:         p.Notes,
		IsActive:      true,
	}
	if err := s.store.Create(ctx, sess, enrolled); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	for _, studentID := range enrolled {
		if err := s.progress.IncrementTotalSessions(ctx, studentID, p.CourseID); err != nil {
			s.logger.Warn("increment total sessions failed", zap.Error(err),
				zap.String("student_id", studentID.String()))
		}
	}

	s.notify(ctx, notifications.SessionEvent{
		Type:        notifications.SessionCreated,
		Session:     sess,
		CourseTitle: course.Title,
	})
	return sess, nil
}

// UpdateFields is the explicit allow-list of editable session fields. Nil
// pointers are left unchanged.
type UpdateFields struct {
	Title         *string
	Description   *string
	ScheduledDate *time.Time
	TimeOfDay     *string
	Duration      *int
	Timezone      *string
	Materials     *[]string
	ChatEnabled   *bool
	Notes         *string
}

// Update edits a scheduled session. Running sessions cannot be edited. A
// non-empty schedule-relevant diff triggers an "updated" fan-out, escalated
// when the date or time changed.
func (s *Service) Update(ctx context.Context, id uuid.UUID, f UpdateFields) (*models.Session, error) {
	sess, err := s.getActive(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status == models.SessionLive {
		return nil, errs.InvalidTransition("cannot update live session")
	}

	changed := false
	scheduleChanged := false
	if f.Title != nil && *f.Title != sess.Title {
		changed = true
	}
	if f.Description != nil && *f.Description != sess.Description {
		changed = true
	}
	if f.ScheduledDate != nil && !f.ScheduledDate.Equal(sess.ScheduledDate) {
		changed = true
		scheduleChanged = true
	}
	if f.TimeOfDay != nil && *f.TimeOfDay != sess.TimeOfDay {
		changed = true
		scheduleChanged = true
	}
	if f.Duration != nil && *f.Duration != sess.Duration {
		changed = true
	}

	if err := s.store.UpdateFields(ctx, id, f); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	if changed {
		course, cerr := s.courses.GetByID(ctx, sess.CourseID)
		title := ""
		if cerr == nil {
			title = course.Title
		}
		s.notify(ctx, notifications.SessionEvent{
			Type:            notifications.SessionUpdated,
			Session:         sess,
			CourseTitle:     title,
			ScheduleChanged: scheduleChanged,
		})
	}
	return s.store.GetByID(ctx, id)
}

// Start transitions scheduled → live. A channel-wide host token (uid 0) is
// requested; signing failures degrade to a nil token and never block the
// start. The transition is a conditional update, so a concurrent start loses
// cleanly.
func (s *Service) Start(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	sess, err := s.getActive(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.SessionScheduled {
		return nil, errs.InvalidTransition("session is not in scheduled state")
	}

	appID := sess.AppID
	if appID == 0 {
		// legacy sessions predate the persisted app id
		appID = s.issuer.AppID()
	}

	var tokenVal *string
	var tokenExp *time.Time
	tok, err := s.issuer.Issue(sess.ChannelName, 0, rtc.RoleHost, s.cfg.TokenTTLSeconds)
	if err != nil {
		s.logger.Warn("token generation failed, starting without token", zap.Error(err),
			zap.String("session_id", id.String()))
	} else if tok != nil {
		tokenVal = &tok.Value
		tokenExp = &tok.ExpiresAt
	}

	ok, err := s.store.MarkLive(ctx, id, tokenVal, tokenExp, appID)
	if err != nil {
		return nil, fmt.Errorf("mark live: %w", err)
	}
	if !ok {
		return nil, errs.InvalidTransition("session is not in scheduled state")
	}

	course, cerr := s.courses.GetByID(ctx, sess.CourseID)
	title := ""
	if cerr == nil {
		title = course.Title
	}
	s.notify(ctx, notifications.SessionEvent{
		Type:        notifications.SessionStarted,
		Session:     sess,
		CourseTitle: title,
	})
	return s.store.GetByID(ctx, id)
}

// EndParams are the optional wrap-up fields recorded when ending a session.
type EndParams struct {
	Summary   string
	KeyTopics []string
	Homework  string
}

// End transitions live → completed, records the actual end time and computes
// the actual duration in whole minutes. Every attended student's progress
// record receives the attendance update.
func (s *Service) End(ctx context.Context, id uuid.UUID, p EndParams) (*models.Session, error) {
	sess, err := s.getActive(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.SessionLive {
		return nil, errs.InvalidTransition("session is not currently live")
	}

	ok, err := s.store.MarkCompleted(ctx, id, p.Summary, p.KeyTopics, p.Homework)
	if err != nil {
		return nil, fmt.Errorf("mark completed: %w", err)
	}
	if !ok {
		return nil, errs.InvalidTransition("session is not currently live")
	}

	attendees, err := s.store.ListAttendees(ctx, id)
	if err != nil {
		s.logger.Warn("list attendees failed", zap.Error(err), zap.String("session_id", id.String()))
		attendees = nil
	}
	for _, a := range attendees {
		if err := s.progress.ApplyAttendance(ctx, a.StudentID, sess.CourseID, true, a.MinutesAttended, a.ParticipationScore); err != nil {
			s.logger.Warn("apply attendance failed", zap.Error(err),
				zap.String("student_id", a.StudentID.String()))
		}
	}
	return s.store.GetByID(ctx, id)
}

// JoinResult is what a client needs to enter the conferencing channel.
type JoinResult struct {
	SessionID   uuid.UUID  `json:"session_id"`
	ChannelName string     `json:"channel_name"`
	AppID       uint32     `json:"app_id"`
	Token       *rtc.Token `json:"token"` // nil in sandbox mode
	UID         int32      `json:"uid"`
	HostUID     *int32     `json:"host_uid,omitempty"`
	HostName    *string    `json:"host_name,omitempty"`
}

// Join admits a user into a session's conferencing channel. Host-class roles
// bypass enrollment and the pre-start window. Students must be enrolled and
// the session must be live, or scheduled with start at most the join window
// away. Attendance marking is idempotent: re-joining never duplicates the
// entry. The host's derived identity and display name are persisted on first
// host join only.
func (s *Service) Join(ctx context.Context, sessionID uuid.UUID, user *models.User) (*JoinResult, error) {
	sess, err := s.getActive(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	isHost := user.Role.IsHostClass()
	if !isHost && !s.enroll.IsEnrolled(ctx, user.ID, sess.CourseID) {
		return nil, errs.Forbidden("you are not enrolled in this course")
	}

	now := s.now()
	switch sess.Status {
	case models.SessionLive:
		// always joinable
	case models.SessionScheduled:
		if !isHost {
			window := time.Duration(s.cfg.JoinWindowMinutes) * time.Minute
			if sess.ScheduledDate.Sub(now) > window {
				return nil, errs.InvalidTransition("session is not available for joining at this time")
			}
		}
	default:
		return nil, errs.InvalidTransition("session is not available for joining at this time")
	}

	if !isHost {
		if err := s.store.MarkAttendance(ctx, sessionID, user.ID, now); err != nil {
			return nil, fmt.Errorf("mark attendance: %w", err)
		}
		total, err := s.store.CountActiveByCourse(ctx, sess.CourseID)
		if err != nil {
			s.logger.Warn("count active sessions failed", zap.Error(err))
		} else if err := s.progress.SetTotalSessions(ctx, user.ID, sess.CourseID, total); err != nil {
			s.logger.Warn("set total sessions failed", zap.Error(err),
				zap.String("student_id", user.ID.String()))
		}
	}

	role := rtc.RoleParticipant
	if isHost {
		role = rtc.RoleHost
	}
	uid := rtc.DeriveUID(user.ID.String(), role)

	tok, err := s.issuer.Issue(sess.ChannelName, uid, role, s.cfg.TokenTTLSeconds)
	if err != nil {
		s.logger.Warn("join token generation failed, joining without token", zap.Error(err),
			zap.String("session_id", sessionID.String()))
		tok = nil
	}

	hostUID, hostName := sess.HostUID, sess.HostName
	if isHost && sess.HostUID == nil {
		if err := s.store.SetHostIdentity(ctx, sessionID, uid, user.FullName); err != nil {
			s.logger.Warn("persist host identity failed", zap.Error(err),
				zap.String("session_id", sessionID.String()))
		} else {
			hostUID, hostName = &uid, &user.FullName
		}
	}

	appID := sess.AppID
	if appID == 0 {
		appID = s.issuer.AppID()
	}
	return &JoinResult{
		SessionID:   sessionID,
		ChannelName: sess.ChannelName,
		AppID:       appID,
		Token:       tok,
		UID:         uid,
		HostUID:     hostUID,
		HostName:    hostName,
	}, nil
}

// LeaveParams carry the client-reported attendance facts at leave time.
type LeaveParams struct {
	MinutesAttended    int
	ParticipationScore int
}

// Leave closes the student's attendance entry if one exists (no-op otherwise)
// and applies the same data to the per-course progress record.
func (s *Service) Leave(ctx context.Context, sessionID, studentID uuid.UUID, p LeaveParams) error {
	if p.ParticipationScore < 0 || p.ParticipationScore > 100 {
		return errs.Validation("participation score must be between 0 and 100")
	}
	sess, err := s.getActive(ctx, sessionID)
	if err != nil {
		return err
	}

	updated, err := s.store.UpdateAttendanceLeave(ctx, sessionID, studentID, s.now(), p.MinutesAttended, p.ParticipationScore)
	if err != nil {
		return fmt.Errorf("update attendance: %w", err)
	}
	if !updated {
		// no attendance entry: leaving without joining is not an error
		return nil
	}

	if err := s.progress.ApplyAttendance(ctx, studentID, sess.CourseID, true, p.MinutesAttended, p.ParticipationScore); err != nil {
		s.logger.Warn("apply attendance on leave failed", zap.Error(err),
			zap.String("student_id", studentID.String()))
	}
	return nil
}

// RecordingParams are the user-supplied recording fields.
type RecordingParams struct {
	URL          string
	S3Key        string
	Duration     int
	ThumbnailURL string
	Visible      bool
	Downloadable bool
}

// UploadRecording attaches recording metadata to a session. The "recording
// available" fan-out fires only when the session is already completed.
func (s *Service) UploadRecording(ctx context.Context, id uuid.UUID, p RecordingParams) (*models.Session, error) {
	if strings.TrimSpace(p.URL) == "" || !recordingURLPattern.MatchString(p.URL) {
		return nil, errs.Validation("recording url must be a valid http(s) or ftp URL")
	}
	sess, err := s.getActive(ctx, id)
	if err != nil {
		return nil, err
	}

	rec := models.SessionRecording{
		URL:          p.URL,
		S3Key:        p.S3Key,
		Duration:     p.Duration,
		ThumbnailURL: p.ThumbnailURL,
		Visible:      p.Visible,
		Downloadable: p.Downloadable,
	}
	if err := s.store.SetRecording(ctx, id, rec); err != nil {
		return nil, fmt.Errorf("set recording: %w", err)
	}

	if sess.Status == models.SessionCompleted {
		course, cerr := s.courses.GetByID(ctx, sess.CourseID)
		title := ""
		if cerr == nil {
			title = course.Title
		}
		s.notify(ctx, notifications.SessionEvent{
			Type:        notifications.SessionRecordingAvailable,
			Session:     sess,
			CourseTitle: title,
		})
	}
	return s.store.GetByID(ctx, id)
}

// RemoveRecording resets the recording sub-document unconditionally.
func (s *Service) RemoveRecording(ctx context.Context, id uuid.UUID) error {
	if _, err := s.getActive(ctx, id); err != nil {
		return err
	}
	return s.store.ClearRecording(ctx, id)
}

// Delete soft-deletes a session. Live sessions cannot be deleted. A scheduled
// session first fans out a cancellation (with the optional reason); the record
// is retained for audit.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, reason string) error {
	sess, err := s.getActive(ctx, id)
	if err != nil {
		return err
	}
	if sess.Status == models.SessionLive {
		return errs.InvalidTransition("cannot delete a live session")
	}

	if sess.Status == models.SessionScheduled {
		course, cerr := s.courses.GetByID(ctx, sess.CourseID)
		title := ""
		if cerr == nil {
			title = course.Title
		}
		s.notify(ctx, notifications.SessionEvent{
			Type:        notifications.SessionCancelled,
			Session:     sess,
			CourseTitle: title,
			Reason:      reason,
		})
	}

	ok, err := s.store.SoftDelete(ctx, id)
	if err != nil {
		return fmt.Errorf("soft delete: %w", err)
	}
	if !ok {
		return errs.InvalidTransition("cannot delete a live session")
	}
	return nil
}

// AttendanceReport summarizes who attended out of the creation-time snapshot.
type AttendanceReport struct {
	SessionID         uuid.UUID                `json:"session_id"`
	EnrolledStudents  []uuid.UUID              `json:"enrolled_students"`
	Attendees         []models.SessionAttendee `json:"attendees"`
	AttendancePercent float64                  `json:"attendance_percent"`
}

// Report builds the attendance report for a session.
func (s *Service) Report(ctx context.Context, id uuid.UUID) (*AttendanceReport, error) {
	if _, err := s.getActive(ctx, id); err != nil {
		return nil, err
	}
	enrolled, err := s.store.ListEnrolledSnapshot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list snapshot: %w", err)
	}
	attendees, err := s.store.ListAttendees(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	return &AttendanceReport{
		SessionID:         id,
		EnrolledStudents:  enrolled,
		Attendees:         attendees,
		AttendancePercent: AttendancePercent(len(attendees), len(enrolled)),
	}, nil
}

// SendDueReminders fans out one reminder per session starting within the lead
// window and marks each reminded. Called periodically by the scheduler.
func (s *Service) SendDueReminders(ctx context.Context, lead time.Duration) int {
	due, err := s.store.ListDueForReminder(ctx, s.now().Add(lead))
	if err != nil {
		s.logger.Warn("list due reminders failed", zap.Error(err))
		return 0
	}
	sent := 0
	for i := range due {
		sess := &due[i]
		course, cerr := s.courses.GetByID(ctx, sess.CourseID)
		title := ""
		if cerr == nil {
			title = course.Title
		}
		s.notify(ctx, notifications.SessionEvent{
			Type:        notifications.SessionReminder,
			Session:     sess,
			CourseTitle: title,
		})
		if err := s.store.MarkReminderSent(ctx, sess.ID); err != nil {
			s.logger.Warn("mark reminder sent failed", zap.Error(err),
				zap.String("session_id", sess.ID.String()))
			continue
		}
		sent++
	}
	return sent
}

// GetByID returns an active session.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return s.getActive(ctx, id)
}

// ListByCourse returns a course's active sessions.
func (s *Service) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]models.Session, error) {
	return s.store.ListByCourse(ctx, courseID)
}

// ListForStudent returns active sessions of the student's enrolled courses.
func (s *Service) ListForStudent(ctx context.Context, studentID uuid.UUID) ([]models.Session, error) {
	return s.store.ListForStudent(ctx, studentID)
}

func (s *Service) getActive(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	sess, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil || !sess.IsActive {
		return nil, errs.NotFound("session not found")
	}
	return sess, nil
}

// notify is the single choke point for session fan-out: errors are logged and
// swallowed so a side effect never fails the transition that caused it.
func (s *Service) notify(ctx context.Context, ev notifications.SessionEvent) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.NotifySession(ctx, ev); err != nil {
		s.logger.Warn("session notification fan-out failed", zap.Error(err),
			zap.String("event", ev.Type), zap.String("session_id", ev.Session.ID.String()))
	}
}
