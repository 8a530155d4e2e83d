package sessions

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vedalearn/backend/internal/errs"
	"github.com/vedalearn/backend/internal/models"
	"github.com/vedalearn/backend/internal/notifications"
	"github.com/vedalearn/backend/internal/rtc"
)

type attKey struct {
	session uuid.UUID
	student uuid.UUID
}

type fakeStore struct {
	sessions   map[uuid.UUID]*models.Session
	snapshot   map[uuid.UUID][]uuid.UUID
	attendance map[attKey]*models.SessionAttendee
	markLiveOK bool  // simulates losing a concurrent start when false
	getErr     error // simulates a store outage on reads
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:   map[uuid.UUID]*models.Session{},
		snapshot:   map[uuid.UUID][]uuid.UUID{},
		attendance: map[attKey]*models.SessionAttendee{},
		markLiveOK: true,
	}
}

func (f *fakeStore) Create(_ context.Context, s *models.Session, enrolled []uuid.UUID) error {
	s.ID = uuid.New()
	f.sessions[s.ID] = s
	f.snapshot[s.ID] = enrolled
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, errs.NotFound("session not found")
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) ListByCourse(_ context.Context, courseID uuid.UUID) ([]models.Session, error) {
	var out []models.Session
	for _, s := range f.sessions {
		if s.CourseID == courseID && s.IsActive {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeStore) ListForStudent(context.Context, uuid.UUID) ([]models.Session, error) {
	return nil, nil
}

func (f *fakeStore) NextSessionNumber(_ context.Context, courseID uuid.UUID) (int, error) {
	max := 0
	for _, s := range f.sessions {
		if s.CourseID == courseID && s.SessionNumber > max {
			max = s.SessionNumber
		}
	}
	return max + 1, nil
}

func (f *fakeStore) UpdateFields(_ context.Context, id uuid.UUID, u UpdateFields) error {
	s := f.sessions[id]
	if u.Title != nil {
		s.Title = *u.Title
	}
	if u.ScheduledDate != nil {
		s.ScheduledDate = *u.ScheduledDate
	}
	if u.TimeOfDay != nil {
		s.TimeOfDay = *u.TimeOfDay
	}
	if u.Duration != nil {
		s.Duration = *u.Duration
	}
	return nil
}

func (f *fakeStore) MarkLive(_ context.Context, id uuid.UUID, token *string, exp *time.Time, appID uint32) (bool, error) {
	s := f.sessions[id]
	if !f.markLiveOK || s.Status != models.SessionScheduled {
		return false, nil
	}
	now := time.Now()
	s.Status = models.SessionLive
	s.ActualStart = &now
	s.Token = token
	s.TokenExpiresAt = exp
	s.AppID = appID
	return true, nil
}

func (f *fakeStore) MarkCompleted(_ context.Context, id uuid.UUID, summary string, topics []string, homework string) (bool, error) {
	s := f.sessions[id]
	if s.Status != models.SessionLive {
		return false, nil
	}
	now := time.Now()
	minutes := 0
	if s.ActualStart != nil {
		minutes = int(now.Sub(*s.ActualStart) / time.Minute)
	}
	s.Status = models.SessionCompleted
	s.ActualEnd = &now
	s.ActualDuration = &minutes
	s.Summary = summary
	s.KeyTopics = topics
	s.Homework = homework
	return true, nil
}

func (f *fakeStore) SoftDelete(_ context.Context, id uuid.UUID) (bool, error) {
	s := f.sessions[id]
	if s.Status == models.SessionLive {
		return false, nil
	}
	s.IsActive = false
	return true, nil
}

func (f *fakeStore) MarkAttendance(_ context.Context, sessionID, studentID uuid.UUID, joinedAt time.Time) error {
	k := attKey{sessionID, studentID}
	if _, exists := f.attendance[k]; exists {
		return nil
	}
	f.attendance[k] = &models.SessionAttendee{
		SessionID: sessionID, StudentID: studentID, JoinedAt: joinedAt,
	}
	return nil
}

func (f *fakeStore) UpdateAttendanceLeave(_ context.Context, sessionID, studentID uuid.UUID, leftAt time.Time, minutes, score int) (bool, error) {
	a, ok := f.attendance[attKey{sessionID, studentID}]
	if !ok {
		return false, nil
	}
	a.LeftAt = &leftAt
	a.MinutesAttended = minutes
	a.ParticipationScore = score
	return true, nil
}

func (f *fakeStore) SetHostIdentity(_ context.Context, sessionID uuid.UUID, uid int32, name string) error {
	s := f.sessions[sessionID]
	if s.HostUID == nil {
		s.HostUID = &uid
		s.HostName = &name
	}
	return nil
}

func (f *fakeStore) SetRecording(_ context.Context, id uuid.UUID, rec models.SessionRecording) error {
	f.sessions[id].Recording = rec
	return nil
}

func (f *fakeStore) ClearRecording(_ context.Context, id uuid.UUID) error {
	f.sessions[id].Recording = models.SessionRecording{}
	return nil
}

func (f *fakeStore) ListAttendees(_ context.Context, sessionID uuid.UUID) ([]models.SessionAttendee, error) {
	var out []models.SessionAttendee
	for k, a := range f.attendance {
		if k.session == sessionID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeStore) ListEnrolledSnapshot(_ context.Context, sessionID uuid.UUID) ([]uuid.UUID, error) {
	return f.snapshot[sessionID], nil
}

func (f *fakeStore) CountActiveByCourse(_ context.Context, courseID uuid.UUID) (int, error) {
	n := 0
	for _, s := range f.sessions {
		if s.CourseID == courseID && s.IsActive {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ListDueForReminder(_ context.Context, windowEnd time.Time) ([]models.Session, error) {
	var out []models.Session
	for _, s := range f.sessions {
		if s.IsActive && s.Status == models.SessionScheduled && !s.ReminderSent && s.ScheduledDate.Before(windowEnd) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkReminderSent(_ context.Context, id uuid.UUID) error {
	f.sessions[id].ReminderSent = true
	return nil
}

type fakeCourses struct{ course *models.Course }

func (f *fakeCourses) GetByID(_ context.Context, id uuid.UUID) (*models.Course, error) {
	if f.course == nil || f.course.ID != id {
		return nil, errs.NotFound("course not found")
	}
	return f.course, nil
}

type fakeUsers struct{ users map[uuid.UUID]*models.User }

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, errs.NotFound("user not found")
	}
	return u, nil
}

type fakePaid struct{ ids []uuid.UUID }

func (f *fakePaid) ListPaidCourseUserIDs(context.Context, uuid.UUID) ([]uuid.UUID, error) {
	return f.ids, nil
}

type progressCall struct {
	student uuid.UUID
	minutes int
	score   int
}

type fakeProgress struct {
	incremented []uuid.UUID
	applied     []progressCall
}

func (f *fakeProgress) IncrementTotalSessions(_ context.Context, studentID, _ uuid.UUID) error {
	f.incremented = append(f.incremented, studentID)
	return nil
}

func (f *fakeProgress) SetTotalSessions(context.Context, uuid.UUID, uuid.UUID, int) error {
	return nil
}

func (f *fakeProgress) ApplyAttendance(_ context.Context, studentID, _ uuid.UUID, _ bool, minutes, score int) error {
	f.applied = append(f.applied, progressCall{studentID, minutes, score})
	return nil
}

type fakeEnroll struct{ enrolled map[uuid.UUID]bool }

func (f *fakeEnroll) IsEnrolled(_ context.Context, userID, _ uuid.UUID) bool {
	return f.enrolled[userID]
}

type fakeIssuer struct {
	fail    bool
	sandbox bool
	issued  []int32
}

func (f *fakeIssuer) AppID() uint32 { return 42 }

func (f *fakeIssuer) Issue(channel string, uid int32, _ rtc.Role, ttl int64) (*rtc.Token, error) {
	if f.fail {
		return nil, fmt.Errorf("signing unavailable")
	}
	if f.sandbox {
		return nil, nil
	}
	f.issued = append(f.issued, uid)
	return &rtc.Token{
		Value:     fmt.Sprintf("tok-%s-%d", channel, uid),
		ExpiresAt: time.Now().Add(time.Duration(ttl) * time.Second),
	}, nil
}

type fakeNotifier struct{ events []notifications.SessionEvent }

func (f *fakeNotifier) NotifySession(_ context.Context, ev notifications.SessionEvent) (int, error) {
	f.events = append(f.events, ev)
	return 1, nil
}

func (f *fakeNotifier) types() []string {
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	svc      *Service
	store    *fakeStore
	courses  *fakeCourses
	users    *fakeUsers
	paid     *fakePaid
	progress *fakeProgress
	enroll   *fakeEnroll
	issuer   *fakeIssuer
	notifier *fakeNotifier

	courseID   uuid.UUID
	instructor *models.User
	student    *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	courseID := uuid.New()
	instructor := &models.User{ID: uuid.New(), FullName: "Guru Dev", Role: models.RoleInstructor}
	student := &models.User{ID: uuid.New(), FullName: "Asha Rao", Role: models.RoleStudent}

	f := &fixture{
		store:      newFakeStore(),
		courses:    &fakeCourses{course: &models.Course{ID: courseID, Title: "Vedic Astrology 101"}},
		users:      &fakeUsers{users: map[uuid.UUID]*models.User{instructor.ID: instructor, student.ID: student}},
		paid:       &fakePaid{ids: []uuid.UUID{student.ID}},
		progress:   &fakeProgress{},
		enroll:     &fakeEnroll{enrolled: map[uuid.UUID]bool{student.ID: true}},
		issuer:     &fakeIssuer{},
		notifier:   &fakeNotifier{},
		courseID:   courseID,
		instructor: instructor,
		student:    student,
	}
	f.svc = NewService(f.store, f.courses, f.users, f.paid, f.progress, f.enroll,
		f.issuer, f.notifier, Config{ChannelPrefix: "veda", TokenTTLSeconds: 3600, JoinWindowMinutes: 15},
		zap.NewNop())
	return f
}

func (f *fixture) createSession(t *testing.T, start time.Time) *models.Session {
	t.Helper()
	sess, err := f.svc.Create(context.Background(), CreateParams{
		CourseID:      f.courseID,
		InstructorID:  f.instructor.ID,
		Title:         "Houses and Lords",
		ScheduledDate: start,
		Duration:      60,
		ChatEnabled:   true,
	})
	require.NoError(t, err)
	return sess
}

func TestCreateGeneratesChannelNameAndSnapshots(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now().Add(24*time.Hour))

	assert.Regexp(t, regexp.MustCompile(`^veda_[0-9a-f]{6}_s01_\d+$`), sess.ChannelName)
	assert.Equal(t, 1, sess.SessionNumber)
	assert.Equal(t, models.SessionScheduled, sess.Status)
	assert.Equal(t, uint32(42), sess.AppID)
	assert.Equal(t, []uuid.UUID{f.student.ID}, f.store.snapshot[sess.ID])
	assert.Equal(t, []uuid.UUID{f.student.ID}, f.progress.incremented)
	assert.Equal(t, []string{notifications.SessionCreated}, f.notifier.types())
}

func TestCreateUnknownCourse(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), CreateParams{
		CourseID:      uuid.New(),
		InstructorID:  f.instructor.ID,
		ScheduledDate: time.Now(),
		Duration:      60,
	})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestChannelNamesDifferAcrossSessions(t *testing.T) {
	f := newFixture(t)
	a := f.createSession(t, time.Now().Add(24*time.Hour))
	b := f.createSession(t, time.Now().Add(48*time.Hour))
	assert.NotEqual(t, a.ChannelName, b.ChannelName)
	assert.Equal(t, 2, b.SessionNumber)
	assert.Contains(t, b.ChannelName, "_s02_")
}

func TestStartTransitionsToLive(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now().Add(time.Hour))

	live, err := f.svc.Start(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionLive, live.Status)
	require.NotNil(t, live.Token)
	assert.NotNil(t, live.ActualStart)
	assert.Contains(t, f.notifier.types(), notifications.SessionStarted)

	// uid 0 channel-wide token
	assert.Equal(t, []int32{0}, f.issuer.issued)
}

func TestStartRejectsNonScheduled(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now().Add(time.Hour))
	_, err := f.svc.Start(context.Background(), sess.ID)
	require.NoError(t, err)

	_, err = f.svc.Start(context.Background(), sess.ID)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestStartConcurrentLoserFailsCleanly(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now().Add(time.Hour))
	f.store.markLiveOK = false

	_, err := f.svc.Start(context.Background(), sess.ID)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestStartTokenFailureDegradesToNil(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now().Add(time.Hour))
	f.issuer.fail = true

	live, err := f.svc.Start(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionLive, live.Status)
	assert.Nil(t, live.Token)
}

func TestEndRequiresLive(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now().Add(time.Hour))

	_, err := f.svc.End(context.Background(), sess.ID, EndParams{})
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestEndAppliesAttendanceToProgress(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now())
	_, err := f.svc.Start(context.Background(), sess.ID)
	require.NoError(t, err)

	_, err = f.svc.Join(context.Background(), sess.ID, f.student)
	require.NoError(t, err)
	require.NoError(t, f.svc.Leave(context.Background(), sess.ID, f.student.ID, LeaveParams{
		MinutesAttended: 45, ParticipationScore: 80,
	}))
	f.progress.applied = nil // isolate the end-of-session application

	done, err := f.svc.End(context.Background(), sess.ID, EndParams{Summary: "covered houses"})
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, done.Status)
	assert.Equal(t, "covered houses", done.Summary)
	require.NotNil(t, done.ActualDuration)

	require.Len(t, f.progress.applied, 1)
	assert.Equal(t, progressCall{f.student.ID, 45, 80}, f.progress.applied[0])
}

func TestJoinRequiresEnrollment(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now())
	_, err := f.svc.Start(context.Background(), sess.ID)
	require.NoError(t, err)

	stranger := &models.User{ID: uuid.New(), FullName: "Who Dis", Role: models.RoleStudent}
	_, err = f.svc.Join(context.Background(), sess.ID, stranger)
	assert.ErrorIs(t, err, errs.ErrForbidden)
}

func TestJoinIsIdempotent(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now())
	_, err := f.svc.Start(context.Background(), sess.ID)
	require.NoError(t, err)

	first, err := f.svc.Join(context.Background(), sess.ID, f.student)
	require.NoError(t, err)
	second, err := f.svc.Join(context.Background(), sess.ID, f.student)
	require.NoError(t, err)

	assert.Equal(t, first.UID, second.UID)
	assert.Len(t, f.store.attendance, 1)
}

func TestJoinStudentOutsideWindow(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now().Add(2*time.Hour))

	_, err := f.svc.Join(context.Background(), sess.ID, f.student)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestJoinStudentWithinWindow(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now().Add(10*time.Minute))

	res, err := f.svc.Join(context.Background(), sess.ID, f.student)
	require.NoError(t, err)
	assert.Equal(t, sess.ChannelName, res.ChannelName)
	require.NotNil(t, res.Token)
	assert.Positive(t, res.UID)
}

func TestJoinHostBypassesWindowAndEnrollment(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now().Add(6*time.Hour))

	res, err := f.svc.Join(context.Background(), sess.ID, f.instructor)
	require.NoError(t, err)
	require.NotNil(t, res.HostUID)
	assert.Equal(t, res.UID, *res.HostUID)
	assert.Equal(t, f.instructor.FullName, *res.HostName)
	// hosts do not get attendance rows
	assert.Empty(t, f.store.attendance)
}

func TestJoinHostIdentityPersistsOnce(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now())
	first, err := f.svc.Join(context.Background(), sess.ID, f.instructor)
	require.NoError(t, err)

	other := &models.User{ID: uuid.New(), FullName: "Other Host", Role: models.RoleAdmin}
	second, err := f.svc.Join(context.Background(), sess.ID, other)
	require.NoError(t, err)

	require.NotNil(t, second.HostUID)
	assert.Equal(t, *first.HostUID, *second.HostUID)
	assert.Equal(t, f.instructor.FullName, *second.HostName)
}

func TestJoinCompletedSessionRejected(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now())
	_, err := f.svc.Start(context.Background(), sess.ID)
	require.NoError(t, err)
	_, err = f.svc.End(context.Background(), sess.ID, EndParams{})
	require.NoError(t, err)

	_, err = f.svc.Join(context.Background(), sess.ID, f.student)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestJoinSandboxModeReturnsNilToken(t *testing.T) {
	f := newFixture(t)
	f.issuer.sandbox = true
	sess := f.createSession(t, time.Now())
	_, err := f.svc.Start(context.Background(), sess.ID)
	require.NoError(t, err)

	res, err := f.svc.Join(context.Background(), sess.ID, f.student)
	require.NoError(t, err)
	assert.Nil(t, res.Token)
	assert.Positive(t, res.UID)
}

func TestLeaveWithoutJoinIsNoOp(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now())
	_, err := f.svc.Start(context.Background(), sess.ID)
	require.NoError(t, err)

	err = f.svc.Leave(context.Background(), sess.ID, f.student.ID, LeaveParams{MinutesAttended: 10})
	require.NoError(t, err)
	assert.Empty(t, f.progress.applied)
}

func TestLeaveRejectsOutOfRangeScore(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now())
	err := f.svc.Leave(context.Background(), sess.ID, f.student.ID, LeaveParams{ParticipationScore: 101})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestUpdateLiveSessionRejected(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now())
	_, err := f.svc.Start(context.Background(), sess.ID)
	require.NoError(t, err)

	title := "new title"
	_, err = f.svc.Update(context.Background(), sess.ID, UpdateFields{Title: &title})
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestUpdateScheduleChangeEscalatesNotification(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now().Add(24*time.Hour))
	f.notifier.events = nil

	newDate := sess.ScheduledDate.Add(48 * time.Hour)
	_, err := f.svc.Update(context.Background(), sess.ID, UpdateFields{ScheduledDate: &newDate})
	require.NoError(t, err)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, notifications.SessionUpdated, f.notifier.events[0].Type)
	assert.True(t, f.notifier.events[0].ScheduleChanged)
}

func TestUpdateNoDiffNoNotification(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now().Add(24*time.Hour))
	f.notifier.events = nil

	sameTitle := sess.Title
	_, err := f.svc.Update(context.Background(), sess.ID, UpdateFields{Title: &sameTitle})
	require.NoError(t, err)
	assert.Empty(t, f.notifier.events)
}

func TestUploadRecordingValidatesURL(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now())

	for _, bad := range []string{"", "not-a-url", "javascript:alert(1)", "file:///etc/passwd"} {
		_, err := f.svc.UploadRecording(context.Background(), sess.ID, RecordingParams{URL: bad})
		assert.ErrorIs(t, err, errs.ErrValidation, "url %q", bad)
	}
}

func TestUploadRecordingNotifiesOnlyWhenCompleted(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now())
	f.notifier.events = nil

	_, err := f.svc.UploadRecording(context.Background(), sess.ID, RecordingParams{
		URL: "https://cdn.example.com/rec.mp4", Visible: true,
	})
	require.NoError(t, err)
	assert.Empty(t, f.notifier.events, "scheduled session must not announce a recording")

	_, err = f.svc.Start(context.Background(), sess.ID)
	require.NoError(t, err)
	_, err = f.svc.End(context.Background(), sess.ID, EndParams{})
	require.NoError(t, err)
	f.notifier.events = nil

	_, err = f.svc.UploadRecording(context.Background(), sess.ID, RecordingParams{
		URL: "https://cdn.example.com/rec.mp4", Visible: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{notifications.SessionRecordingAvailable}, f.notifier.types())
}

func TestRemoveRecordingClearsMetadata(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now())
	_, err := f.svc.UploadRecording(context.Background(), sess.ID, RecordingParams{
		URL: "https://cdn.example.com/rec.mp4",
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveRecording(context.Background(), sess.ID))
	got, err := f.svc.GetByID(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Recording.URL)
}

func TestDeleteScheduledFansOutCancellation(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now().Add(24*time.Hour))
	f.notifier.events = nil

	require.NoError(t, f.svc.Delete(context.Background(), sess.ID, "instructor unavailable"))

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, notifications.SessionCancelled, f.notifier.events[0].Type)
	assert.Equal(t, "instructor unavailable", f.notifier.events[0].Reason)

	_, err := f.svc.GetByID(context.Background(), sess.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDeleteLiveSessionRejected(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now())
	_, err := f.svc.Start(context.Background(), sess.ID)
	require.NoError(t, err)

	err = f.svc.Delete(context.Background(), sess.ID, "")
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestDeleteCompletedNoCancellationFanOut(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now())
	_, err := f.svc.Start(context.Background(), sess.ID)
	require.NoError(t, err)
	_, err = f.svc.End(context.Background(), sess.ID, EndParams{})
	require.NoError(t, err)
	f.notifier.events = nil

	require.NoError(t, f.svc.Delete(context.Background(), sess.ID, ""))
	assert.Empty(t, f.notifier.events)
}

func TestReportZeroEnrollmentIsZeroPercent(t *testing.T) {
	f := newFixture(t)
	f.paid.ids = nil
	sess := f.createSession(t, time.Now())

	report, err := f.svc.Report(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Zero(t, report.AttendancePercent)
}

func TestReportComputesPercentage(t *testing.T) {
	f := newFixture(t)
	other := uuid.New()
	f.paid.ids = []uuid.UUID{f.student.ID, other}
	f.enroll.enrolled[other] = true
	sess := f.createSession(t, time.Now())
	_, err := f.svc.Start(context.Background(), sess.ID)
	require.NoError(t, err)
	_, err = f.svc.Join(context.Background(), sess.ID, f.student)
	require.NoError(t, err)

	report, err := f.svc.Report(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, report.AttendancePercent, 0.01)
}

func TestSendDueRemindersMarksSent(t *testing.T) {
	f := newFixture(t)
	soon := f.createSession(t, time.Now().Add(20*time.Minute))
	f.createSession(t, time.Now().Add(6*time.Hour))
	f.notifier.events = nil

	sent := f.svc.SendDueReminders(context.Background(), 30*time.Minute)
	assert.Equal(t, 1, sent)
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, notifications.SessionReminder, f.notifier.events[0].Type)
	assert.True(t, f.store.sessions[soon.ID].ReminderSent)

	// second tick is a no-op
	assert.Zero(t, f.svc.SendDueReminders(context.Background(), 30*time.Minute))
}

func TestAttendancePercent(t *testing.T) {
	assert.Zero(t, AttendancePercent(0, 0))
	assert.Zero(t, AttendancePercent(5, 0))
	assert.InDelta(t, 100, AttendancePercent(4, 4), 0.01)
	assert.InDelta(t, 25, AttendancePercent(1, 4), 0.01)
}

func TestGenerateChannelNameFormat(t *testing.T) {
	courseID := uuid.MustParse("3f2c8a10-55aa-4bd1-9c27-1d2e3f4a5b6c")
	now := time.Unix(1700000000, 0)
	name := GenerateChannelName("veda", courseID, 7, now)
	assert.Equal(t, "veda_4a5b6c_s07_1700000000", name)
}

func TestStoreOutageIsNotMaskedAsMissing(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now().Add(time.Hour))

	f.store.getErr = fmt.Errorf("connection refused")
	_, err := f.svc.GetByID(context.Background(), sess.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, errs.ErrNotFound)

	_, err = f.svc.Start(context.Background(), sess.ID)
	assert.NotErrorIs(t, err, errs.ErrNotFound)
}
