package sessions

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vedalearn/backend/internal/errs"
	"github.com/vedalearn/backend/internal/middleware"
	"github.com/vedalearn/backend/internal/models"
	"github.com/vedalearn/backend/pkg/response"
	"github.com/vedalearn/backend/pkg/storage"
)

// Handler exposes the session lifecycle over HTTP.
type Handler struct {
	svc    *Service
	users  UserStore
	s3     *storage.S3 // nil when recordings live outside our bucket
	logger *zap.Logger
}

func NewHandler(svc *Service, users UserStore, s3 *storage.S3, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, users: users, s3: s3, logger: logger}
}

type createRequest struct {
	CourseID      string   `json:"course_id" binding:"required,uuid"`
	InstructorID  string   `json:"instructor_id" binding:"required,uuid"`
	Title         string   `json:"title" binding:"required"`
	Description   string   `json:"description"`
	ScheduledDate string   `json:"scheduled_date" binding:"required"` // RFC 3339
	TimeOfDay     string   `json:"time_of_day"`
	Duration      int      `json:"duration" binding:"required,min=1"`
	Timezone      string   `json:"timezone"`
	Materials     []string `json:"materials"`
	ChatEnabled   *bool    `json:"chat_enabled"`
	Notes         string   `json:"notes"`
}

// Create handles POST /admin/sessions.
func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	scheduled, err := time.Parse(time.RFC3339, req.ScheduledDate)
	if err != nil {
		response.BadRequest(c, "scheduled_date must be RFC 3339")
		return
	}
	chatEnabled := true
	if req.ChatEnabled != nil {
		chatEnabled = *req.ChatEnabled
	}
	sess, err := h.svc.Create(c.Request.Context(), CreateParams{
		CourseID:      uuid.MustParse(req.CourseID),
		InstructorID:  uuid.MustParse(req.InstructorID),
		Title:         req.Title,
		Description:   req.Description,
		ScheduledDate: scheduled,
		TimeOfDay:     req.TimeOfDay,
		Duration:      req.Duration,
		Timezone:      req.Timezone,
		Materials:     req.Materials,
		ChatEnabled:   chatEnabled,
		Notes:         req.Notes,
	})
	if err != nil {
		errs.Write(c, err)
		return
	}
	response.Created(c, sess)
}

type updateRequest struct {
	Title         *string   `json:"title"`
	Description   *string   `json:"description"`
	ScheduledDate *string   `json:"scheduled_date"`
	TimeOfDay     *string   `json:"time_of_day"`
	Duration      *int      `json:"duration"`
	Timezone      *string   `json:"timezone"`
	Materials     *[]string `json:"materials"`
	ChatEnabled   *bool     `json:"chat_enabled"`
	Notes         *string   `json:"notes"`
}

// Update handles PUT /admin/sessions/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	fields := UpdateFields{
		Title:       req.Title,
		Description: req.Description,
		TimeOfDay:   req.TimeOfDay,
		Duration:    req.Duration,
		Timezone:    req.Timezone,
		Materials:   req.Materials,
		ChatEnabled: req.ChatEnabled,
		Notes:       req.Notes,
	}
	if req.ScheduledDate != nil {
		scheduled, err := time.Parse(time.RFC3339, *req.ScheduledDate)
		if err != nil {
			response.BadRequest(c, "scheduled_date must be RFC 3339")
			return
		}
		fields.ScheduledDate = &scheduled
	}
	sess, err := h.svc.Update(c.Request.Context(), id, fields)
	if err != nil {
		errs.Write(c, err)
		return
	}
	response.OK(c, sess)
}

// Start handles POST /admin/sessions/:id/start.
func (h *Handler) Start(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	sess, err := h.svc.Start(c.Request.Context(), id)
	if err != nil {
		errs.Write(c, err)
		return
	}
	response.OK(c, sess)
}

type endRequest struct {
	Summary   string   `json:"summary"`
	KeyTopics []string `json:"key_topics"`
	Homework  string   `json:"homework"`
}

// End handles POST /admin/sessions/:id/end.
func (h *Handler) End(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	var req endRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.BadRequest(c, err.Error())
		return
	}
	sess, err := h.svc.End(c.Request.Context(), id, EndParams{
		Summary:   req.Summary,
		KeyTopics: req.KeyTopics,
		Homework:  req.Homework,
	})
	if err != nil {
		errs.Write(c, err)
		return
	}
	response.OK(c, sess)
}

// Join handles POST /sessions/:id/join for any authenticated role.
func (h *Handler) Join(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	user, err := h.users.GetByID(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Unauthorized(c, "user not found")
		return
	}
	result, err := h.svc.Join(c.Request.Context(), id, user)
	if err != nil {
		errs.Write(c, err)
		return
	}
	response.OK(c, result)
}

type leaveRequest struct {
	MinutesAttended    int `json:"minutes_attended" binding:"min=0"`
	ParticipationScore int `json:"participation_score" binding:"min=0,max=100"`
}

// Leave handles POST /sessions/:id/leave.
func (h *Handler) Leave(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	var req leaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.svc.Leave(c.Request.Context(), id, middleware.UserID(c), LeaveParams{
		MinutesAttended:    req.MinutesAttended,
		ParticipationScore: req.ParticipationScore,
	}); err != nil {
		errs.Write(c, err)
		return
	}
	response.OK(c, gin.H{"left": true})
}

type recordingRequest struct {
	URL          string `json:"url" binding:"required"`
	S3Key        string `json:"s3_key"`
	Duration     int    `json:"duration"`
	ThumbnailURL string `json:"thumbnail_url"`
	Visible      *bool  `json:"visible"`
	Downloadable *bool  `json:"downloadable"`
}

// UploadRecording handles POST /admin/sessions/:id/recording.
func (h *Handler) UploadRecording(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	var req recordingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	visible, downloadable := true, false
	if req.Visible != nil {
		visible = *req.Visible
	}
	if req.Downloadable != nil {
		downloadable = *req.Downloadable
	}
	sess, err := h.svc.UploadRecording(c.Request.Context(), id, RecordingParams{
		URL:          req.URL,
		S3Key:        req.S3Key,
		Duration:     req.Duration,
		ThumbnailURL: req.ThumbnailURL,
		Visible:      visible,
		Downloadable: downloadable,
	})
	if err != nil {
		errs.Write(c, err)
		return
	}
	response.OK(c, sess)
}

// RemoveRecording handles DELETE /admin/sessions/:id/recording.
func (h *Handler) RemoveRecording(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	if err := h.svc.RemoveRecording(c.Request.Context(), id); err != nil {
		errs.Write(c, err)
		return
	}
	response.NoContent(c)
}

type deleteRequest struct {
	Reason string `json:"reason"`
}

// Delete handles DELETE /admin/sessions/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	var req deleteRequest
	_ = c.ShouldBindJSON(&req) // body optional
	if err := h.svc.Delete(c.Request.Context(), id, req.Reason); err != nil {
		errs.Write(c, err)
		return
	}
	response.NoContent(c)
}

// GetByID handles GET /sessions/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	sess, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		errs.Write(c, err)
		return
	}
	response.OK(c, sessionView(sess, time.Now()))
}

// ListByCourse handles GET /courses/:id/sessions.
func (h *Handler) ListByCourse(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return
	}
	list, err := h.svc.ListByCourse(c.Request.Context(), courseID)
	if err != nil {
		errs.Write(c, err)
		return
	}
	response.OK(c, sessionViews(list))
}

// ListMine handles GET /sessions/my for students.
func (h *Handler) ListMine(c *gin.Context) {
	list, err := h.svc.ListForStudent(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		errs.Write(c, err)
		return
	}
	response.OK(c, sessionViews(list))
}

// Report handles GET /admin/sessions/:id/report.
func (h *Handler) Report(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	report, err := h.svc.Report(c.Request.Context(), id)
	if err != nil {
		errs.Write(c, err)
		return
	}
	response.OK(c, report)
}

// GetRecording handles GET /sessions/:id/recording. Recordings stored in our
// bucket come back as short-lived presigned URLs; external URLs pass through.
func (h *Handler) GetRecording(c *gin.Context) {
	id, ok := h.sessionID(c)
	if !ok {
		return
	}
	sess, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		errs.Write(c, err)
		return
	}
	rec := sess.Recording
	if rec.URL == "" || !rec.Visible {
		response.NotFound(c, "no recording available")
		return
	}
	if middleware.UserRole(c) == models.RoleStudent && sess.Status != models.SessionCompleted {
		response.NotFound(c, "no recording available")
		return
	}

	url := rec.URL
	if rec.S3Key != "" && h.s3 != nil {
		signed, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(),
			h.s3.RecordingsBucket(), rec.S3Key, h.s3.PresignExpire())
		if err != nil {
			h.logger.Warn("presign recording url failed", zap.Error(err),
				zap.String("session_id", id.String()))
		} else {
			url = signed
		}
	}
	response.OK(c, gin.H{
		"url":           url,
		"duration":      rec.Duration,
		"thumbnail_url": rec.ThumbnailURL,
		"downloadable":  rec.Downloadable,
	})
}

func (h *Handler) sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

// sessionWithDisplay is the read-path projection of a session. The stored
// signing token is a join-time artifact issued per identity; the shadow
// fields below keep it out of every read response.
type sessionWithDisplay struct {
	*models.Session
	DisplayStatus  string     `json:"display_status"`
	Token          *string    `json:"token,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
}

func sessionView(s *models.Session, now time.Time) sessionWithDisplay {
	return sessionWithDisplay{Session: s, DisplayStatus: s.DisplayStatus(now)}
}

func sessionViews(list []models.Session) []sessionWithDisplay {
	now := time.Now()
	out := make([]sessionWithDisplay, 0, len(list))
	for i := range list {
		out = append(out, sessionView(&list[i], now))
	}
	return out
}
