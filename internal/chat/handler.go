package chat

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vedalearn/backend/internal/errs"
	"github.com/vedalearn/backend/internal/middleware"
	"github.com/vedalearn/backend/pkg/response"
)

// EnrollmentChecker gates forum history to enrolled students.
type EnrollmentChecker interface {
	IsEnrolled(ctx context.Context, userID, courseID uuid.UUID) bool
}

// Handler serves message history over HTTP; live traffic goes over the
// websocket.
type Handler struct {
	svc    *Service
	enroll EnrollmentChecker
}

func NewHandler(svc *Service, enroll EnrollmentChecker) *Handler {
	return &Handler{svc: svc, enroll: enroll}
}

// DirectHistory handles GET /chats/:peerID/messages.
func (h *Handler) DirectHistory(c *gin.Context) {
	peerID, err := uuid.Parse(c.Param("peerID"))
	if err != nil {
		response.BadRequest(c, "invalid peer id")
		return
	}
	limit, offset := pagination(c)
	msgs, err := h.svc.DirectHistory(c.Request.Context(), middleware.UserID(c), peerID, limit, offset)
	if err != nil {
		errs.Write(c, err)
		return
	}
	response.OK(c, msgs)
}

// ForumHistory handles GET /forums/:courseID/messages. Students must be
// enrolled; host-class roles pass through.
func (h *Handler) ForumHistory(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("courseID"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return
	}
	userID := middleware.UserID(c)
	if !middleware.UserRole(c).IsHostClass() && !h.enroll.IsEnrolled(c.Request.Context(), userID, courseID) {
		response.Forbidden(c, "you are not enrolled in this course")
		return
	}
	limit, offset := pagination(c)
	msgs, err := h.svc.ForumHistory(c.Request.Context(), courseID, limit, offset)
	if err != nil {
		errs.Write(c, err)
		return
	}
	response.OK(c, msgs)
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
