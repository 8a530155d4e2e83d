package progress

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vedalearn/backend/internal/errs"
	"github.com/vedalearn/backend/internal/middleware"
	"github.com/vedalearn/backend/internal/models"
	"github.com/vedalearn/backend/pkg/response"
)

// Handler exposes per-course progress lookups.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// Get handles GET /courses/:id/progress. Students read their own record;
// host-class callers may pass ?student_id= to read any student's.
func (h *Handler) Get(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return
	}
	studentID := middleware.UserID(c)
	if q := c.Query("student_id"); q != "" {
		if !middleware.UserRole(c).IsHostClass() {
			errs.Write(c, errs.Forbidden("cannot read another student's progress"))
			return
		}
		studentID, err = uuid.Parse(q)
		if err != nil {
			response.BadRequest(c, "invalid student id")
			return
		}
	}
	p, err := h.repo.Get(c.Request.Context(), studentID, courseID)
	if err != nil {
		h.logger.Error("progress lookup failed", zap.Error(err))
		response.Internal(c, "could not load progress")
		return
	}
	if p == nil {
		p = &models.Progress{StudentID: studentID, CourseID: courseID}
	}
	response.OK(c, p)
}
