package courses

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vedalearn/backend/internal/errs"
	"github.com/vedalearn/backend/pkg/response"
)

// Handler exposes course lookup and the direct-grant enrollment source.
// Catalog CRUD lives elsewhere; only what the session lifecycle needs is here.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// GetByID handles GET /courses/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return
	}
	course, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		errs.Write(c, err)
		return
	}
	response.OK(c, course)
}

type grantRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
}

// Grant handles POST /admin/courses/:id/enrollments: a direct enrollment grant
// that bypasses the order flow.
func (h *Handler) Grant(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return
	}
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if _, err := h.repo.GetByID(c.Request.Context(), courseID); err != nil {
		errs.Write(c, err)
		return
	}
	if err := h.repo.Enroll(c.Request.Context(), uuid.MustParse(req.UserID), courseID); err != nil {
		h.logger.Error("enrollment grant failed", zap.Error(err))
		response.Internal(c, "could not grant enrollment")
		return
	}
	response.Created(c, gin.H{"enrolled": true})
}
