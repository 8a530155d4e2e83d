package notifications

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vedalearn/backend/internal/middleware"
	"github.com/vedalearn/backend/internal/models"
	"github.com/vedalearn/backend/pkg/response"
)

const defaultPageSize = 20

// CreateRequest is the body for POST /notifications (admin only).
type CreateRequest struct {
	UserID   string `json:"user_id" binding:"required,uuid"`
	Title    string `json:"title" binding:"required"`
	Message  string `json:"message" binding:"required"`
	Link     string `json:"link"`
	Category string `json:"category"`
	Priority string `json:"priority"`
}

// Handler handles notification HTTP endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a notifications handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// List handles GET /notifications?unread=1&page=1&page_size=20.
func (h *Handler) List(c *gin.Context) {
	userID := middleware.UserID(c)
	unreadOnly := c.Query("unread") == "1"
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if pageSize < 1 || pageSize > 100 {
		pageSize = defaultPageSize
	}

	list, err := h.repo.List(c.Request.Context(), userID, unreadOnly, pageSize, (page-1)*pageSize)
	if err != nil {
		h.logger.Error("list notifications failed", zap.Error(err))
		response.Internal(c, "failed to list notifications")
		return
	}
	response.OK(c, gin.H{"notifications": list, "page": page, "page_size": pageSize})
}

// GetByID handles GET /notifications/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid notification id")
		return
	}
	n, err := h.repo.GetByID(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		response.NotFound(c, "notification not found")
		return
	}
	response.OK(c, n)
}

// Create handles POST /notifications (admin only; manual/system notices).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID, _ := uuid.Parse(req.UserID)
	n := models.Notification{
		UserID:   userID,
		Title:    req.Title,
		Message:  req.Message,
		Link:     req.Link,
		Category: models.CategorySystem,
		Priority: models.PriorityMedium,
	}
	if req.Category != "" {
		n.Category = models.NotificationCategory(req.Category)
	}
	if req.Priority != "" {
		n.Priority = models.NotificationPriority(req.Priority)
	}
	if err := h.repo.Create(c.Request.Context(), &n); err != nil {
		h.logger.Error("create notification failed", zap.Error(err))
		response.Internal(c, "failed to create notification")
		return
	}
	response.Created(c, n)
}

// CreateBulk handles POST /notifications/bulk (admin only).
func (h *Handler) CreateBulk(c *gin.Context) {
	var reqs []CreateRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ns := make([]models.Notification, 0, len(reqs))
	for _, req := range reqs {
		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			response.BadRequest(c, "invalid user_id: "+req.UserID)
			return
		}
		n := models.Notification{
			UserID:   userID,
			Title:    req.Title,
			Message:  req.Message,
			Link:     req.Link,
			Category: models.CategorySystem,
			Priority: models.PriorityMedium,
		}
		if req.Category != "" {
			n.Category = models.NotificationCategory(req.Category)
		}
		if req.Priority != "" {
			n.Priority = models.NotificationPriority(req.Priority)
		}
		ns = append(ns, n)
	}
	count, err := h.repo.CreateBulk(c.Request.Context(), ns)
	if err != nil {
		h.logger.Error("bulk create notifications failed", zap.Error(err))
		response.Internal(c, "failed to create notifications")
		return
	}
	response.Created(c, gin.H{"count": count})
}

// MarkRead handles PATCH /notifications/:id/read.
func (h *Handler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid notification id")
		return
	}
	ok, err := h.repo.MarkRead(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		response.Internal(c, "failed to mark notification read")
		return
	}
	if !ok {
		response.NotFound(c, "notification not found")
		return
	}
	response.OK(c, gin.H{"read": true})
}

// MarkAllRead handles PATCH /notifications/read-all.
func (h *Handler) MarkAllRead(c *gin.Context) {
	count, err := h.repo.MarkAllRead(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Internal(c, "failed to mark notifications read")
		return
	}
	response.OK(c, gin.H{"count": count})
}

// Delete handles DELETE /notifications/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid notification id")
		return
	}
	ok, err := h.repo.Delete(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		response.Internal(c, "failed to delete notification")
		return
	}
	if !ok {
		response.NotFound(c, "notification not found")
		return
	}
	response.NoContent(c)
}

// DeleteAll handles DELETE /notifications.
func (h *Handler) DeleteAll(c *gin.Context) {
	count, err := h.repo.DeleteAll(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Internal(c, "failed to delete notifications")
		return
	}
	response.OK(c, gin.H{"count": count})
}
