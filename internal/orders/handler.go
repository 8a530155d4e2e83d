package orders

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vedalearn/backend/internal/errs"
	"github.com/vedalearn/backend/internal/middleware"
	"github.com/vedalearn/backend/internal/models"
	"github.com/vedalearn/backend/internal/notifications"
	"github.com/vedalearn/backend/pkg/response"
)

// Notifier fans order events out. Fan-out failure never fails the request.
type Notifier interface {
	NotifyOrder(ctx context.Context, ev notifications.OrderEvent) (int, error)
}

// Store persists orders. Implemented by *Repository.
type Store interface {
	Create(ctx context.Context, o *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) (bool, error)
}

// Enroller records course membership. A paid order enrolls the buyer into
// every course line item so the session audience and the enrollment resolver
// see them immediately.
type Enroller interface {
	Enroll(ctx context.Context, userID, courseID uuid.UUID) error
}

// Handler exposes order placement and status updates.
type Handler struct {
	store    Store
	enroller Enroller
	notifier Notifier
	logger   *zap.Logger
}

func NewHandler(store Store, enroller Enroller, notifier Notifier, logger *zap.Logger) *Handler {
	return &Handler{store: store, enroller: enroller, notifier: notifier, logger: logger}
}

type createItemRequest struct {
	ItemType   string `json:"item_type" binding:"required,oneof=course product consultation"`
	ItemID     string `json:"item_id" binding:"required,uuid"`
	Quantity   int    `json:"quantity" binding:"min=1"`
	PriceCents int    `json:"price_cents" binding:"min=0"`
}

type createOrderRequest struct {
	Currency string              `json:"currency"`
	Items    []createItemRequest `json:"items" binding:"required,min=1,dive"`
}

// Create handles POST /orders. New orders start pending and are announced to
// the admin set.
func (h *Handler) Create(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	order := &models.Order{
		UserID:   middleware.UserID(c),
		Status:   models.OrderStatusPending,
		Currency: req.Currency,
	}
	if order.Currency == "" {
		order.Currency = "INR"
	}
	for _, it := range req.Items {
		qty := it.Quantity
		if qty == 0 {
			qty = 1
		}
		order.Items = append(order.Items, models.OrderItem{
			ItemType:   models.OrderItemType(it.ItemType),
			ItemID:     uuid.MustParse(it.ItemID),
			Quantity:   qty,
			PriceCents: it.PriceCents,
		})
		order.TotalCents += it.PriceCents * qty
	}

	if err := h.store.Create(c.Request.Context(), order); err != nil {
		h.logger.Error("create order failed", zap.Error(err))
		response.Internal(c, "could not create order")
		return
	}

	h.notify(c, notifications.OrderEvent{Type: notifications.OrderNew, Order: order})
	response.Created(c, order)
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=pending paid accepted declined completed cancelled"`
}

// statusEvents maps the new order status to the owner-facing notification
// sub-type.
var statusEvents = map[models.OrderStatus]string{
	models.OrderStatusPending:   notifications.OrderPending,
	models.OrderStatusPaid:      notifications.OrderPaid,
	models.OrderStatusAccepted:  notifications.OrderAccepted,
	models.OrderStatusDeclined:  notifications.OrderDeclined,
	models.OrderStatusCompleted: notifications.OrderCompleted,
	models.OrderStatusCancelled: notifications.OrderCancelled,
}

// UpdateStatus handles PUT /admin/orders/:id/status. The owner is notified of
// every visible status change.
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid order id")
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	status := models.OrderStatus(req.Status)
	ok, err := h.store.UpdateStatus(c.Request.Context(), id, status)
	if err != nil {
		h.logger.Error("update order status failed", zap.Error(err))
		response.Internal(c, "could not update order")
		return
	}
	if !ok {
		response.NotFound(c, "order not found")
		return
	}

	order, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		errs.Write(c, err)
		return
	}
	if status.IsPaid() {
		h.enrollCourseItems(c.Request.Context(), order)
	}
	if event, known := statusEvents[status]; known {
		h.notify(c, notifications.OrderEvent{Type: event, Order: order})
	}
	response.OK(c, order)
}

// enrollCourseItems records course membership for every course line item of a
// paid order. A failed upsert is logged, not fatal: the resolver's paid-order
// layer still recognizes the buyer.
func (h *Handler) enrollCourseItems(ctx context.Context, order *models.Order) {
	if h.enroller == nil {
		return
	}
	for _, it := range order.Items {
		if it.ItemType != models.OrderItemCourse {
			continue
		}
		if err := h.enroller.Enroll(ctx, order.UserID, it.ItemID); err != nil {
			h.logger.Error("paid-order enrollment failed", zap.Error(err),
				zap.String("order_id", order.ID.String()),
				zap.String("course_id", it.ItemID.String()))
		}
	}
}

// GetByID handles GET /orders/:id. Owners see their own orders; host-class
// roles see any.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid order id")
		return
	}
	order, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		errs.Write(c, err)
		return
	}
	if order.UserID != middleware.UserID(c) && !middleware.UserRole(c).IsHostClass() {
		response.Forbidden(c, "not your order")
		return
	}
	response.OK(c, order)
}

func (h *Handler) notify(c *gin.Context, ev notifications.OrderEvent) {
	if h.notifier == nil {
		return
	}
	if _, err := h.notifier.NotifyOrder(c.Request.Context(), ev); err != nil {
		h.logger.Warn("order notification fan-out failed", zap.Error(err),
			zap.String("event", ev.Type), zap.String("order_id", ev.Order.ID.String()))
	}
}
