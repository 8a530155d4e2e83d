package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus represents order lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusAccepted  OrderStatus = "accepted"
	OrderStatusDeclined  OrderStatus = "declined"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsPaid reports whether the status represents a settled purchase. Paid,
// accepted and completed orders all grant course access.
func (s OrderStatus) IsPaid() bool {
	return s == OrderStatusPaid || s == OrderStatusAccepted || s == OrderStatusCompleted
}

// OrderItemType identifies what an order line item references.
type OrderItemType string

const (
	OrderItemCourse       OrderItemType = "course"
	OrderItemProduct      OrderItemType = "product"
	OrderItemConsultation OrderItemType = "consultation"
)

// Order is a user purchase containing one or more line items.
type Order struct {
	ID         uuid.UUID   `json:"id"`
	UserID     uuid.UUID   `json:"user_id"`
	Status     OrderStatus `json:"status"`
	TotalCents int         `json:"total_cents"`
	Currency   string      `json:"currency"`
	Items      []OrderItem `json:"items,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// OrderItem is one line item of an order. ItemID references a course,
// product or consultation depending on ItemType.
type OrderItem struct {
	ID         uuid.UUID     `json:"id"`
	OrderID    uuid.UUID     `json:"order_id"`
	ItemType   OrderItemType `json:"item_type"`
	ItemID     uuid.UUID     `json:"item_id"`
	Quantity   int           `json:"quantity"`
	PriceCents int           `json:"price_cents"`
}
