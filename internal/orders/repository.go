package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vedalearn/backend/internal/models"
)

// Repository handles order persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an order repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts an order with its line items in one transaction.
func (r *Repository) Create(ctx context.Context, o *models.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const q = `INSERT INTO orders (user_id, status, total_cents, currency)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`
	if err := tx.QueryRow(ctx, q, o.UserID, o.Status, o.TotalCents, o.Currency).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return err
	}
	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		const iq = `INSERT INTO order_items (order_id, item_type, item_id, quantity, price_cents)
			VALUES ($1, $2, $3, $4, $5) RETURNING id`
		if err := tx.QueryRow(ctx, iq, item.OrderID, item.ItemType, item.ItemID, item.Quantity, item.PriceCents).
			Scan(&item.ID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetByID returns an order with its items.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	const q = `SELECT id, user_id, status, total_cents, currency, created_at, updated_at
		FROM orders WHERE id = $1`
	var o models.Order
	err := r.pool.QueryRow(ctx, q, id).Scan(&o.ID, &o.UserID, &o.Status, &o.TotalCents, &o.Currency, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}

	const iq = `SELECT id, order_id, item_type, item_id, quantity, price_cents
		FROM order_items WHERE order_id = $1`
	rows, err := r.pool.Query(ctx, iq, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ItemType, &item.ItemID, &item.Quantity, &item.PriceCents); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, item)
	}
	return &o, rows.Err()
}

// UpdateStatus sets the order status. Returns false if the order is absent.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) (bool, error) {
	const q = `UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`
	tag, err := r.pool.Exec(ctx, q, status, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// HasPaidCourseOrder reports whether the user has a paid (or later) order with
// a course-type line item referencing the course.
func (r *Repository) HasPaidCourseOrder(ctx context.Context, userID, courseID uuid.UUID) (bool, error) {
	const q = `SELECT 1 FROM orders o
		JOIN order_items i ON i.order_id = o.id
		WHERE o.user_id = $1
		  AND i.item_type = 'course'
		  AND i.item_id = $2
		  AND o.status IN ('paid', 'accepted', 'completed')
		LIMIT 1`
	var one int
	err := r.pool.QueryRow(ctx, q, userID, courseID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListPaidCourseUserIDs returns users with a paid order for the course.
// Used to snapshot enrolled students at session creation.
func (r *Repository) ListPaidCourseUserIDs(ctx context.Context, courseID uuid.UUID) ([]uuid.UUID, error) {
	const q = `SELECT DISTINCT o.user_id FROM orders o
		JOIN order_items i ON i.order_id = o.id
		WHERE i.item_type = 'course'
		  AND i.item_id = $1
		  AND o.status IN ('paid', 'accepted', 'completed')`
	rows, err := r.pool.Query(ctx, q, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
