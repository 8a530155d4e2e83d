package notifications

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vedalearn/backend/internal/models"
)

// Repository handles notification persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a notification repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a single notification.
func (r *Repository) Create(ctx context.Context, n *models.Notification) error {
	const q = `INSERT INTO notifications (user_id, title, message, link, category, priority, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, n.UserID, n.Title, n.Message, n.Link, n.Category, n.Priority, n.Metadata).
		Scan(&n.ID, &n.CreatedAt)
}

// CreateBulk inserts one row per recipient via COPY and returns the count.
func (r *Repository) CreateBulk(ctx context.Context, ns []models.Notification) (int, error) {
	if len(ns) == 0 {
		return 0, nil
	}
	rows := make([][]interface{}, 0, len(ns))
	for i := range ns {
		n := &ns[i]
		rows = append(rows, []interface{}{n.UserID, n.Title, n.Message, n.Link, string(n.Category), string(n.Priority), n.Metadata})
	}
	count, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"notifications"},
		[]string{"user_id", "title", "message", "link", "category", "priority", "metadata"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// List returns a user's notifications, newest first. unreadOnly filters to
// unread; limit/offset paginate.
func (r *Repository) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	q := `SELECT id, user_id, title, message, link, category, priority, is_read, metadata, created_at
		FROM notifications WHERE user_id = $1`
	if unreadOnly {
		q += ` AND NOT is_read`
	}
	q += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Link, &n.Category, &n.Priority, &n.IsRead, &n.Metadata, &n.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// GetByID returns one notification owned by the user.
func (r *Repository) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Notification, error) {
	const q = `SELECT id, user_id, title, message, link, category, priority, is_read, metadata, created_at
		FROM notifications WHERE id = $1 AND user_id = $2`
	var n models.Notification
	err := r.pool.QueryRow(ctx, q, id, userID).
		Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Link, &n.Category, &n.Priority, &n.IsRead, &n.Metadata, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// MarkRead flags one notification as read. Returns false if not owned/absent.
func (r *Repository) MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	const q = `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`
	tag, err := r.pool.Exec(ctx, q, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkAllRead flags all of the user's notifications as read.
func (r *Repository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	const q = `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`
	tag, err := r.pool.Exec(ctx, q, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Delete removes one notification owned by the user.
func (r *Repository) Delete(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	const q = `DELETE FROM notifications WHERE id = $1 AND user_id = $2`
	tag, err := r.pool.Exec(ctx, q, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteAll removes all of the user's notifications.
func (r *Repository) DeleteAll(ctx context.Context, userID uuid.UUID) (int, error) {
	const q = `DELETE FROM notifications WHERE user_id = $1`
	tag, err := r.pool.Exec(ctx, q, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
