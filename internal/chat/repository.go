package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vedalearn/backend/internal/models"
)

// Repository is the pgx-backed Store.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetOrCreateChat loads the 1:1 conversation for a pair, creating it on first
// contact. The pair is stored in lexicographic order of the uuid string form,
// matching the room derivation, so (a,b) and (b,a) hit the same row.
func (r *Repository) GetOrCreateChat(ctx context.Context, a, b uuid.UUID) (*models.Chat, error) {
	userA, userB := a, b
	if userB.String() < userA.String() {
		userA, userB = userB, userA
	}
	const q = `
		INSERT INTO chats (user_a, user_b)
		VALUES ($1, $2)
		ON CONFLICT (user_a, user_b) DO UPDATE SET user_a = EXCLUDED.user_a
		RETURNING id, user_a, user_b, created_at`
	var c models.Chat
	if err := r.pool.QueryRow(ctx, q, userA, userB).Scan(&c.ID, &c.UserA, &c.UserB, &c.CreatedAt); err != nil {
		return nil, fmt.Errorf("get or create chat: %w", err)
	}
	return &c, nil
}

// GetOrCreateForum loads a course's forum, creating it lazily.
func (r *Repository) GetOrCreateForum(ctx context.Context, courseID uuid.UUID) (*models.Forum, error) {
	const q = `
		INSERT INTO forums (course_id)
		VALUES ($1)
		ON CONFLICT (course_id) DO UPDATE SET course_id = EXCLUDED.course_id
		RETURNING id, course_id, created_at`
	var f models.Forum
	if err := r.pool.QueryRow(ctx, q, courseID).Scan(&f.ID, &f.CourseID, &f.CreatedAt); err != nil {
		return nil, fmt.Errorf("get or create forum: %w", err)
	}
	return &f, nil
}

func (r *Repository) AppendChatMessage(ctx context.Context, chatID, senderID uuid.UUID, body string) (*models.Message, error) {
	const q = `
		INSERT INTO chat_messages (chat_id, sender_id, body)
		VALUES ($1, $2, $3)
		RETURNING id, chat_id, sender_id, body, created_at`
	var m models.Message
	if err := r.pool.QueryRow(ctx, q, chatID, senderID, body).Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.CreatedAt); err != nil {
		return nil, fmt.Errorf("append chat message: %w", err)
	}
	return &m, nil
}

func (r *Repository) AppendForumMessage(ctx context.Context, forumID, senderID uuid.UUID, body string) (*models.Message, error) {
	const q = `
		INSERT INTO forum_messages (forum_id, sender_id, body)
		VALUES ($1, $2, $3)
		RETURNING id, forum_id, sender_id, body, created_at`
	var m models.Message
	if err := r.pool.QueryRow(ctx, q, forumID, senderID, body).Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.CreatedAt); err != nil {
		return nil, fmt.Errorf("append forum message: %w", err)
	}
	return &m, nil
}

func (r *Repository) ListChatMessages(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]models.Message, error) {
	const q = `
		SELECT id, chat_id, sender_id, body, created_at
		FROM chat_messages WHERE chat_id = $1
		ORDER BY created_at LIMIT $2 OFFSET $3`
	return r.listMessages(ctx, q, chatID, limit, offset)
}

func (r *Repository) ListForumMessages(ctx context.Context, forumID uuid.UUID, limit, offset int) ([]models.Message, error) {
	const q = `
		SELECT id, forum_id, sender_id, body, created_at
		FROM forum_messages WHERE forum_id = $1
		ORDER BY created_at LIMIT $2 OFFSET $3`
	return r.listMessages(ctx, q, forumID, limit, offset)
}

func (r *Repository) listMessages(ctx context.Context, q string, convID uuid.UUID, limit, offset int) ([]models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, q, convID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
