package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vedalearn/backend/internal/errs"
	"github.com/vedalearn/backend/internal/models"
)

// Store persists conversations and their append-only messages.
type Store interface {
	GetOrCreateChat(ctx context.Context, a, b uuid.UUID) (*models.Chat, error)
	GetOrCreateForum(ctx context.Context, courseID uuid.UUID) (*models.Forum, error)
	AppendChatMessage(ctx context.Context, chatID, senderID uuid.UUID, body string) (*models.Message, error)
	AppendForumMessage(ctx context.Context, forumID, senderID uuid.UUID, body string) (*models.Message, error)
	ListChatMessages(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]models.Message, error)
	ListForumMessages(ctx context.Context, forumID uuid.UUID, limit, offset int) ([]models.Message, error)
}

// Service validates and persists room messages. Broadcast is the caller's
// responsibility and must happen only after a nil-error return, keeping
// durability ahead of visibility.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// SendDirect appends a message to the 1:1 conversation of sender and peer,
// creating it on first contact. Returns the stored message.
func (s *Service) SendDirect(ctx context.Context, senderID, peerID uuid.UUID, body string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errs.Validation("message body must not be empty")
	}
	if peerID == uuid.Nil {
		return nil, errs.Validation("peer id required")
	}
	if peerID == senderID {
		return nil, errs.Validation("cannot message yourself")
	}
	conv, err := s.store.GetOrCreateChat(ctx, senderID, peerID)
	if err != nil {
		return nil, fmt.Errorf("load chat: %w", err)
	}
	msg, err := s.store.AppendChatMessage(ctx, conv.ID, senderID, body)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// SendForum appends a message to the course forum, creating it lazily.
func (s *Service) SendForum(ctx context.Context, senderID, courseID uuid.UUID, body string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errs.Validation("message body must not be empty")
	}
	if courseID == uuid.Nil {
		return nil, errs.Validation("course id required")
	}
	forum, err := s.store.GetOrCreateForum(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("load forum: %w", err)
	}
	msg, err := s.store.AppendForumMessage(ctx, forum.ID, senderID, body)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// DirectHistory lists a 1:1 conversation's messages, oldest first.
func (s *Service) DirectHistory(ctx context.Context, userID, peerID uuid.UUID, limit, offset int) ([]models.Message, error) {
	conv, err := s.store.GetOrCreateChat(ctx, userID, peerID)
	if err != nil {
		return nil, fmt.Errorf("load chat: %w", err)
	}
	return s.store.ListChatMessages(ctx, conv.ID, limit, offset)
}

// ForumHistory lists a course forum's messages, oldest first.
func (s *Service) ForumHistory(ctx context.Context, courseID uuid.UUID, limit, offset int) ([]models.Message, error) {
	forum, err := s.store.GetOrCreateForum(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("load forum: %w", err)
	}
	return s.store.ListForumMessages(ctx, forum.ID, limit, offset)
}
