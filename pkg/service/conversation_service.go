package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/relaydeck/relaydeck/pkg/db"
	"github.com/relaydeck/relaydeck/pkg/event"
	"github.com/relaydeck/relaydeck/pkg/models"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func (s *ChatService) CreateConversation(ctx context.Context, req *models.CreateConversationRequest) (*models.Conversation, error) {
	conv := &db.Conversation{
		ID:     uuid.NewString(),
		Title:  req.Title,
		Status: db.ConversationStatusActive,
	}
	if conv.Title == "" {
		conv.Title = "New Chat"
	}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, errors.Wrap(err, "create conversation")
	}
	event.Emit(event.ConversationUpdatedEvent{ConversationID: conv.ID})
	return conv, nil
}

func (s *ChatService) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv db.Conversation
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get conversation")
	}
	return &conv, nil
}

// ListConversations returns conversations most recently active first,
// optionally filtered by status.
func (s *ChatService) ListConversations(ctx context.Context, status string, limit, offset int) (*models.ConversationListResponse, error) {
	limit = clampLimit(limit)
	q := s.db.WithContext(ctx).Model(&db.Conversation{})
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var convs []models.Conversation
	err := q.Order("updated_at DESC").Offset(offset).Limit(limit + 1).Find(&convs).Error
	if err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}

	hasMore := len(convs) > limit
	if hasMore {
		convs = convs[:limit]
	}
	return &models.ConversationListResponse{Conversations: convs, HasMore: hasMore}, nil
}

func (s *ChatService) UpdateConversation(ctx context.Context, id string, req *models.UpdateConversationRequest) (*models.Conversation, error) {
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Title != "" {
		conv.Title = req.Title
	}
	if req.Status != "" {
		if req.Status != db.ConversationStatusActive && req.Status != db.ConversationStatusArchived {
			return nil, errors.Errorf("invalid conversation status %q", req.Status)
		}
		conv.Status = req.Status
	}
	if err := s.db.WithContext(ctx).Save(conv).Error; err != nil {
		return nil, errors.Wrap(err, "update conversation")
	}
	event.Emit(event.ConversationUpdatedEvent{ConversationID: id})
	return conv, nil
}

// DeleteConversation removes a conversation and its messages. A live run is
// cancelled first so its persistence task stops writing into a dead row.
func (s *ChatService) DeleteConversation(ctx context.Context, id string) error {
	if _, err := s.GetConversation(ctx, id); err != nil {
		return err
	}
	s.registry.Cancel(id)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&db.Message{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&db.Conversation{}).Error
	})
	if err != nil {
		return errors.Wrap(err, "delete conversation")
	}
	event.Emit(event.ConversationDeletedEvent{ConversationID: id})
	return nil
}

// ListMessages pages through a conversation's transcript in insertion order.
// after is an exclusive message-id cursor; zero starts from the beginning.
func (s *ChatService) ListMessages(ctx context.Context, conversationID string, after uint64, limit int) (*models.MessageListResponse, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND id > ?", conversationID, after).
		Order("id ASC").Limit(limit + 1).Find(&msgs).Error
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	resp := &models.MessageListResponse{Messages: msgs, HasMore: hasMore}
	if len(msgs) > 0 {
		resp.NextCursor = msgs[len(msgs)-1].ID
	}
	return resp, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
