package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/relaydeck/relaydeck/pkg/db"
)

// TranscriptStore is the narrow persistence surface the streaming path needs.
// It is an interface so transcript tests can script write failures.
type TranscriptStore interface {
	CreateMessage(ctx context.Context, msg *db.Message) error
	UpdateMessageParts(ctx context.Context, id uint64, parts db.MessageParts, status string) error
	TouchConversation(ctx context.Context, conversationID string) error
}

type gormTranscriptStore struct {
	db *gorm.DB
}

// NewTranscriptStore wraps a gorm handle as a TranscriptStore.
func NewTranscriptStore(gdb *gorm.DB) TranscriptStore {
	return &gormTranscriptStore{db: gdb}
}

func (s *gormTranscriptStore) CreateMessage(ctx context.Context, msg *db.Message) error {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return errors.Wrap(err, "create message")
	}
	return nil
}

func (s *gormTranscriptStore) UpdateMessageParts(ctx context.Context, id uint64, parts db.MessageParts, status string) error {
	err := s.db.WithContext(ctx).Model(&db.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"parts": parts, "status": status}).Error
	if err != nil {
		return errors.Wrapf(err, "update message %d", id)
	}
	return nil
}

func (s *gormTranscriptStore) TouchConversation(ctx context.Context, conversationID string) error {
	err := s.db.WithContext(ctx).Model(&db.Conversation{}).
		Where("id = ?", conversationID).
		Update("updated_at", time.Now()).Error
	if err != nil {
		return errors.Wrapf(err, "touch conversation %s", conversationID)
	}
	return nil
}
