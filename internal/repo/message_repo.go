// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model, including dedupe-key semantics for outbound idempotency.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/velora-ai/dealer-chat-backend/internal/domain"
)

// ErrDuplicate indicates that a message with the same dedupe key already
// exists in the conversation.
var ErrDuplicate = errors.New("duplicate")

// CreateMessage inserts a new message row. dedupeKey may be nil; when set,
// a unique-constraint violation surfaces as ErrDuplicate so a retried
// webhook delivery never yields a second bot message.
func CreateMessage(ctx context.Context, db *gorm.DB, conversationID, sender, msgType, content, channel string, mediaRef, dedupeKey *string) (*domain.Message, error) {
	m := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Sender:         sender,
		Type:           msgType,
		Content:        content,
		MediaRef:       mediaRef,
		Channel:        channel,
		DedupeKey:      dedupeKey,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return m, nil
}

// FindMessageByDedupeKey returns the previously persisted bot message for a
// dedupe key, or ErrNotFound.
func FindMessageByDedupeKey(ctx context.Context, db *gorm.DB, conversationID, key string) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Where("conversation_id = ? AND dedupe_key = ?", conversationID, key).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// DedupeKeyExists reports whether any message carries the given dedupe key.
// The key column is globally unique, so no conversation scope is needed.
func DedupeKeyExists(ctx context.Context, db *gorm.DB, key string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("dedupe_key = ?", key).
		Count(&n).Error
	return n > 0, err
}

// RecentMessages returns the most recent limit messages for a conversation
// in creation order ascending (oldest of the window first), the shape prompt
// construction expects.
func RecentMessages(ctx context.Context, db *gorm.DB, conversationID string, limit int) ([]domain.Message, error) {
	var newestFirst []domain.Message
	q := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&newestFirst).Error; err != nil {
		return nil, err
	}
	// reverse into ascending order
	out := make([]domain.Message, len(newestFirst))
	for i, m := range newestFirst {
		out[len(newestFirst)-1-i] = m
	}
	return out, nil
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID).
		Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
func ListMessagesPage(ctx context.Context, db *gorm.DB, conversationID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
