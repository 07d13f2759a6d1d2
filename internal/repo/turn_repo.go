// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for ChatTurn,
// the durable transcript of a chat session.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/hr-backoffice/internal/domain"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CreateTurn appends one turn to a session transcript.
func CreateTurn(ctx context.Context, db *gorm.DB, chatSessionID uint, role, content string, at time.Time) (*domain.ChatTurn, error) {
	t := &domain.ChatTurn{
		ID:            uuid.NewString(),
		ChatSessionID: chatSessionID,
		Role:          role,
		Content:       content,
		CreatedAt:     at.UTC(),
	}
	return t, db.WithContext(ctx).Create(t).Error
}

// ListTurns returns turns ordered deterministically (CreatedAt ASC, ID ASC).
// limit <= 0 returns the whole transcript.
func ListTurns(ctx context.Context, db *gorm.DB, chatSessionID uint, limit int) ([]domain.ChatTurn, error) {
	var out []domain.ChatTurn
	q := db.WithContext(ctx).Where("chat_session_id = ?", chatSessionID).Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountTurns returns the number of turns in a session transcript.
func CountTurns(ctx context.Context, db *gorm.DB, chatSessionID uint) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.ChatTurn{}).Where("chat_session_id = ?", chatSessionID).Count(&total).Error
	return total, err
}

// ListTurnsPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
func ListTurnsPage(ctx context.Context, db *gorm.DB, chatSessionID uint, offset, limit int) ([]domain.ChatTurn, error) {
	var out []domain.ChatTurn
	err := db.WithContext(ctx).
		Where("chat_session_id = ?", chatSessionID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
