// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the AIQuery
// log of answered prompts.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/hr-backoffice/internal/domain"
)

// CreateAIQuery logs one answered prompt.
func CreateAIQuery(ctx context.Context, db *gorm.DB, userID, message, response string, chatSessionID *uint) (*domain.AIQuery, error) {
	q := &domain.AIQuery{
		ID:            uuid.NewString(),
		UserID:        userID,
		Message:       message,
		Response:      response,
		ChatSessionID: chatSessionID,
		CreatedAt:     time.Now().UTC(),
	}
	return q, db.WithContext(ctx).Create(q).Error
}

// GetAIQuery fetches a query log row by id.
func GetAIQuery(ctx context.Context, db *gorm.DB, id string) (*domain.AIQuery, error) {
	var q domain.AIQuery
	if err := db.WithContext(ctx).Where("id = ?", id).First(&q).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

// CountAIQueries returns the number of logged prompts of userID.
func CountAIQueries(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.AIQuery{}).Where("user_id = ?", userID).Count(&total).Error
	return total, err
}

// ListAIQueriesPage returns userID's log newest first.
func ListAIQueriesPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.AIQuery, error) {
	var out []domain.AIQuery
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListSessionAIQueries returns the log rows of one session, oldest first.
func ListSessionAIQueries(ctx context.Context, db *gorm.DB, chatSessionID uint) ([]domain.AIQuery, error) {
	var out []domain.AIQuery
	err := db.WithContext(ctx).
		Where("chat_session_id = ?", chatSessionID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
