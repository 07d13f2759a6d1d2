// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ChatSession model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a session is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/hr-backoffice/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetChatSessionBySessionID fetches a session by its external UUID.
func GetChatSessionBySessionID(ctx context.Context, db *gorm.DB, sessionID string) (*domain.ChatSession, error) {
	var s domain.ChatSession
	if err := db.WithContext(ctx).Where("session_id = ?", sessionID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// GetChatSession fetches a session by primary key.
func GetChatSession(ctx context.Context, db *gorm.DB, id uint) (*domain.ChatSession, error) {
	var s domain.ChatSession
	if err := db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// GetOrCreateChatSession returns the session with sessionID, creating it
// for userID when missing. A blank stored name is backfilled with name.
// A concurrent insert of the same sessionID is resolved by re-reading; the
// insert runs in its own (nested) transaction so a unique violation does not
// abort a transaction db may already be part of.
func GetOrCreateChatSession(ctx context.Context, db *gorm.DB, sessionID, userID, name string) (*domain.ChatSession, bool, error) {
	s, err := GetChatSessionBySessionID(ctx, db, sessionID)
	switch {
	case err == nil:
		if s.Name == "" && name != "" {
			if err := UpdateChatSessionName(ctx, db, s.ID, name); err != nil {
				return nil, false, err
			}
			s.Name = name
		}
		return s, false, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, err
	}

	now := time.Now().UTC()
	s = &domain.ChatSession{SessionID: sessionID, UserID: userID, Name: name, CreatedAt: now, UpdatedAt: now}
	if err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(s).Error
	}); err != nil {
		if isUniqueViolation(err) {
			s, err = GetChatSessionBySessionID(ctx, db, sessionID)
			return s, false, err
		}
		return nil, false, err
	}
	return s, true, nil
}

// UpdateChatSessionName sets the display name of a session.
func UpdateChatSessionName(ctx context.Context, db *gorm.DB, id uint, name string) error {
	res := db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ?", id).
		Updates(map[string]any{"name": name, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TouchChatSession bumps updated_at so recently used sessions list first.
func TouchChatSession(ctx context.Context, db *gorm.DB, id uint) error {
	return db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ?", id).
		UpdateColumn("updated_at", time.Now().UTC()).Error
}

// ListChatSessions returns all sessions owned by userID, most recently
// active first.
func ListChatSessions(ctx context.Context, db *gorm.DB, userID string) ([]domain.ChatSession, error) {
	var out []domain.ChatSession
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC, id DESC").
		Find(&out).Error
	return out, err
}
