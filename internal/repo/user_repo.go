// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User
// model, used to resolve audit actors to display names.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/hr-backoffice/internal/domain"
)

// UpsertUser creates the user or refreshes its username.
func UpsertUser(ctx context.Context, db *gorm.DB, id, username string) error {
	now := time.Now().UTC()
	u := &domain.User{ID: id, Username: username, CreatedAt: now, UpdatedAt: now}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "updated_at"}),
		}).
		Create(u).Error
}

// UsernamesByID resolves ids to usernames. Unknown ids are absent from the map.
func UsernamesByID(ctx context.Context, db *gorm.DB, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.User
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ID] = r.Username
	}
	return out, nil
}
