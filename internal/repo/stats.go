// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/hr-backoffice/internal/domain"
)

// UnitsStats returns the number of units (active or not) and the greatest
// UpdatedAt among them. Any create, update or soft delete changes one of
// the two, which is what the units ETag needs.
func UnitsStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	return latestStats(db.WithContext(ctx).Model(&domain.StructuralUnit{}), "updated_at")
}

// AIQueriesStats returns the count and newest CreatedAt of a user's query log.
func AIQueriesStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxCreatedAt *time.Time, err error) {
	return latestStats(db.WithContext(ctx).Model(&domain.AIQuery{}).Where("user_id = ?", userID), "created_at")
}

// latestStats counts q and reads the greatest value of col.
func latestStats(q *gorm.DB, col string) (count int64, latest *time.Time, err error) {
	// Count
	if err = q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest timestamp (avoid MAX() -> TEXT in SQLite)
	var row struct {
		TS time.Time `gorm:"column:ts"`
	}
	if err = q.Session(&gorm.Session{}).Select(col + " AS ts").Order(col + " DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.TS, nil
}
