// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// append-only UnitHistory table.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/hr-backoffice/internal/domain"
)

// AppendHistory records a snapshot of u with the given type symbol and
// links it to the unit's previous record. Records are never updated.
func AppendHistory(ctx context.Context, db *gorm.DB, u domain.StructuralUnit, historyType string, userID *string, at time.Time) (*domain.UnitHistory, error) {
	var prev []domain.UnitHistory
	if err := db.WithContext(ctx).
		Where("entity_kind = ? AND unit_id = ?", domain.EntityStructuralUnit, u.ID).
		Order("history_id DESC").
		Limit(1).
		Find(&prev).Error; err != nil {
		return nil, err
	}
	var prevID *uint
	if len(prev) == 1 {
		prevID = &prev[0].HistoryID
	}

	rec := &domain.UnitHistory{
		EntityKind:    domain.EntityStructuralUnit,
		UnitID:        u.ID,
		Name:          u.Name,
		CustomType:    u.CustomType,
		ParentID:      u.ParentID,
		IsActive:      u.IsActive,
		Level:         u.Level,
		Path:          u.Path,
		HistoryType:   historyType,
		HistoryDate:   at.UTC(),
		HistoryUserID: userID,
		PrevHistoryID: prevID,
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

// ListHistory returns a unit's records newest first. limit <= 0 returns all.
func ListHistory(ctx context.Context, db *gorm.DB, unitID uint, limit int) ([]domain.UnitHistory, error) {
	q := db.WithContext(ctx).
		Where("entity_kind = ? AND unit_id = ?", domain.EntityStructuralUnit, unitID).
		Order("history_date DESC, history_id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.UnitHistory
	err := q.Find(&out).Error
	return out, err
}

// GetHistoryByIDs returns history records keyed by history_id.
func GetHistoryByIDs(ctx context.Context, db *gorm.DB, ids []uint) (map[uint]domain.UnitHistory, error) {
	out := make(map[uint]domain.UnitHistory, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.UnitHistory
	if err := db.WithContext(ctx).Where("history_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.HistoryID] = r
	}
	return out, nil
}

// CountHistory returns how many records exist for a unit.
func CountHistory(ctx context.Context, db *gorm.DB, unitID uint) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.UnitHistory{}).
		Where("entity_kind = ? AND unit_id = ?", domain.EntityStructuralUnit, unitID).
		Count(&n).Error
	return n, err
}

// DeleteHistoryForUnits removes every record of the given units. Only the
// administrative hard delete uses it.
func DeleteHistoryForUnits(ctx context.Context, db *gorm.DB, unitIDs []uint) error {
	if len(unitIDs) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Where("entity_kind = ? AND unit_id IN ?", domain.EntityStructuralUnit, unitIDs).
		Delete(&domain.UnitHistory{}).Error
}
