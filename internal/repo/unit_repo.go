// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// StructuralUnit model and the tree bookkeeping (level, path) kept on it.
//
// Functions take a *gorm.DB that may be a transaction; every mutation of
// the tree is expected to run inside one, after LockTree.
package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/hr-backoffice/internal/domain"
	"github.com/tbourn/hr-backoffice/internal/orgtree"
)

// treeLockKey is the advisory lock id guarding structural writes on PostgreSQL.
const treeLockKey int64 = 0x68725f74726565 // "hr_tree"

// LockTree serializes structural writes across processes. On PostgreSQL it
// takes a transaction-scoped advisory lock, released on commit or rollback.
// SQLite allows a single writer, so nothing is needed there. db must be a
// transaction.
func LockTree(ctx context.Context, db *gorm.DB) error {
	if !IsPostgres(db) {
		return nil
	}
	return db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(?)", treeLockKey).Error
}

// LoadForest reads the structural columns of every unit into an orgtree.Forest.
func LoadForest(ctx context.Context, db *gorm.DB, maxDepth int) (*orgtree.Forest, error) {
	var rows []domain.StructuralUnit
	err := db.WithContext(ctx).
		Model(&domain.StructuralUnit{}).
		Select("id", "name", "custom_type", "parent_id", "is_active").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	nodes := make([]orgtree.Node, 0, len(rows))
	for _, r := range rows {
		nodes = append(nodes, NodeOf(r))
	}
	return orgtree.New(maxDepth, nodes), nil
}

// NodeOf projects a unit onto its structural view.
func NodeOf(u domain.StructuralUnit) orgtree.Node {
	return orgtree.Node{ID: u.ID, ParentID: u.ParentID, Name: u.Name, Type: u.CustomType, Active: u.IsActive}
}

// CreateUnit inserts u and fills its path, which depends on the new id.
// u.Level must already be set by the caller.
func CreateUnit(ctx context.Context, db *gorm.DB, u *domain.StructuralUnit, parentPath string) error {
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	u.IsActive = true
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return err
	}
	if parentPath == "" {
		parentPath = "/"
	}
	u.Path = fmt.Sprintf("%s%d/", parentPath, u.ID)
	return db.WithContext(ctx).
		Model(&domain.StructuralUnit{}).
		Where("id = ?", u.ID).
		UpdateColumn("path", u.Path).Error
}

// GetUnit fetches a unit by id regardless of its active flag.
func GetUnit(ctx context.Context, db *gorm.DB, id uint) (*domain.StructuralUnit, error) {
	var u domain.StructuralUnit
	if err := db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUnitsByIDs returns the units with the given ids keyed by id.
func GetUnitsByIDs(ctx context.Context, db *gorm.DB, ids []uint) (map[uint]domain.StructuralUnit, error) {
	out := make(map[uint]domain.StructuralUnit, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.StructuralUnit
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ID] = r
	}
	return out, nil
}

// ListActiveUnits returns active units ordered by name, each with its
// active children preloaded. customType filters on an exact type when set.
func ListActiveUnits(ctx context.Context, db *gorm.DB, customType string) ([]domain.StructuralUnit, error) {
	q := db.WithContext(ctx).
		Preload("Children", func(tx *gorm.DB) *gorm.DB {
			return tx.Where("is_active = ?", true).Order("name ASC, id ASC")
		}).
		Where("is_active = ?", true)
	if customType != "" {
		q = q.Where("custom_type = ?", customType)
	}
	var out []domain.StructuralUnit
	err := q.Order("name ASC, id ASC").Find(&out).Error
	return out, err
}

// SaveUnitFields writes the audited columns of u plus updated_at.
func SaveUnitFields(ctx context.Context, db *gorm.DB, u *domain.StructuralUnit) error {
	u.UpdatedAt = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.StructuralUnit{}).
		Where("id = ?", u.ID).
		Updates(map[string]any{
			"name":        u.Name,
			"custom_type": u.CustomType,
			"parent_id":   u.ParentID,
			"updated_at":  u.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MoveSubtree rewrites path and level for every unit whose path starts
// with oldPath, the moved unit included.
func MoveSubtree(ctx context.Context, db *gorm.DB, oldPath, newPath string, levelDelta int) error {
	if oldPath == newPath && levelDelta == 0 {
		return nil
	}
	return db.WithContext(ctx).Exec(
		"UPDATE structural_units SET path = ? || substr(path, ?), level = level + ? WHERE path LIKE ?",
		newPath, len(oldPath)+1, levelDelta, oldPath+"%",
	).Error
}

// DeactivateUnits clears is_active on ids.
func DeactivateUnits(ctx context.Context, db *gorm.DB, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Model(&domain.StructuralUnit{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"is_active": false, "updated_at": time.Now().UTC()}).Error
}

// DeleteUnits removes rows physically. ids must be ordered parents first;
// they are deleted in reverse so parent restrictions never trip.
func DeleteUnits(ctx context.Context, db *gorm.DB, ids []uint) error {
	for i := len(ids) - 1; i >= 0; i-- {
		if err := db.WithContext(ctx).Delete(&domain.StructuralUnit{}, ids[i]).Error; err != nil {
			return err
		}
	}
	return nil
}
