// Package services – UnitService
//
// This file implements UnitService, the only mutation entry point for the
// organizational structure. Every mutation runs in one transaction that
// locks the tree, loads the current forest, validates the proposed state
// with orgtree, writes the unit rows and appends audit history. Nothing is
// written when validation fails.
//
// Queries cover listing (with eager-loaded active children), retrieval with
// the ancestor chain, history with per-record diffs, the textual outline
// and the SVG diagram.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/hr-backoffice/internal/audit"
	"github.com/tbourn/hr-backoffice/internal/diagram"
	"github.com/tbourn/hr-backoffice/internal/domain"
	"github.com/tbourn/hr-backoffice/internal/observability"
	"github.com/tbourn/hr-backoffice/internal/orgtree"
	"github.com/tbourn/hr-backoffice/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// UnitService coordinates structural unit mutations and queries.
type UnitService struct {
	DB *gorm.DB

	// MaxDepth is the deepest allowed level (roots are level 0).
	// Values <= 0 fall back to orgtree.DefaultMaxDepth.
	MaxDepth int

	// Renderer turns DOT source into SVG. Diagram fails with ErrUpstream
	// when it is nil.
	Renderer diagram.Renderer
}

// CreateUnitInput carries the fields of a new unit.
type CreateUnitInput struct {
	Name       string
	CustomType string
	ParentID   *uint
}

// UpdateUnitInput carries a partial update. Nil fields are left unchanged;
// ClearParent moves the unit to the root level and wins over ParentID.
type UpdateUnitInput struct {
	Name        *string
	CustomType  *string
	ParentID    *uint
	ClearParent bool
}

// UnitDetail is a unit with its ancestor chain, root first.
type UnitDetail struct {
	Unit      domain.StructuralUnit
	Ancestors []domain.StructuralUnit
}

// HistoryEntry is one audit record prepared for display.
type HistoryEntry struct {
	HistoryID  uint
	Date       time.Time
	User       string
	ChangeType string
	Changes    []audit.Change
}

func (s *UnitService) maxDepth() int {
	if s.MaxDepth <= 0 {
		return orgtree.DefaultMaxDepth
	}
	return s.MaxDepth
}

// actorRef maps an empty actor to a system-attributed record.
func actorRef(actor string) *string {
	if actor = strings.TrimSpace(actor); actor == "" {
		return nil
	}
	return &actor
}

// Create validates and persists a new unit and records its "created" entry.
func (s *UnitService) Create(ctx context.Context, actor string, in CreateUnitInput) (*domain.StructuralUnit, error) {
	tr := otel.Tracer("services/UnitService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", actor)),
	)
	defer span.End()

	name := orgtree.NormalizeName(in.Name)
	if verr := orgtree.CheckName(name); verr != nil {
		return nil, verr
	}
	typ := orgtree.NormalizeType(in.CustomType)
	if verr := orgtree.CheckType(typ); verr != nil {
		return nil, verr
	}

	u := &domain.StructuralUnit{Name: name, CustomType: typ, ParentID: in.ParentID}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.LockTree(ctx, tx); err != nil {
			return err
		}
		f, err := repo.LoadForest(ctx, tx, s.maxDepth())
		if err != nil {
			return err
		}
		if err := f.Validate(0, in.ParentID, name); err != nil {
			return err
		}

		parentPath := ""
		if in.ParentID != nil {
			u.Level = f.Depth(*in.ParentID) + 1
			parentPath = f.Path(*in.ParentID)
		}
		if err := repo.CreateUnit(ctx, tx, u, parentPath); err != nil {
			return err
		}
		_, err = repo.AppendHistory(ctx, tx, *u, audit.TypeCreated, actorRef(actor), u.CreatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("unit.id", int64(u.ID)))
	observability.UnitMutation("create")
	return u, nil
}

// Update applies in to an active unit after validating the complete
// post-update state, moves the subtree bookkeeping when the parent
// changes and records an "updated" entry. An update that changes nothing
// returns the unit without writing history.
func (s *UnitService) Update(ctx context.Context, actor string, id uint, in UpdateUnitInput) (*domain.StructuralUnit, error) {
	tr := otel.Tracer("services/UnitService")
	ctx, span := tr.Start(ctx, "Update",
		trace.WithAttributes(
			attribute.Int64("unit.id", int64(id)),
			attribute.String("user.id", actor),
		),
	)
	defer span.End()

	var out *domain.StructuralUnit
	changed := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.LockTree(ctx, tx); err != nil {
			return err
		}
		u, err := repo.GetUnit(ctx, tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnitNotFound
			}
			return err
		}
		if !u.IsActive {
			return ErrUnitNotFound
		}

		next := *u
		if in.Name != nil {
			next.Name = orgtree.NormalizeName(*in.Name)
			if verr := orgtree.CheckName(next.Name); verr != nil {
				return verr
			}
		}
		if in.CustomType != nil {
			next.CustomType = orgtree.NormalizeType(*in.CustomType)
			if verr := orgtree.CheckType(next.CustomType); verr != nil {
				return verr
			}
		}
		switch {
		case in.ClearParent:
			next.ParentID = nil
		case in.ParentID != nil:
			pid := *in.ParentID
			next.ParentID = &pid
		}

		out = u
		if len(audit.Diff(snapshotOf(*u), *snapshotOf(next))) == 0 {
			return nil
		}

		f, err := repo.LoadForest(ctx, tx, s.maxDepth())
		if err != nil {
			return err
		}
		if err := f.Validate(id, next.ParentID, next.Name); err != nil {
			return err
		}

		reparent := !sameParent(u.ParentID, next.ParentID)
		if reparent {
			oldPath, oldLevel := f.Path(id), f.Depth(id)
			f.Set(repo.NodeOf(next))
			next.Path, next.Level = f.Path(id), f.Depth(id)
			if err := repo.MoveSubtree(ctx, tx, oldPath, next.Path, next.Level-oldLevel); err != nil {
				return err
			}
		}
		if err := repo.SaveUnitFields(ctx, tx, &next); err != nil {
			return err
		}
		if _, err := repo.AppendHistory(ctx, tx, next, audit.TypeUpdated, actorRef(actor), next.UpdatedAt); err != nil {
			return err
		}
		out, changed = &next, true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		observability.UnitMutation("update")
	}
	return out, nil
}

// Delete soft-deletes an active unit and every active descendant, one
// "deleted" entry per affected unit. Deleting an inactive unit is a no-op.
func (s *UnitService) Delete(ctx context.Context, actor string, id uint) error {
	tr := otel.Tracer("services/UnitService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.Int64("unit.id", int64(id)),
			attribute.String("user.id", actor),
		),
	)
	defer span.End()

	var affected []uint
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.LockTree(ctx, tx); err != nil {
			return err
		}
		f, err := repo.LoadForest(ctx, tx, s.maxDepth())
		if err != nil {
			return err
		}
		if _, ok := f.Get(id); !ok {
			return ErrUnitNotFound
		}
		affected = f.SoftDeleteSet(id)
		if len(affected) == 0 {
			return nil
		}
		if err := repo.DeactivateUnits(ctx, tx, affected); err != nil {
			return err
		}
		units, err := repo.GetUnitsByIDs(ctx, tx, affected)
		if err != nil {
			return err
		}
		at := time.Now().UTC()
		for _, uid := range affected {
			if _, err := repo.AppendHistory(ctx, tx, units[uid], audit.TypeDeleted, actorRef(actor), at); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("units.affected", len(affected)))
	if len(affected) > 0 {
		observability.UnitMutation("delete")
	}
	return nil
}

// HardDelete physically removes a unit, its whole subtree (active or not)
// and their history. It bypasses the audit trail and is meant for
// administrators only. It returns the number of removed units.
func (s *UnitService) HardDelete(ctx context.Context, id uint) (int, error) {
	tr := otel.Tracer("services/UnitService")
	ctx, span := tr.Start(ctx, "HardDelete",
		trace.WithAttributes(attribute.Int64("unit.id", int64(id))),
	)
	defer span.End()

	var ids []uint
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.LockTree(ctx, tx); err != nil {
			return err
		}
		f, err := repo.LoadForest(ctx, tx, s.maxDepth())
		if err != nil {
			return err
		}
		ids = f.SubtreeIDs(id)
		if len(ids) == 0 {
			return ErrUnitNotFound
		}
		if err := repo.DeleteHistoryForUnits(ctx, tx, ids); err != nil {
			return err
		}
		return repo.DeleteUnits(ctx, tx, ids)
	})
	if err != nil {
		return 0, err
	}
	observability.UnitMutation("hard_delete")
	return len(ids), nil
}

// Get returns a unit with its ancestors. Inactive units are returned too so
// their history stays reachable.
func (s *UnitService) Get(ctx context.Context, id uint) (*UnitDetail, error) {
	tr := otel.Tracer("services/UnitService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(attribute.Int64("unit.id", int64(id))),
	)
	defer span.End()

	u, err := repo.GetUnit(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnitNotFound
		}
		return nil, err
	}
	f, err := repo.LoadForest(ctx, s.DB, s.maxDepth())
	if err != nil {
		return nil, err
	}
	chain := f.Ancestors(id)
	ids := make([]uint, 0, len(chain))
	for _, a := range chain {
		ids = append(ids, a.ID)
	}
	byID, err := repo.GetUnitsByIDs(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}
	out := &UnitDetail{Unit: *u, Ancestors: make([]domain.StructuralUnit, 0, len(ids))}
	for _, aid := range ids {
		out.Ancestors = append(out.Ancestors, byID[aid])
	}
	return out, nil
}

// List returns active units, optionally filtered by custom type, with
// their active children.
func (s *UnitService) List(ctx context.Context, customType string) ([]domain.StructuralUnit, error) {
	tr := otel.Tracer("services/UnitService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(attribute.String("unit.type", customType)),
	)
	defer span.End()

	return repo.ListActiveUnits(ctx, s.DB, strings.TrimSpace(customType))
}

// History returns up to limit entries newest first (limit <= 0: all), each
// diffed against the record that preceded it.
func (s *UnitService) History(ctx context.Context, id uint, limit int) ([]HistoryEntry, error) {
	tr := otel.Tracer("services/UnitService")
	ctx, span := tr.Start(ctx, "History",
		trace.WithAttributes(
			attribute.Int64("unit.id", int64(id)),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	if _, err := repo.GetUnit(ctx, s.DB, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnitNotFound
		}
		return nil, err
	}
	recs, err := repo.ListHistory(ctx, s.DB, id, limit)
	if err != nil {
		return nil, err
	}

	// Previous records of the oldest listed entries may fall outside limit.
	known := make(map[uint]domain.UnitHistory, len(recs))
	for _, r := range recs {
		known[r.HistoryID] = r
	}
	var missing []uint
	for _, r := range recs {
		if r.PrevHistoryID != nil {
			if _, ok := known[*r.PrevHistoryID]; !ok {
				missing = append(missing, *r.PrevHistoryID)
			}
		}
	}
	extra, err := repo.GetHistoryByIDs(ctx, s.DB, missing)
	if err != nil {
		return nil, err
	}
	for k, v := range extra {
		known[k] = v
	}

	userIDs := make([]string, 0, len(recs))
	for _, r := range recs {
		if r.HistoryUserID != nil {
			userIDs = append(userIDs, *r.HistoryUserID)
		}
	}
	names, err := repo.UsernamesByID(ctx, s.DB, userIDs)
	if err != nil {
		return nil, err
	}

	out := make([]HistoryEntry, 0, len(recs))
	for _, r := range recs {
		var prev *audit.Snapshot
		if r.PrevHistoryID != nil {
			if p, ok := known[*r.PrevHistoryID]; ok {
				prev = historySnapshot(p)
			}
		}
		var name string
		ok := false
		if r.HistoryUserID != nil {
			name, ok = names[*r.HistoryUserID]
		}
		out = append(out, HistoryEntry{
			HistoryID:  r.HistoryID,
			Date:       r.HistoryDate,
			User:       audit.ActorName(name, ok),
			ChangeType: audit.ChangeLabel(r.HistoryType),
			Changes:    audit.Diff(prev, *historySnapshot(r)),
		})
	}
	return out, nil
}

// Outline renders the active forest as an indented "<type>: <name>" listing.
func (s *UnitService) Outline(ctx context.Context) (string, error) {
	tr := otel.Tracer("services/UnitService")
	ctx, span := tr.Start(ctx, "Outline")
	defer span.End()

	f, err := repo.LoadForest(ctx, s.DB, s.maxDepth())
	if err != nil {
		return "", err
	}
	return f.Render(), nil
}

// Diagram renders the unit and its active descendants as SVG.
func (s *UnitService) Diagram(ctx context.Context, id uint) ([]byte, error) {
	tr := otel.Tracer("services/UnitService")
	ctx, span := tr.Start(ctx, "Diagram",
		trace.WithAttributes(attribute.Int64("unit.id", int64(id))),
	)
	defer span.End()

	f, err := repo.LoadForest(ctx, s.DB, s.maxDepth())
	if err != nil {
		return nil, err
	}
	if _, ok := f.Get(id); !ok {
		return nil, ErrUnitNotFound
	}
	g, err := diagram.Build(f, id)
	if err != nil {
		return nil, err
	}
	if s.Renderer == nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, diagram.ErrRendererUnavailable)
	}
	svg, err := s.Renderer.Render(ctx, g.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return svg, nil
}

func snapshotOf(u domain.StructuralUnit) *audit.Snapshot {
	return &audit.Snapshot{Name: u.Name, CustomType: u.CustomType, ParentID: u.ParentID, IsActive: u.IsActive}
}

func historySnapshot(h domain.UnitHistory) *audit.Snapshot {
	return &audit.Snapshot{Name: h.Name, CustomType: h.CustomType, ParentID: h.ParentID, IsActive: h.IsActive}
}

func sameParent(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
