// Unit HTTP handlers.
//
// This file exposes the organizational structure:
//   - POST   /units                 (create; idempotent with Idempotency-Key)
//   - GET    /units                 (active units with children, ?type= filter, ETag)
//   - GET    /units/outline         (indented text outline)
//   - GET    /units/{id}            (unit + ancestor chain)
//   - PATCH  /units/{id}            (partial update)
//   - PUT    /units/{id}            (full replacement of editable fields)
//   - DELETE /units/{id}            (soft delete of the subtree, idempotent)
//   - GET    /units/{id}/history    (audit trail with diffs, ?limit=)
//   - GET    /units/{id}/diagram    (SVG)
//   - DELETE /admin/units/{id}      (hard delete, admin only)
package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/hr-backoffice/internal/audit"
	"github.com/tbourn/hr-backoffice/internal/domain"
	"github.com/tbourn/hr-backoffice/internal/http/middleware"
	"github.com/tbourn/hr-backoffice/internal/repo"
	"github.com/tbourn/hr-backoffice/internal/services"
	"github.com/tbourn/hr-backoffice/internal/utils"
)

//
// DTOs
//

// CreateUnitRequest is the JSON payload for creating a unit.
type CreateUnitRequest struct {
	// Name is unique among the active children of the same parent (1–100 chars).
	Name string `json:"name" binding:"required" example:"Payroll"`
	// CustomType is a free-form category such as "Department" (0–50 chars).
	CustomType string `json:"custom_type" example:"Team"`
	// ParentID places the unit under an active unit; omit for a root.
	ParentID *uint `json:"parent_id" example:"3"`
}

// OptionalID is a JSON field that distinguishes "absent" from "null".
type OptionalID struct {
	Set   bool
	Value *uint
}

// UnmarshalJSON records that the field was present; null clears the value.
func (o *OptionalID) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v uint
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// PatchUnitRequest is the JSON payload for a partial update. Absent fields
// are left unchanged; "parent_id": null moves the unit to the root level.
type PatchUnitRequest struct {
	Name       *string    `json:"name" example:"Payroll & Benefits"`
	CustomType *string    `json:"custom_type" example:"Team"`
	ParentID   OptionalID `json:"parent_id" swaggertype:"integer" example:"4"`
}

// PutUnitRequest replaces every editable field. An absent or null parent_id
// makes the unit a root.
type PutUnitRequest struct {
	Name       string `json:"name" binding:"required" example:"Payroll"`
	CustomType string `json:"custom_type" example:"Team"`
	ParentID   *uint  `json:"parent_id" example:"3"`
}

// UnitDetailResponse is a unit with its ancestor chain, root first.
type UnitDetailResponse struct {
	Unit      domain.StructuralUnit   `json:"unit"`
	Ancestors []domain.StructuralUnit `json:"ancestors"`
}

// ListUnitsResponse wraps the active units.
type ListUnitsResponse struct {
	Units []domain.StructuralUnit `json:"units"`
}

// OutlineResponse carries the indented structure listing.
type OutlineResponse struct {
	Outline string `json:"outline" example:"Company: Acme\n  Department: HR"`
}

// HistoryEntryResponse is one audit record with the fields it changed.
type HistoryEntryResponse struct {
	HistoryID  uint           `json:"history_id" example:"42"`
	Date       time.Time      `json:"date"`
	User       string         `json:"user" example:"jane"`
	ChangeType string         `json:"change_type" example:"updated"`
	Changes    []audit.Change `json:"changes"`
}

// HistoryResponse wraps a unit's audit trail, newest first.
type HistoryResponse struct {
	History []HistoryEntryResponse `json:"history"`
}

// HardDeleteResponse reports how many rows a hard delete removed.
type HardDeleteResponse struct {
	Deleted int `json:"deleted" example:"3"`
}

//
// Handlers
//

// CreateUnit godoc
// @ID          createUnit
// @Summary     Create a structural unit
// @Description Creates a unit under an optional active parent and records a "created" history entry.
// @Description Supports idempotency via the Idempotency-Key header.
// @Tags        Units
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string                      false "User ID"  example(user123)
// @Param       Idempotency-Key  header  string                      false "Idempotency key for safe retries"
// @Param       body             body    handlers.CreateUnitRequest  true  "Unit"
//
// @Success     201  {object}  domain.StructuralUnit
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /units [post]
func (h *Handlers) CreateUnit(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failField(c, http.StatusBadRequest, ErrCodeBadRequest, "name required", "name")
		return
	}

	idem, hasKey := middleware.IdempotencyFrom(c)

	// Idempotency (replay path).
	if hasKey && h.opts.DB != nil {
		if rec, err := repo.GetIdempotency(ctx, h.opts.DB, idem.User, idem.Scope, idem.Key, time.Now().UTC()); err == nil {
			if id, err := strconv.ParseUint(rec.ResultID, 10, 64); err == nil {
				if prev, err := repo.GetUnit(ctx, h.opts.DB, uint(id)); err == nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, rec.Status, prev)
					return
				}
			}
		}
	}

	u, err := h.unitSvc.Create(ctx, actorID(c), services.CreateUnitInput{
		Name:       req.Name,
		CustomType: req.CustomType,
		ParentID:   req.ParentID,
	})
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}

	// Idempotency (store path) – best effort.
	if hasKey && h.opts.DB != nil {
		_, _ = repo.CreateIdempotency(ctx, h.opts.DB, idem.User, idem.Scope, idem.Key,
			strconv.FormatUint(uint64(u.ID), 10), http.StatusCreated, h.opts.IdempotencyTTL)
	}
	ok(c, http.StatusCreated, u)
}

// ListUnits godoc
// @ID          listUnits
// @Summary     List active units
// @Description Returns active units with their active children, optionally filtered by custom type.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Units
// @Produce     json
//
// @Param       type           query   string  false "Custom type filter"          example(Department)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
//
// @Success     200  {object} handlers.ListUnitsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /units [get]
func (h *Handlers) ListUnits(c *gin.Context) {
	ctx := c.Request.Context()
	typ := strings.TrimSpace(c.Query("type"))

	// ETag pre-check (best effort).
	if h.opts.DB != nil {
		if count, latest, err := repo.UnitsStats(ctx, h.opts.DB); err == nil {
			if checkETag(c, "units:"+typ, count, latest) {
				return
			}
		}
	}

	items, err := h.unitSvc.List(ctx, typ)
	if err != nil {
		failErr(c, err, ErrCodeListFailed)
		return
	}
	if items == nil {
		items = []domain.StructuralUnit{}
	}
	ok(c, http.StatusOK, ListUnitsResponse{Units: items})
}

// UnitOutline godoc
// @ID          unitOutline
// @Summary     Outline of the active structure
// @Description Returns every active unit as "<type>: <name>" lines indented two spaces per level.
// @Tags        Units
// @Produce     json
//
// @Success     200  {object} handlers.OutlineResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /units/outline [get]
func (h *Handlers) UnitOutline(c *gin.Context) {
	out, err := h.unitSvc.Outline(c.Request.Context())
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, OutlineResponse{Outline: out})
}

// GetUnit godoc
// @ID          getUnit
// @Summary     Get a unit
// @Description Returns the unit and its ancestors (root first). Inactive units are returned too.
// @Tags        Units
// @Produce     json
//
// @Param       id  path  int  true  "Unit ID"  example(7)
//
// @Success     200  {object} handlers.UnitDetailResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Unit not found"
// @Router      /units/{id} [get]
func (h *Handlers) GetUnit(c *gin.Context) {
	id, okID := parseID(c, "id")
	if !okID {
		return
	}
	d, err := h.unitSvc.Get(c.Request.Context(), id)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	resp := UnitDetailResponse{Unit: d.Unit, Ancestors: d.Ancestors}
	if resp.Ancestors == nil {
		resp.Ancestors = []domain.StructuralUnit{}
	}
	ok(c, http.StatusOK, resp)
}

// PatchUnit godoc
// @ID          patchUnit
// @Summary     Update a unit
// @Description Changes only the supplied fields. "parent_id": null moves the unit to the root level;
// @Description the unit's subtree moves with it. Structural rules are checked before anything is written.
// @Tags        Units
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string                     false "User ID"  example(user123)
// @Param       id         path    int                        true  "Unit ID"  example(7)
// @Param       body       body    handlers.PatchUnitRequest  true  "Fields to change"
//
// @Success     200  {object} domain.StructuralUnit
// @Failure     400  {object} handlers.ErrorResponse "Validation failed"
// @Failure     404  {object} handlers.ErrorResponse "Unit not found"
// @Router      /units/{id} [patch]
func (h *Handlers) PatchUnit(c *gin.Context) {
	id, okID := parseID(c, "id")
	if !okID {
		return
	}
	var req PatchUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	in := services.UpdateUnitInput{Name: req.Name, CustomType: req.CustomType}
	if req.ParentID.Set {
		if req.ParentID.Value == nil {
			in.ClearParent = true
		} else {
			in.ParentID = req.ParentID.Value
		}
	}
	h.update(c, id, in)
}

// PutUnit godoc
// @ID          putUnit
// @Summary     Replace a unit's fields
// @Description Sets name, custom type and parent at once. An omitted parent_id makes the unit a root.
// @Tags        Units
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string                   false "User ID"  example(user123)
// @Param       id         path    int                      true  "Unit ID"  example(7)
// @Param       body       body    handlers.PutUnitRequest  true  "Unit"
//
// @Success     200  {object} domain.StructuralUnit
// @Failure     400  {object} handlers.ErrorResponse "Validation failed"
// @Failure     404  {object} handlers.ErrorResponse "Unit not found"
// @Router      /units/{id} [put]
func (h *Handlers) PutUnit(c *gin.Context) {
	id, okID := parseID(c, "id")
	if !okID {
		return
	}
	var req PutUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failField(c, http.StatusBadRequest, ErrCodeBadRequest, "name required", "name")
		return
	}
	in := services.UpdateUnitInput{
		Name:        &req.Name,
		CustomType:  &req.CustomType,
		ParentID:    req.ParentID,
		ClearParent: req.ParentID == nil,
	}
	h.update(c, id, in)
}

func (h *Handlers) update(c *gin.Context, id uint, in services.UpdateUnitInput) {
	u, err := h.unitSvc.Update(c.Request.Context(), actorID(c), id, in)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, u)
}

// DeleteUnit godoc
// @ID          deleteUnit
// @Summary     Deactivate a unit
// @Description Soft-deletes the unit and all its active descendants, recording a "deleted" entry for each.
// @Description Deleting an already inactive unit is a no-op.
// @Tags        Units
//
// @Param       X-User-ID  header  string  false "User ID"  example(user123)
// @Param       id         path    int     true  "Unit ID"  example(7)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Unit not found"
// @Router      /units/{id} [delete]
func (h *Handlers) DeleteUnit(c *gin.Context) {
	id, okID := parseID(c, "id")
	if !okID {
		return
	}
	if err := h.unitSvc.Delete(c.Request.Context(), actorID(c), id); err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// UnitHistory godoc
// @ID          unitHistory
// @Summary     Unit audit trail
// @Description Returns history entries newest first, each with the fields that changed relative to
// @Description the previous entry. limit <= 0 returns everything.
// @Tags        Units
// @Produce     json
//
// @Param       id     path   int  true   "Unit ID"           example(7)
// @Param       limit  query  int  false  "Maximum entries"   minimum(0) default(0)
//
// @Success     200  {object} handlers.HistoryResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Unit not found"
// @Router      /units/{id}/history [get]
func (h *Handlers) UnitHistory(c *gin.Context) {
	id, okID := parseID(c, "id")
	if !okID {
		return
	}
	limit := utils.AtoiDefault(c.Query("limit"), 0)
	if limit < 0 {
		failField(c, http.StatusBadRequest, ErrCodeBadRequest, "limit must not be negative", "limit")
		return
	}
	entries, err := h.unitSvc.History(c.Request.Context(), id, limit)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	out := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		changes := e.Changes
		if changes == nil {
			changes = []audit.Change{}
		}
		out = append(out, HistoryEntryResponse{
			HistoryID:  e.HistoryID,
			Date:       e.Date,
			User:       e.User,
			ChangeType: e.ChangeType,
			Changes:    changes,
		})
	}
	ok(c, http.StatusOK, HistoryResponse{History: out})
}

// UnitDiagram godoc
// @ID          unitDiagram
// @Summary     Unit diagram
// @Description Renders the unit and its active descendants as an SVG tree.
// @Tags        Units
// @Produce     image/svg+xml
//
// @Param       id  path  int  true  "Unit ID"  example(7)
//
// @Success     200  {file}   binary
// @Failure     404  {object} handlers.ErrorResponse "Unit not found"
// @Failure     502  {object} handlers.ErrorResponse "Renderer unavailable"
// @Router      /units/{id}/diagram [get]
func (h *Handlers) UnitDiagram(c *gin.Context) {
	id, okID := parseID(c, "id")
	if !okID {
		return
	}
	svg, err := h.unitSvc.Diagram(c.Request.Context(), id)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	c.Data(http.StatusOK, "image/svg+xml", svg)
}

// HardDeleteUnit godoc
// @ID          hardDeleteUnit
// @Summary     Permanently delete a unit
// @Description Removes the unit, its whole subtree and their history. Administrative use only.
// @Tags        Admin
// @Produce     json
//
// @Param       X-Admin-Token  header  string  true  "Admin token"
// @Param       id             path    int     true  "Unit ID"  example(7)
//
// @Success     200  {object} handlers.HardDeleteResponse
// @Failure     401  {object} handlers.ErrorResponse "Missing or wrong admin token"
// @Failure     404  {object} handlers.ErrorResponse "Unit not found"
// @Router      /admin/units/{id} [delete]
func (h *Handlers) HardDeleteUnit(c *gin.Context) {
	id, okID := parseID(c, "id")
	if !okID {
		return
	}
	n, err := h.unitSvc.HardDelete(c.Request.Context(), id)
	if err != nil {
		failErr(c, err, ErrCodeInternal)
		return
	}
	middleware.LoggerFrom(c).Warn().Uint("unit_id", id).Int("deleted", n).Msg("unit hard-deleted")
	ok(c, http.StatusOK, HardDeleteResponse{Deleted: n})
}
