// Package audit computes field-level diffs between consecutive history
// snapshots of a structural unit and formats them for display.
package audit

import (
	"fmt"
	"strconv"
)

// History record type symbols as stored in the history table.
const (
	TypeCreated = "+"
	TypeUpdated = "~"
	TypeDeleted = "-"
)

// SystemActor is shown when a record has no resolvable user.
const SystemActor = "system"

// Snapshot is the tracked state of a unit at one point in time. Tree
// bookkeeping (level, path) is deliberately absent so it never shows up in
// a diff.
type Snapshot struct {
	Name       string
	CustomType string
	ParentID   *uint
	IsActive   bool
}

// Change is one field that differs between two snapshots.
type Change struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// Diff lists the fields that differ between prev and cur, in a fixed field
// order. A nil prev (first record of a unit) yields no changes.
func Diff(prev *Snapshot, cur Snapshot) []Change {
	changes := []Change{}
	if prev == nil {
		return changes
	}
	add := func(field, o, n string) {
		if o != n {
			changes = append(changes, Change{Field: field, Old: o, New: n})
		}
	}
	add("name", prev.Name, cur.Name)
	add("custom_type", prev.CustomType, cur.CustomType)
	add("parent", FormatParent(prev.ParentID), FormatParent(cur.ParentID))
	add("is_active", strconv.FormatBool(prev.IsActive), strconv.FormatBool(cur.IsActive))
	return changes
}

// FormatParent renders a parent reference for display; a root shows "None".
func FormatParent(p *uint) string {
	if p == nil {
		return "None"
	}
	return fmt.Sprintf("%d", *p)
}

// ChangeLabel maps a record type symbol to its display label. Unknown
// symbols are returned unchanged.
func ChangeLabel(symbol string) string {
	switch symbol {
	case TypeCreated:
		return "created"
	case TypeUpdated:
		return "updated"
	case TypeDeleted:
		return "deleted"
	default:
		return symbol
	}
}

// ActorName returns the resolved username, or SystemActor when the record's
// user is missing or could not be resolved.
func ActorName(name string, ok bool) string {
	if !ok || name == "" {
		return SystemActor
	}
	return name
}
