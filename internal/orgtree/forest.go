// Package orgtree holds the in-memory model of the organizational-unit
// forest: structural invariants, traversal and the plain-text outline.
//
// A Forest is an arena keyed by unit id. Parent links are stored on the
// nodes; the children index is derived from them and kept sorted by name
// then id so every traversal is deterministic.
package orgtree

import (
	"cmp"
	"fmt"
	"iter"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxDepth is the deepest level a unit may sit at (root = 0).
const DefaultMaxDepth = 5

// MaxNameLen bounds a unit name in runes.
const MaxNameLen = 100

// MaxTypeLen bounds a unit custom type in runes.
const MaxTypeLen = 50

// Node is the structural view of one unit.
type Node struct {
	ID       uint
	ParentID *uint
	Name     string
	Type     string
	Active   bool
}

// Forest is a set of unit trees. The zero value is not usable; call New.
type Forest struct {
	maxDepth int
	nodes    map[uint]Node
	// children[0] lists the roots; unit ids start at 1.
	children map[uint][]uint
}

// New builds a forest from nodes. maxDepth <= 0 selects DefaultMaxDepth.
func New(maxDepth int, nodes []Node) *Forest {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	f := &Forest{
		maxDepth: maxDepth,
		nodes:    make(map[uint]Node, len(nodes)),
		children: make(map[uint][]uint),
	}
	for _, n := range nodes {
		f.nodes[n.ID] = n
	}
	f.reindex()
	return f
}

// MaxDepth returns the configured depth limit.
func (f *Forest) MaxDepth() int { return f.maxDepth }

// Len returns the number of units, active or not.
func (f *Forest) Len() int { return len(f.nodes) }

// Get returns the node with id.
func (f *Forest) Get(id uint) (Node, bool) {
	n, ok := f.nodes[id]
	return n, ok
}

// Set inserts or replaces a node and refreshes the children index.
// It does not validate; call Validate first.
func (f *Forest) Set(n Node) {
	f.nodes[n.ID] = n
	f.reindex()
}

// Remove drops a node. Children keep their parent link and become
// unreachable from the roots until they are removed too.
func (f *Forest) Remove(id uint) {
	delete(f.nodes, id)
	f.reindex()
}

func (f *Forest) reindex() {
	clear(f.children)
	for id, n := range f.nodes {
		key := uint(0)
		if n.ParentID != nil {
			key = *n.ParentID
		}
		f.children[key] = append(f.children[key], id)
	}
	for key, ids := range f.children {
		slices.SortFunc(ids, func(a, b uint) int {
			na, nb := f.nodes[a], f.nodes[b]
			if c := strings.Compare(na.Name, nb.Name); c != 0 {
				return c
			}
			return cmp.Compare(a, b)
		})
		f.children[key] = ids
	}
}

func (f *Forest) nodesOf(ids []uint) []Node {
	out := make([]Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.nodes[id])
	}
	return out
}

// Roots returns units without a parent, ordered by name.
func (f *Forest) Roots() []Node { return f.nodesOf(f.children[0]) }

// Children returns the direct children of id, ordered by name.
func (f *Forest) Children(id uint) []Node {
	if id == 0 {
		return nil
	}
	return f.nodesOf(f.children[id])
}

// Ancestors returns the chain from the root down to the parent of id.
// The walk is bounded by the arena size, so corrupt parent links cannot
// loop forever.
func (f *Forest) Ancestors(id uint) []Node {
	n, ok := f.nodes[id]
	if !ok {
		return nil
	}
	var chain []Node
	for p := n.ParentID; p != nil && len(chain) < len(f.nodes); {
		pn, ok := f.nodes[*p]
		if !ok {
			break
		}
		chain = append(chain, pn)
		p = pn.ParentID
	}
	slices.Reverse(chain)
	return chain
}

// Depth returns the number of ancestors of id; a root has depth 0.
func (f *Forest) Depth(id uint) int { return len(f.Ancestors(id)) }

// Descendants yields every unit below id in pre-order, siblings by name.
// The unit itself is not included.
func (f *Forest) Descendants(id uint) iter.Seq[Node] {
	return func(yield func(Node) bool) {
		if _, ok := f.nodes[id]; !ok {
			return
		}
		stack := slices.Clone(f.children[id])
		slices.Reverse(stack)
		seen := map[uint]bool{id: true}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if seen[cur] {
				continue
			}
			seen[cur] = true
			if !yield(f.nodes[cur]) {
				return
			}
			kids := f.children[cur]
			for i := len(kids) - 1; i >= 0; i-- {
				stack = append(stack, kids[i])
			}
		}
	}
}

// IsDescendant reports whether candidate sits anywhere below id.
func (f *Forest) IsDescendant(id, candidate uint) bool {
	for _, a := range f.Ancestors(candidate) {
		if a.ID == id {
			return true
		}
	}
	return false
}

// height returns how many levels sit below id (a leaf has height 0).
func (f *Forest) height(id uint) int {
	base := f.Depth(id)
	h := 0
	for d := range f.Descendants(id) {
		if rel := f.Depth(d.ID) - base; rel > h {
			h = rel
		}
	}
	return h
}

// SoftDeleteSet returns the ids a soft delete of id must deactivate: the
// unit and its currently active descendants, in pre-order. An inactive or
// unknown unit yields nil.
func (f *Forest) SoftDeleteSet(id uint) []uint {
	n, ok := f.nodes[id]
	if !ok || !n.Active {
		return nil
	}
	out := []uint{id}
	for d := range f.Descendants(id) {
		if d.Active {
			out = append(out, d.ID)
		}
	}
	return out
}

// SubtreeIDs returns id followed by all of its descendants, active or not.
func (f *Forest) SubtreeIDs(id uint) []uint {
	if _, ok := f.nodes[id]; !ok {
		return nil
	}
	out := []uint{id}
	for d := range f.Descendants(id) {
		out = append(out, d.ID)
	}
	return out
}

// Path returns the materialized path "/<root>/.../<id>/" for id.
func (f *Forest) Path(id uint) string {
	var b strings.Builder
	b.WriteByte('/')
	for _, a := range f.Ancestors(id) {
		fmt.Fprintf(&b, "%d/", a.ID)
	}
	fmt.Fprintf(&b, "%d/", id)
	return b.String()
}

// NormalizeName trims, collapses inner whitespace and composes to NFC so
// visually identical names compare equal.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

// NormalizeType applies the name rules to a custom type, so a type never
// carries a line break into an outline.
func NormalizeType(s string) string { return NormalizeName(s) }

// CheckName validates a normalized unit name.
func CheckName(name string) *ValidationError {
	switch {
	case name == "":
		return &ValidationError{Kind: KindInvalidName, Field: "name", Message: "name must not be empty"}
	case utf8.RuneCountInString(name) > MaxNameLen:
		return &ValidationError{Kind: KindInvalidName, Field: "name",
			Message: fmt.Sprintf("name must be at most %d characters", MaxNameLen)}
	}
	return nil
}

// CheckType validates a normalized custom type.
func CheckType(t string) *ValidationError {
	if utf8.RuneCountInString(t) > MaxTypeLen {
		return &ValidationError{Kind: KindInvalidName, Field: "custom_type",
			Message: fmt.Sprintf("custom_type must be at most %d characters", MaxTypeLen)}
	}
	return nil
}
