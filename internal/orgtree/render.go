package orgtree

import (
	"strings"
)

// DefaultTypeLabel replaces an empty custom type in outlines.
const DefaultTypeLabel = "Unit"

const indent = "  "

// Render returns the outline of the active subtrees rooted at roots, or of
// every active root when none are given. Each line is
// "<indent × relative depth><type>: <name>", children ordered by name.
// Inactive units and everything below them are omitted.
func (f *Forest) Render(roots ...uint) string {
	var b strings.Builder
	var walk func(id uint, depth int)
	walk = func(id uint, depth int) {
		n, ok := f.nodes[id]
		if !ok || !n.Active || depth > len(f.nodes) {
			return
		}
		b.WriteString(strings.Repeat(indent, depth))
		b.WriteString(Label(n))
		b.WriteByte('\n')
		for _, c := range f.children[id] {
			walk(c, depth+1)
		}
	}
	if len(roots) == 0 {
		roots = f.children[0]
	}
	for _, r := range roots {
		walk(r, 0)
	}
	return b.String()
}

// Label formats a node as "<type>: <name>".
func Label(n Node) string {
	t := n.Type
	if t == "" {
		t = DefaultTypeLabel
	}
	return t + ": " + n.Name
}

// OutlineLine is one parsed line of a rendered outline.
type OutlineLine struct {
	Depth int
	Type  string
	Name  string
}

// ParseOutline reverses Render: it recovers depth from indentation and
// splits the label at the first ": ". Blank lines are skipped.
func ParseOutline(s string) []OutlineLine {
	var out []OutlineLine
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		trimmed := strings.TrimLeft(line, " ")
		depth := (len(line) - len(trimmed)) / len(indent)
		typ, name, found := strings.Cut(trimmed, ": ")
		if !found {
			typ, name = "", trimmed
		}
		out = append(out, OutlineLine{Depth: depth, Type: typ, Name: name})
	}
	return out
}
