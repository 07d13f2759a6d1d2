package orgtree

import (
	"testing"
)

func TestRender(t *testing.T) {
	f := sampleForest(5)
	f.Set(Node{ID: 5, ParentID: ptr(3), Name: "Closed", Active: false})
	f.Set(Node{ID: 6, ParentID: ptr(5), Name: "Hidden", Active: false})

	want := "Company: Company\n" +
		"  Department: Engineering\n" +
		"    Unit: Backend\n" +
		"  Department: Sales\n"
	if got := f.Render(); got != want {
		t.Fatalf("Render() =\n%s\nwant\n%s", got, want)
	}
	if got := f.Render(2); got != "Department: Engineering\n  Unit: Backend\n" {
		t.Fatalf("Render(2) = %q", got)
	}
	if got := f.Render(5); got != "" {
		t.Fatalf("inactive subtree rendered: %q", got)
	}
}

func TestRender_Empty(t *testing.T) {
	if got := New(5, nil).Render(); got != "" {
		t.Fatalf("empty forest rendered %q", got)
	}
}

// parentsFromOutline rebuilds name -> parent name from indentation.
func parentsFromOutline(lines []OutlineLine) map[string]string {
	parents := map[string]string{}
	var stack []string
	for _, l := range lines {
		if l.Depth > len(stack) {
			return nil
		}
		stack = stack[:l.Depth]
		if l.Depth > 0 {
			parents[l.Name] = stack[l.Depth-1]
		} else {
			parents[l.Name] = ""
		}
		stack = append(stack, l.Name)
	}
	return parents
}

func assertNesting(t *testing.T, f *Forest, ids []uint) {
	t.Helper()
	lines := ParseOutline(f.Render())
	if len(lines) != len(ids) {
		t.Fatalf("expected %d lines, got %+v", len(ids), lines)
	}
	parents := parentsFromOutline(lines)
	for _, id := range ids {
		n, _ := f.Get(id)
		want := ""
		if n.ParentID != nil {
			p, _ := f.Get(*n.ParentID)
			want = p.Name
		}
		if got, ok := parents[n.Name]; !ok || got != want {
			t.Fatalf("parent of %s = %q, want %q", n.Name, got, want)
		}
	}
}

// Re-parsing the outline reproduces the parent/child nesting of the forest.
func TestRender_RoundTrip(t *testing.T) {
	f := New(5, []Node{
		{ID: 1, Name: "Group", Type: "Holding", Active: true},
		{ID: 2, ParentID: ptr(1), Name: "Ops", Active: true},
		{ID: 3, ParentID: ptr(2), Name: "Logistics", Type: "Team", Active: true},
		{ID: 4, ParentID: ptr(2), Name: "Facilities", Type: "Team", Active: true},
		{ID: 5, ParentID: ptr(1), Name: "Finance", Active: true},
		{ID: 6, Name: "Foundation", Type: "NGO", Active: true},
	})
	assertNesting(t, f, []uint{1, 2, 3, 4, 5, 6})

	lines := ParseOutline(f.Render())
	if want := (OutlineLine{Depth: 2, Type: "Team", Name: "Facilities"}); lines[4] != want {
		t.Fatalf("lines[4] = %+v, want %+v", lines[4], want)
	}
	if lines[2].Type != "Unit" {
		t.Fatalf("untyped unit rendered as %q", lines[2].Type)
	}
}

// Types and names that arrive with line breaks are flattened before they
// reach the tree, so the outline keeps one line per unit.
func TestRender_RoundTripWithMultilineType(t *testing.T) {
	f := New(5, []Node{
		{ID: 1, Name: NormalizeName("Company"), Type: NormalizeType("Corp\nEvil"), Active: true},
		{ID: 2, ParentID: ptr(1), Name: NormalizeName("Eng\n"), Type: NormalizeType("\tDept "), Active: true},
	})
	if got := f.Render(); got != "Corp Evil: Company\n  Dept: Eng\n" {
		t.Fatalf("Render() = %q", got)
	}
	assertNesting(t, f, []uint{1, 2})
}

func TestParseOutline_NoSeparator(t *testing.T) {
	lines := ParseOutline("Loose\n\n  Child: x\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %+v", lines)
	}
	if want := (OutlineLine{Depth: 0, Type: "", Name: "Loose"}); lines[0] != want {
		t.Fatalf("lines[0] = %+v", lines[0])
	}
	if lines[1].Depth != 1 {
		t.Fatalf("lines[1].Depth = %d", lines[1].Depth)
	}
}
