// Package diagram draws a unit and its active descendants as a Graphviz
// digraph and renders it to SVG.
package diagram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/emicklei/dot"

	"github.com/tbourn/hr-backoffice/internal/orgtree"
)

// UntypedLabel is shown for units without a custom type.
const UntypedLabel = "untyped"

// Node fill colours.
const (
	activeFill   = "white"
	inactiveFill = "lightgrey"
)

// Build returns the graph of root and its active descendants, walked
// depth-first with children ordered by name. Each node is labelled
// "<name>\n(<type>)"; inactive nodes are filled grey.
func Build(f *orgtree.Forest, root uint) (*dot.Graph, error) {
	n, ok := f.Get(root)
	if !ok {
		return nil, fmt.Errorf("unit %d not in forest", root)
	}
	g := dot.NewGraph(dot.Directed)
	g.Attr("rankdir", "TB")

	var add func(n orgtree.Node) dot.Node
	add = func(n orgtree.Node) dot.Node {
		fill := activeFill
		if !n.Active {
			fill = inactiveFill
		}
		node := g.Node(strconv.FormatUint(uint64(n.ID), 10)).
			Label(label(n)).
			Attr("style", "filled").
			Attr("fillcolor", fill)
		for _, c := range f.Children(n.ID) {
			if !c.Active {
				continue
			}
			g.Edge(node, add(c))
		}
		return node
	}
	add(n)
	return g, nil
}

func label(n orgtree.Node) string {
	t := n.Type
	if t == "" {
		t = UntypedLabel
	}
	return n.Name + "\n(" + t + ")"
}

// Renderer turns DOT source into an image.
type Renderer interface {
	Render(ctx context.Context, src string) ([]byte, error)
}

// ErrRendererUnavailable is returned when the dot binary cannot be found.
var ErrRendererUnavailable = errors.New("graphviz dot binary not available")

// ExecRenderer runs the Graphviz "dot" binary.
type ExecRenderer struct {
	// Path to dot; empty means "dot" on PATH.
	Path string
	// Format passed as -T; empty means svg.
	Format string
}

// Render pipes src through dot and returns its stdout.
func (r ExecRenderer) Render(ctx context.Context, src string) ([]byte, error) {
	bin := r.Path
	if bin == "" {
		bin = "dot"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRendererUnavailable, err)
	}
	format := r.Format
	if format == "" {
		format = "svg"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "-T"+format)
	cmd.Stdin = bytes.NewBufferString(src)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("dot -T%s: %w: %s", format, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}

// RenderFunc adapts a function to Renderer.
type RenderFunc func(ctx context.Context, src string) ([]byte, error)

// Render calls f.
func (f RenderFunc) Render(ctx context.Context, src string) ([]byte, error) { return f(ctx, src) }
