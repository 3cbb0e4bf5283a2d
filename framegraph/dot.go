package framegraph

import (
	"fmt"
	"io"
	"sort"
)

// WriteDOT renders the graph in Graphviz DOT form: one node per frame and
// one edge per transform, labeled with the edge timestamp.
func (g *Graph) WriteDOT(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "digraph framegraph {"); err != nil {
		return err
	}
	names := make([]string, 0, len(g.frames))
	for name := range g.frames {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		shape := "ellipse"
		if g.frames[name].landmark != nil {
			shape = "box"
		}
		if _, err := fmt.Fprintf(w, "  %q [shape=%s];\n", name, shape); err != nil {
			return err
		}
	}
	for _, e := range g.edges {
		if _, err := fmt.Fprintf(w, "  %q -> %q [label=%q];\n",
			e.Source, e.Target, e.Time.UTC().Format("15:04:05.000")); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}
