package graph

import (
	"fmt"
	"io"
	"sort"
)

// WriteDOT writes the graph in Graphviz DOT format. The label function
// renders a node key; pass nil to use the default %v formatting.
func (g *Graph[K]) WriteDOT(w io.Writer, label func(K) string) error {
	if label == nil {
		label = func(k K) string { return fmt.Sprintf("%v", k) }
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, err := fmt.Fprintln(w, "digraph dependencies {"); err != nil {
		return err
	}
	fmt.Fprintln(w, "  rankdir=LR;")
	fmt.Fprintln(w, "  node [shape=box];")

	// Stable node ids so the output is diffable.
	labels := make([]string, 0, len(g.nodes))
	byLabel := make(map[string]K, len(g.nodes))
	for key := range g.nodes {
		l := label(key)
		labels = append(labels, l)
		byLabel[l] = key
	}
	sort.Strings(labels)

	ids := make(map[K]string, len(labels))
	for i, l := range labels {
		key := byLabel[l]
		ids[key] = fmt.Sprintf("n%d", i)
		fmt.Fprintf(w, "  %s [label=%q];\n", ids[key], l)
	}

	for _, l := range labels {
		from := byLabel[l]
		for _, to := range g.edges[from] {
			fmt.Fprintf(w, "  %s -> %s;\n", ids[from], ids[to])
		}
	}

	_, err := fmt.Fprintln(w, "}")
	return err
}
