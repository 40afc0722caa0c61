package graph

import (
	"fmt"
	"strings"
)

// CycleError reports a circular dependency found during traversal.
type CycleError[K comparable] struct {
	Node K
	Path []K
}

func (e *CycleError[K]) Error() string {
	var b strings.Builder
	b.WriteString("circular dependency detected: ")

	if len(e.Path) == 0 {
		b.WriteString(fmt.Sprintf("%v -> %v", e.Node, e.Node))
		return b.String()
	}

	for i, node := range e.Path {
		if i > 0 {
			b.WriteString(" -> ")
		}
		b.WriteString(fmt.Sprintf("%v", node))
	}

	return b.String()
}
