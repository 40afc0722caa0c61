package graph

import (
	"sync"
)

// Graph tracks directed dependency edges between nodes identified by a
// comparable key. It answers cycle queries and produces topological
// orderings; it never drives resolution itself.
type Graph[K comparable] struct {
	mu    sync.RWMutex
	nodes map[K]struct{}
	edges map[K][]K // adjacency list: node -> its dependencies
}

// New creates an empty dependency graph.
func New[K comparable]() *Graph[K] {
	return &Graph[K]{
		nodes: make(map[K]struct{}),
		edges: make(map[K][]K),
	}
}

// AddNode adds a node and replaces its outgoing dependency edges.
// Dependency nodes that are not yet present are created implicitly.
func (g *Graph[K]) AddNode(key K, deps ...K) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes[key] = struct{}{}

	edges := make([]K, 0, len(deps))
	for _, dep := range deps {
		if _, exists := g.nodes[dep]; !exists {
			g.nodes[dep] = struct{}{}
		}
		edges = append(edges, dep)
	}

	if len(edges) > 0 {
		g.edges[key] = edges
	} else {
		delete(g.edges, key)
	}
}

// RemoveNode removes a node and every edge that points at it.
func (g *Graph[K]) RemoveNode(key K) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[key]; !exists {
		return
	}

	delete(g.nodes, key)
	delete(g.edges, key)

	for from, edges := range g.edges {
		filtered := edges[:0:0]
		for _, edge := range edges {
			if edge != key {
				filtered = append(filtered, edge)
			}
		}
		if len(filtered) == 0 {
			delete(g.edges, from)
		} else {
			g.edges[from] = filtered
		}
	}
}

// Has reports whether a node exists in the graph.
func (g *Graph[K]) Has(key K) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, exists := g.nodes[key]
	return exists
}

// Dependencies returns the direct dependencies of a node.
func (g *Graph[K]) Dependencies(key K) []K {
	g.mu.RLock()
	defer g.mu.RUnlock()

	edges, exists := g.edges[key]
	if !exists {
		return nil
	}

	result := make([]K, len(edges))
	copy(result, edges)
	return result
}

// Len returns the number of nodes in the graph.
func (g *Graph[K]) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.nodes)
}

// Clear removes all nodes and edges.
func (g *Graph[K]) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes = make(map[K]struct{})
	g.edges = make(map[K][]K)
}

// DetectCycles checks the whole graph for cycles.
func (g *Graph[K]) DetectCycles() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := make(map[K]bool, len(g.nodes))
	for key := range g.nodes {
		if visited[key] {
			continue
		}
		if err := g.detectCyclesFrom(key, visited); err != nil {
			return err
		}
	}

	return nil
}

// DetectCyclesFrom checks for cycles reachable from a specific node.
func (g *Graph[K]) DetectCyclesFrom(start K) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.detectCyclesFrom(start, make(map[K]bool))
}

// detectCyclesFrom performs iterative DFS with an explicit recursion stack.
// A node encountered while still on the stack signals a cycle.
// Callers must hold at least a read lock.
func (g *Graph[K]) detectCyclesFrom(start K, visited map[K]bool) error {
	if _, exists := g.nodes[start]; !exists {
		return nil
	}

	type frame struct {
		key       K
		unwinding bool
	}

	stack := []frame{{key: start}}
	onStack := make(map[K]bool)

	for len(stack) > 0 {
		top := &stack[len(stack)-1]

		if top.unwinding {
			// Fully explored, no cycle through this node.
			onStack[top.key] = false
			visited[top.key] = true
			stack = stack[:len(stack)-1]
			continue
		}

		if onStack[top.key] {
			return &CycleError[K]{
				Node: top.key,
				Path: g.cyclePath(top.key),
			}
		}

		if visited[top.key] {
			stack = stack[:len(stack)-1]
			continue
		}

		onStack[top.key] = true
		top.unwinding = true

		for _, dep := range g.edges[top.key] {
			if !visited[dep] {
				stack = append(stack, frame{key: dep})
			}
		}
	}

	return nil
}

// cyclePath reconstructs one cycle through start for error reporting.
// Callers must hold at least a read lock.
func (g *Graph[K]) cyclePath(start K) []K {
	parent := make(map[K]K)
	seen := map[K]bool{start: true}
	queue := []K{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range g.edges[current] {
			if next == start {
				// Walk parents back to start.
				path := []K{start}
				for at := current; at != start; at = parent[at] {
					path = append([]K{at}, path...)
					if len(path) > len(g.nodes) {
						break
					}
				}
				path = append([]K{start}, path...)
				return path
			}
			if !seen[next] {
				seen[next] = true
				parent[next] = current
				queue = append(queue, next)
			}
		}
	}

	return []K{start, start}
}

// TopologicalSort returns all nodes ordered so that every node appears
// after the nodes it depends on. Fails if the graph contains a cycle.
func (g *Graph[K]) TopologicalSort() ([]K, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	// Kahn's algorithm over pending-dependency counts.
	pending := make(map[K]int, len(g.nodes))
	dependents := make(map[K][]K, len(g.nodes))

	for key := range g.nodes {
		pending[key] = 0
	}
	for from, edges := range g.edges {
		pending[from] = len(edges)
		for _, dep := range edges {
			dependents[dep] = append(dependents[dep], from)
		}
	}

	queue := make([]K, 0, len(g.nodes))
	for key, count := range pending {
		if count == 0 {
			queue = append(queue, key)
		}
	}

	result := make([]K, 0, len(g.nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, dependent := range dependents[current] {
			pending[dependent]--
			if pending[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(g.nodes) {
		// Some node is on or behind a cycle; rerun DFS to name it.
		visited := make(map[K]bool, len(g.nodes))
		for key, count := range pending {
			if count > 0 && !visited[key] {
				if err := g.detectCyclesFrom(key, visited); err != nil {
					return nil, err
				}
			}
		}
	}

	return result, nil
}
