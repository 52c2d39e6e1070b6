package calculator

import "sort"

// graph holds formula-to-formula edges. Variables are leaves and never appear.
type graph struct {
	order []string
	edges map[string][]string
}

// topoOrder returns every node once, dependencies first, visiting roots in
// registration order. Cycles are cut by the visited guard.
func (g *graph) topoOrder() []string {
	visited := make(map[string]bool, len(g.order))
	out := make([]string, 0, len(g.order))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, dep := range g.edges[id] {
			visit(dep)
		}
		out = append(out, id)
	}
	for _, id := range g.order {
		visit(id)
	}
	return out
}

// blocked returns, for every node that sits on a cycle or reaches one, the
// node ids of the cycle it hits first.
func (g *graph) blocked() map[string][]string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.order))
	cycles := make(map[string][]string)
	var stack []string

	var visit func(id string)
	visit = func(id string) {
		color[id] = grey
		stack = append(stack, id)
		for _, dep := range g.edges[id] {
			switch color[dep] {
			case white:
				visit(dep)
			case grey:
				start := len(stack) - 1
				for stack[start] != dep {
					start--
				}
				cycle := append([]string(nil), stack[start:]...)
				for _, member := range cycle {
					if _, seen := cycles[member]; !seen {
						cycles[member] = cycle
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
	}
	for _, id := range g.order {
		if color[id] == white {
			visit(id)
		}
	}
	if len(cycles) == 0 {
		return cycles
	}

	// Anything that reaches a cycle member inherits its cycle.
	var reach func(id string, seen map[string]bool) []string
	reach = func(id string, seen map[string]bool) []string {
		if c, ok := cycles[id]; ok {
			return c
		}
		if seen[id] {
			return nil
		}
		seen[id] = true
		for _, dep := range g.edges[id] {
			if c := reach(dep, seen); c != nil {
				return c
			}
		}
		return nil
	}
	out := make(map[string][]string, len(cycles))
	for id, c := range cycles {
		out[id] = c
	}
	for _, id := range g.order {
		if _, ok := out[id]; ok {
			continue
		}
		if c := reach(id, map[string]bool{}); c != nil {
			out[id] = c
		}
	}
	return out
}

// closure returns the ids transitively reachable from start through the
// reverse index, sorted.
func closure(reverse map[string][]string, start string) []string {
	seen := map[string]bool{}
	queue := []string{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dependent := range reverse[id] {
			if !seen[dependent] {
				seen[dependent] = true
				queue = append(queue, dependent)
			}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
