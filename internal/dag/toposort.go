package dag

// AppOrder returns every app in topological order (a parent always precedes
// its children), deterministic across runs for a fixed graph (spec.md §4.5).
func (g *Graph) AppOrder() []string {
	var order []string
	visited := map[string]bool{}

	var visit func(app string)
	visit = func(app string) {
		if visited[app] {
			return
		}
		visited[app] = true
		for _, e := range g.succ[app] {
			visit(e.Child)
		}
		order = append(order, app)
	}

	for _, app := range g.Apps() {
		visit(app)
	}

	// visit appends a node after all its descendants (post-order), so the
	// accumulated order is children-before-parents; reverse it.
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// TopologicalSort groups pairs by app and yields them in the app's
// topological position within g, preserving arbitrary-but-stable order
// within an app (spec.md §4.5, property P9).
func TopologicalSort(g *Graph, pairs []AppJob) []AppJob {
	byApp := map[string][]AppJob{}
	for _, p := range pairs {
		byApp[p.App] = append(byApp[p.App], p)
	}

	var out []AppJob
	for _, app := range g.AppOrder() {
		out = append(out, byApp[app]...)
	}
	return out
}
