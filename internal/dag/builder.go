// Package dag builds and validates the app-level dependency graph derived
// from a taskconfig.View, and provides parent/child traversal at the
// (app, job_id) granularity (spec.md §4.2-4.5).
package dag

import (
	"fmt"
	"sort"

	"github.com/isabella232/stolos/internal/jobid"
	"github.com/isabella232/stolos/internal/stolerr"
	"github.com/isabella232/stolos/internal/taskconfig"
)

// Edge is a dependency-group-labeled edge from a parent app to a child app.
type Edge struct {
	Parent string
	Child  string
	Group  string
}

// Graph is a built, validated app-level dependency graph. It is immutable
// once returned from Build.
type Graph struct {
	view      *taskconfig.View
	succ      map[string][]Edge // parent app -> outgoing edges
	templates map[string]*jobid.Template
}

// Template returns app's compiled job-id template, if it declared one.
func (g *Graph) Template(app string) (*jobid.Template, bool) {
	t, ok := g.templates[app]
	return t, ok
}

// View returns the taskconfig.View this graph was built from.
func (g *Graph) View() *taskconfig.View { return g.view }

// Successors returns the outgoing edges from app, in a stable order.
func (g *Graph) Successors(app string) []Edge {
	edges := g.succ[app]
	out := make([]Edge, len(edges))
	copy(out, edges)
	return out
}

// Apps returns every app name in the graph, sorted for deterministic
// iteration (toposort.go relies on this for a stable output across runs).
func (g *Graph) Apps() []string {
	apps := g.view.Apps()
	sort.Strings(apps)
	return apps
}

// Build constructs and validates the dependency graph for view: every
// app_name referenced in a depends_on spec must exist (DAGMisconfigured
// otherwise), every spec's app_name list must be non-empty (validated
// already at decode time, re-checked here defensively), and the resulting
// graph must be acyclic (DAGMisconfigured on cycle).
func Build(view *taskconfig.View) (*Graph, error) {
	g := &Graph{view: view, succ: map[string][]Edge{}}

	apps := view.Apps()
	sort.Strings(apps)

	for _, app := range apps {
		desc, _ := view.Get(app)
		groupNames := make([]string, 0, len(desc.DependsOn))
		for name := range desc.DependsOn {
			groupNames = append(groupNames, name)
		}
		sort.Strings(groupNames)

		for _, groupName := range groupNames {
			group := desc.DependsOn[groupName]
			specs := group.SubGroups
			if group.Spec != nil {
				specs = []*taskconfig.DepSpec{group.Spec}
			}
			for _, spec := range specs {
				if len(spec.AppName) == 0 {
					return nil, stolerr.DAGMisconfigured(app, "", fmt.Sprintf("dependency group %q has an empty app_name list", groupName), nil)
				}
				for _, parent := range spec.AppName {
					if _, ok := view.Get(parent); !ok {
						return nil, stolerr.DAGMisconfigured(app, "", fmt.Sprintf("depends_on references unknown app %q", parent), nil)
					}
					g.succ[parent] = append(g.succ[parent], Edge{Parent: parent, Child: app, Group: groupName})
				}
			}
		}
	}

	if cyc := findCycle(g); cyc != nil {
		return nil, stolerr.DAGMisconfigured("", "", fmt.Sprintf("dependency graph has a cycle: %v", cyc), nil)
	}

	g.templates = map[string]*jobid.Template{}
	for _, app := range apps {
		desc, _ := view.Get(app)
		if desc.JobIDTemplate == "" {
			continue
		}
		tmpl, err := jobid.Compile(app, desc.JobIDTemplate)
		if err != nil {
			return nil, err
		}
		g.templates[app] = tmpl
	}

	return g, nil
}

// findCycle runs a standard three-color DFS cycle detection and returns the
// offending path if a cycle exists, or nil if the graph is acyclic.
func findCycle(g *Graph) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var path []string
	var cyclePath []string

	var visit func(node string) bool
	visit = func(node string) bool {
		color[node] = gray
		path = append(path, node)
		for _, e := range g.succ[node] {
			switch color[e.Child] {
			case gray:
				cyclePath = append(append([]string{}, path...), e.Child)
				return true
			case white:
				if visit(e.Child) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[node] = black
		return false
	}

	for _, app := range g.Apps() {
		if color[app] == white {
			if visit(app) {
				return cyclePath
			}
		}
	}
	return nil
}
