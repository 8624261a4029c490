// Package graph builds the per-tick dependency graph over catalog tasks.
//
// The graph is rebuilt from the catalog snapshot once per tick and read-only
// afterwards; the children index is derived from parent declarations every
// build, never stored independently, so it cannot diverge from the edges.
package graph

import (
	"sort"
	"strings"

	"github.com/me/tempo/pkg/model"
)

// Graph is a validated directed acyclic graph over task ids.
type Graph struct {
	tasks    map[string]*model.Task
	children map[string][]string
	order    []string // topological, parents before children
}

// Build constructs a Graph from a catalog snapshot using Kahn's algorithm
// for topological sort and cycle detection.
//
// Tasks with integrity problems (duplicate ids, dangling parent references,
// membership in a dependency cycle) are excluded from the graph and returned
// as errors; the rest of the snapshot still schedules. Ordering is made
// deterministic by sorting ids at every step.
func Build(tasks []*model.Task) (*Graph, []*model.CatalogIntegrityError) {
	var errs []*model.CatalogIntegrityError

	index := make(map[string]*model.Task, len(tasks))
	for _, t := range tasks {
		if _, dup := index[t.ID]; dup {
			errs = append(errs, model.NewCatalogIntegrityError(t.ID, "duplicate task id"))
			continue
		}
		index[t.ID] = t
	}

	// A task referencing a parent absent from the snapshot is the offender;
	// it is dropped, its dependents stay and simply never see it fire.
	included := make(map[string]*model.Task, len(index))
	for id, t := range index {
		dangling := ""
		for _, dep := range t.DependsOn {
			if _, ok := index[dep.Parent]; !ok {
				dangling = dep.Parent
				break
			}
			if dep.Parent == id {
				dangling = id
				break
			}
		}
		if dangling == id {
			errs = append(errs, model.NewCatalogIntegrityError(id, "task depends on itself"))
			continue
		}
		if dangling != "" {
			errs = append(errs, model.NewCatalogIntegrityError(id, "dangling parent reference %q", dangling))
			continue
		}
		included[id] = t
	}

	// Kahn's algorithm over the included tasks. Edges only count when both
	// endpoints survived the checks above.
	forward := make(map[string][]string, len(included))
	inDegree := make(map[string]int, len(included))
	for id := range included {
		inDegree[id] = 0
	}
	for id, t := range included {
		for _, dep := range t.DependsOn {
			if _, ok := included[dep.Parent]; !ok {
				continue
			}
			forward[dep.Parent] = append(forward[dep.Parent], id)
			inDegree[id]++
		}
	}

	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		successors := forward[node]
		sort.Strings(successors)
		for _, succ := range successors {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
		sort.Strings(queue)
	}

	if len(order) != len(included) {
		var cycleNodes []string
		for id, deg := range inDegree {
			if deg > 0 {
				cycleNodes = append(cycleNodes, id)
			}
		}
		sort.Strings(cycleNodes)
		detail := "dependency cycle involving tasks: " + strings.Join(cycleNodes, ", ")
		for _, id := range cycleNodes {
			errs = append(errs, model.NewCatalogIntegrityError(id, "%s", detail))
			delete(included, id)
		}
	}

	g := &Graph{
		tasks:    included,
		children: make(map[string][]string, len(included)),
		order:    order,
	}
	for id, t := range included {
		for _, dep := range t.DependsOn {
			if _, ok := included[dep.Parent]; ok {
				g.children[dep.Parent] = append(g.children[dep.Parent], id)
			}
		}
	}
	for id := range g.children {
		sort.Strings(g.children[id])
	}

	sortErrs(errs)
	return g, errs
}

// Task returns the task for id, or nil if it is not in the graph.
func (g *Graph) Task(id string) *model.Task {
	return g.tasks[id]
}

// Order returns task ids in topological order, parents before children.
func (g *Graph) Order() []string {
	return g.order
}

// Children returns the ids of tasks that declare id as a parent. This is the
// derived fan-out index used on completion events.
func (g *Graph) Children(id string) []string {
	return g.children[id]
}

// Len returns the number of schedulable tasks in the graph.
func (g *Graph) Len() int {
	return len(g.tasks)
}

func sortErrs(errs []*model.CatalogIntegrityError) {
	sort.Slice(errs, func(i, j int) bool {
		if errs[i].TaskID != errs[j].TaskID {
			return errs[i].TaskID < errs[j].TaskID
		}
		return errs[i].Detail < errs[j].Detail
	})
}
