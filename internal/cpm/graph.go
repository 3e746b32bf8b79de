package cpm

import (
	"slices"

	"github.com/kazz187/ganttguild/internal/task"
)

type edge struct {
	from, to string
	typ      task.DependencyType
	lag      int
}

// graph is the dependency network over schedulable (non-parent) tasks.
type graph struct {
	ids     []string
	index   map[string]int
	preds   map[string][]edge
	succs   map[string][]edge
	dropped []DroppedDependency
}

func isParent(h Hierarchy, id string) bool {
	return h != nil && h.IsParent(id)
}

// buildGraph indexes schedulable tasks and their usable dependencies.
// Unusable references are collected instead of failing the pass.
func buildGraph(tasks []*task.Task, h Hierarchy) *graph {
	g := &graph{
		index: make(map[string]int),
		preds: make(map[string][]edge),
		succs: make(map[string][]edge),
	}
	known := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		known[t.ID] = true
		if isParent(h, t.ID) {
			continue
		}
		if _, dup := g.index[t.ID]; dup {
			continue
		}
		g.index[t.ID] = len(g.ids)
		g.ids = append(g.ids, t.ID)
	}

	for _, t := range tasks {
		summary := isParent(h, t.ID)
		for _, dep := range t.Dependencies {
			reason := DropReason("")
			switch {
			case summary:
				reason = DropSummaryTask
			case dep.ID == t.ID:
				reason = DropSelf
			case !known[dep.ID]:
				reason = DropMissing
			case isParent(h, dep.ID):
				reason = DropParent
			case dep.Type != "" && !dep.Type.Valid():
				reason = DropInvalidType
			}
			if reason != "" {
				g.dropped = append(g.dropped, DroppedDependency{TaskID: t.ID, PredecessorID: dep.ID, Reason: reason})
				continue
			}
			typ := dep.Type
			if typ == "" {
				typ = task.DependencyFS
			}
			e := edge{from: dep.ID, to: t.ID, typ: typ, lag: dep.Lag}
			g.preds[t.ID] = append(g.preds[t.ID], e)
			g.succs[dep.ID] = append(g.succs[dep.ID], e)
		}
	}
	return g
}

// topoSort runs Kahn's algorithm, releasing ready tasks in input order.
func (g *graph) topoSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.ids))
	for _, id := range g.ids {
		inDegree[id] = len(g.preds[id])
	}

	var queue []string
	for _, id := range g.ids {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(g.ids))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		var ready []string
		for _, e := range g.succs[node] {
			inDegree[e.to]--
			if inDegree[e.to] == 0 {
				ready = append(ready, e.to)
			}
		}
		slices.SortFunc(ready, func(a, b string) int { return g.index[a] - g.index[b] })
		queue = append(queue, ready...)
	}

	if len(order) != len(g.ids) {
		return nil, &CycleError{Kind: CycleDependency, Path: g.findCycle()}
	}
	return order, nil
}

// findCycle walks the graph with white/gray/black colouring and returns the
// first cycle it meets.
func (g *graph) findCycle() []string {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(g.ids))
	parent := make(map[string]string)

	var dfs func(string) []string
	dfs = func(node string) []string {
		color[node] = gray
		for _, e := range g.succs[node] {
			next := e.to
			switch color[next] {
			case gray:
				cycle := []string{node}
				for cur := node; cur != next; {
					cur = parent[cur]
					cycle = append(cycle, cur)
				}
				slices.Reverse(cycle)
				return append(cycle, next)
			case white:
				parent[next] = node
				if cycle := dfs(next); cycle != nil {
					return cycle
				}
			}
		}
		color[node] = black
		return nil
	}

	for _, id := range g.ids {
		if color[id] == white {
			if cycle := dfs(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// checkHierarchy reports a cycle in the ParentID relation.
func checkHierarchy(tasks []*task.Task) error {
	parentOf := make(map[string]string, len(tasks))
	for _, t := range tasks {
		parentOf[t.ID] = t.ParentID
	}

	done := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		onPath := make(map[string]int)
		var path []string
		for cur := t.ID; cur != "" && !done[cur]; cur = parentOf[cur] {
			if i, seen := onPath[cur]; seen {
				cycle := append(slices.Clone(path[i:]), cur)
				return &CycleError{Kind: CycleParent, Path: cycle}
			}
			if _, ok := parentOf[cur]; !ok {
				break
			}
			onPath[cur] = len(path)
			path = append(path, cur)
		}
		for _, id := range path {
			done[id] = true
		}
	}
	return nil
}

// DetectCycle reports whether tasks contain a parent or dependency cycle,
// using the same graph rules as Calculate. It returns nil or a *CycleError.
func DetectCycle(tasks []*task.Task, h Hierarchy) error {
	if err := checkHierarchy(tasks); err != nil {
		return err
	}
	if h == nil {
		h = task.NewSnapshot(tasks)
	}
	if _, err := buildGraph(tasks, h).topoSort(); err != nil {
		return err
	}
	return nil
}
