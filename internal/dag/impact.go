package dag

import (
	"sort"

	"lineage/internal/core"
)

// seedsLocked returns the node of plan planID if it declares an input
// related to path.
func (g *Graph) seedsLocked(planID, path string) []int {
	n, ok := g.byID[planID]
	if !ok {
		return nil
	}
	for _, in := range n.Plan.InputPaths() {
		if g.related(path, in) {
			return []int{n.index}
		}
	}
	return nil
}

// GetDependentPaths returns every output path reachable from the plan planID
// when path changes: the outputs of the plan itself and of all its
// transitive successors. Sorted, without duplicates.
func (g *Graph) GetDependentPaths(planID, path string) ([]string, error) {
	if err := g.load(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	paths := make(map[string]struct{})
	for _, idx := range g.closureLocked(g.seedsLocked(planID, path)) {
		for _, out := range g.nodes[idx].Plan.OutputPaths() {
			paths[out] = struct{}{}
		}
	}
	out := make([]string, 0, len(paths))
	for p := range paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// closureLocked is a breadth-first walk over successor edges. Every node is
// visited once, so cycles terminate.
func (g *Graph) closureLocked(seeds []int) []int {
	visited := make([]bool, len(g.nodes))
	queue := make([]int, 0, len(seeds))
	for _, s := range seeds {
		if !visited[s] {
			visited[s] = true
			queue = append(queue, s)
		}
	}
	for i := 0; i < len(queue); i++ {
		for _, next := range g.outgoing[queue[i]] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return queue
}

// GetDownstream partitions the plans affected by modified usages.
//
// A plan is affected when it used a modified path or depends on such a plan.
// An affected plan with an input related to any deleted path is blocked, the
// rest must re-run. Both lists follow TopologicalOrder.
func (g *Graph) GetDownstream(modified, deleted []core.PlanUsage) (rerun, blocked []*core.Plan, err error) {
	if err := g.load(); err != nil {
		return nil, nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	var seeds []int
	for _, u := range modified {
		seeds = append(seeds, g.seedsLocked(u.PlanID, u.Path)...)
	}
	affected := make(map[int]struct{})
	for _, idx := range g.closureLocked(seeds) {
		affected[idx] = struct{}{}
	}
	if len(affected) == 0 {
		return nil, nil, nil
	}

	for _, idx := range g.topoOrderIndices() {
		if _, ok := affected[idx]; !ok {
			continue
		}
		p := g.nodes[idx].Plan
		if g.usesAnyLocked(p, deleted) {
			blocked = append(blocked, p)
		} else {
			rerun = append(rerun, p)
		}
	}
	return rerun, blocked, nil
}

func (g *Graph) usesAnyLocked(p *core.Plan, usages []core.PlanUsage) bool {
	for _, u := range usages {
		for _, in := range p.InputPaths() {
			if g.related(in, u.Path) {
				return true
			}
		}
	}
	return false
}
