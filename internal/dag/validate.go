package dag

import (
	"container/heap"
	"sort"
)

// orderedHeap is a min-heap of indexes under less.
type orderedHeap struct {
	idx  []int
	less func(a, b int) bool
}

func (h orderedHeap) Len() int           { return len(h.idx) }
func (h orderedHeap) Less(i, j int) bool { return h.less(h.idx[i], h.idx[j]) }
func (h orderedHeap) Swap(i, j int)      { h.idx[i], h.idx[j] = h.idx[j], h.idx[i] }
func (h *orderedHeap) Push(x any)        { h.idx = append(h.idx, x.(int)) }
func (h *orderedHeap) Pop() any {
	old := h.idx
	n := len(old)
	x := old[n-1]
	h.idx = old[:n-1]
	return x
}

func (g *Graph) nameLess(a, b int) bool {
	pa, pb := g.nodes[a].Plan, g.nodes[b].Plan
	if pa.Name != pb.Name {
		return pa.Name < pb.Name
	}
	return pa.ID < pb.ID
}

// componentsLocked groups nodes into strongly connected components (Tarjan).
// comp maps a node to its component; members lists each component's nodes by
// name.
func (g *Graph) componentsLocked() (comp []int, members [][]int) {
	n := len(g.nodes)
	comp = make([]int, n)
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}
	var stack []int
	next := 0

	var visit func(u int)
	visit = func(u int) {
		index[u], low[u] = next, next
		next++
		stack = append(stack, u)
		onStack[u] = true
		for _, v := range g.outgoing[u] {
			if index[v] < 0 {
				visit(v)
				low[u] = min(low[u], low[v])
			} else if onStack[v] {
				low[u] = min(low[u], index[v])
			}
		}
		if low[u] != index[u] {
			return
		}
		c := len(members)
		var group []int
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			comp[w] = c
			group = append(group, w)
			if w == u {
				break
			}
		}
		sort.Slice(group, func(i, j int) bool { return g.nameLess(group[i], group[j]) })
		members = append(members, group)
	}

	for _, i := range g.byNameLocked() {
		if index[i] < 0 {
			visit(i)
		}
	}
	return comp, members
}

// topoOrderIndices returns a deterministic ordering of all node indexes.
//
// Cycles are collapsed into their strongly connected components first, then
// Kahn's algorithm runs over the components with a ready queue ordered by the
// first member name. Members of one component are emitted together, by name,
// so every plan outside a cycle still follows all of its ancestors.
func (g *Graph) topoOrderIndices() []int {
	comp, members := g.componentsLocked()

	indeg := make([]int, len(members))
	for u := range g.nodes {
		for _, v := range g.outgoing[u] {
			if comp[u] != comp[v] {
				indeg[comp[v]]++
			}
		}
	}

	ready := &orderedHeap{less: func(a, b int) bool {
		return g.nameLess(members[a][0], members[b][0])
	}}
	for c := range indeg {
		if indeg[c] == 0 {
			ready.idx = append(ready.idx, c)
		}
	}
	heap.Init(ready)

	out := make([]int, 0, len(g.nodes))
	for ready.Len() > 0 {
		c := heap.Pop(ready).(int)
		out = append(out, members[c]...)
		for _, u := range members[c] {
			for _, v := range g.outgoing[u] {
				if comp[v] == c {
					continue
				}
				indeg[comp[v]]--
				if indeg[comp[v]] == 0 {
					heap.Push(ready, comp[v])
				}
			}
		}
	}
	return out
}

// findCycleDeterministic performs a DFS in name order to extract one cycle
// path.
//
// This does not attempt to list all cycles; it returns a single stable witness.
func (g *Graph) findCycleDeterministic() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make([]int, len(g.nodes))
	parent := make([]int, len(g.nodes))
	for i := range parent {
		parent[i] = -1
	}

	var cycle []int

	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		for _, v := range g.outgoing[u] { // already sorted
			if color[v] == white {
				parent[v] = u
				if dfs(v) {
					return true
				}
				continue
			}
			if color[v] == gray {
				// Back-edge u -> v. Reconstruct v ... u -> v.
				cycle = append(cycle, v)
				cur := u
				for cur != -1 && cur != v {
					cycle = append(cycle, cur)
					cur = parent[cur]
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}

	for _, i := range g.byNameLocked() {
		if color[i] != white {
			continue
		}
		if dfs(i) {
			break
		}
	}

	if len(cycle) == 0 {
		return nil
	}

	// cycle is [v, u, ..., v] with the middle in parent-walk order; reverse it.
	out := make([]string, 0, len(cycle))
	for i := len(cycle) - 1; i >= 0; i-- {
		out = append(out, g.nodes[cycle[i]].Plan.Name)
	}
	return out
}
