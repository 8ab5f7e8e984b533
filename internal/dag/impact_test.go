package dag

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lineage/internal/core"
)

func usage(p *core.Plan, path string) core.PlanUsage {
	return core.PlanUsage{PlanID: p.ID, Path: path, Checksum: "new"}
}

// diamond: prep -> {left, right} -> join, plus an unrelated plan.
func diamond(t *testing.T) (*Graph, map[string]*core.Plan) {
	t.Helper()
	g, _, _ := newGraph(t)
	ps := map[string]*core.Plan{}
	for _, p := range []*core.Plan{
		plan("join", []string{"left.csv", "right.csv"}, []string{"final.csv"}),
		plan("right", []string{"clean/b.csv"}, []string{"right.csv"}),
		plan("left", []string{"clean/a.csv"}, []string{"left.csv"}),
		plan("prep", []string{"raw"}, []string{"clean"}),
		plan("unrelated", []string{"elsewhere"}, []string{"other"}),
	} {
		ps[p.Name] = mustAdd(t, g, p)
	}
	return g, ps
}

func TestTopologicalOrder_AncestorsFirst(t *testing.T) {
	g, _ := diamond(t)
	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	require.Equal(t, []string{"prep", "left", "right", "join", "unrelated"}, names(order))

	pos := map[string]int{}
	for i, p := range order {
		pos[p.ID] = i
	}
	edges, err := g.Edges()
	require.NoError(t, err)
	require.Len(t, edges, 4)
	for _, e := range edges {
		require.Less(t, pos[e.From], pos[e.To])
	}

	cycle, err := g.Cycle()
	require.NoError(t, err)
	require.Nil(t, cycle)
	require.NoError(t, g.Validate())
}

func TestGetDependentPaths_Acyclic(t *testing.T) {
	g, ps := diamond(t)
	paths, err := g.GetDependentPaths(ps["prep"].ID, "raw/input.csv")
	require.NoError(t, err)
	require.Equal(t, []string{"clean", "final.csv", "left.csv", "right.csv"}, paths)

	paths, err = g.GetDependentPaths(ps["left"].ID, "clean/a.csv")
	require.NoError(t, err)
	require.Equal(t, []string{"final.csv", "left.csv"}, paths)

	paths, err = g.GetDependentPaths(ps["left"].ID, "unused.csv")
	require.NoError(t, err)
	require.Empty(t, paths)
}

func TestGetDownstream_OrderedAndPartitioned(t *testing.T) {
	g, ps := diamond(t)

	rerun, blocked, err := g.GetDownstream([]core.PlanUsage{usage(ps["prep"], "raw")}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"prep", "left", "right", "join"}, names(rerun))
	require.Empty(t, blocked)

	rerun, blocked, err = g.GetDownstream(
		[]core.PlanUsage{usage(ps["prep"], "raw")},
		[]core.PlanUsage{usage(ps["right"], "clean/b.csv")},
	)
	require.NoError(t, err)
	// prep only produces clean/b.csv, so it is not blocked by its removal.
	require.Equal(t, []string{"prep", "left", "join"}, names(rerun))
	require.Equal(t, []string{"right"}, names(blocked))
}

func TestGetDownstream_DeletedMatchesAnyAffectedPlan(t *testing.T) {
	g, ps := diamond(t)
	// The deleted entry names a plan that is not the one using the path.
	rerun, blocked, err := g.GetDownstream(
		[]core.PlanUsage{usage(ps["left"], "clean/a.csv")},
		[]core.PlanUsage{{PlanID: ps["unrelated"].ID, Path: "right.csv"}},
	)
	require.NoError(t, err)
	require.Equal(t, []string{"left"}, names(rerun))
	require.Equal(t, []string{"join"}, names(blocked))
}

func TestGetDownstream_NothingAffected(t *testing.T) {
	g, ps := diamond(t)
	rerun, blocked, err := g.GetDownstream([]core.PlanUsage{usage(ps["join"], "nope")}, nil)
	require.NoError(t, err)
	require.Empty(t, rerun)
	require.Empty(t, blocked)
}

func TestGetDownstream_EndToEndScenario(t *testing.T) {
	g, _, _ := newGraph(t)
	mustAdd(t, g, plan("P1", []string{"src.csv"}, []string{"data/out.csv"}))
	p2 := mustAdd(t, g, plan("P2", []string{"data/out.csv"}, []string{"model.bin"}))
	mustAdd(t, g, plan("P3", []string{"model.bin"}, []string{"metrics.json"}))

	rerun, blocked, err := g.GetDownstream([]core.PlanUsage{usage(p2, "data/out.csv")}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"P2", "P3"}, names(rerun))
	require.Empty(t, blocked)
}

// cyclic: a <-> b, c depends on b, d is independent.
func cyclic(t *testing.T) (*Graph, map[string]*core.Plan) {
	t.Helper()
	g, _, _ := newGraph(t)
	ps := map[string]*core.Plan{}
	for _, p := range []*core.Plan{
		plan("a", []string{"y"}, []string{"x"}),
		plan("b", []string{"x"}, []string{"y"}),
		plan("c", []string{"y"}, []string{"z"}),
		plan("d", []string{"in"}, []string{"out"}),
	} {
		ps[p.Name] = mustAdd(t, g, p)
	}
	return g, ps
}

func TestCyclicGraph_Tolerated(t *testing.T) {
	g, _ := cyclic(t)

	cycle, err := g.Cycle()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "a"}, cycle)
	require.ErrorIs(t, g.Validate(), ErrCycleFound)

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "d"}, names(order))
}

func TestCyclicGraph_TraversalsTerminate(t *testing.T) {
	g, ps := cyclic(t)

	paths, err := g.GetDependentPaths(ps["a"].ID, "y")
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y", "z"}, paths)

	rerun, blocked, err := g.GetDownstream([]core.PlanUsage{usage(ps["b"], "x")}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, names(rerun))
	require.Empty(t, blocked)
}

func TestCyclicGraph_DownstreamFollowsCycle(t *testing.T) {
	g, _, _ := newGraph(t)
	src := mustAdd(t, g, plan("src", []string{"raw"}, []string{"seed"}))
	mustAdd(t, g, plan("m", []string{"seed", "n.out"}, []string{"m.out"}))
	mustAdd(t, g, plan("n", []string{"m.out"}, []string{"n.out"}))
	mustAdd(t, g, plan("after", []string{"n.out"}, []string{"report"}))

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	require.Equal(t, []string{"src", "m", "n", "after"}, names(order))

	rerun, blocked, err := g.GetDownstream([]core.PlanUsage{usage(src, "raw")}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"src", "m", "n", "after"}, names(rerun))
	require.Empty(t, blocked)
}
