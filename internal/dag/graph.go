package dag

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"lineage/internal/core"
	"lineage/internal/entitystore"
	"lineage/internal/logger"
	"lineage/internal/metrics"
)

const plansIndexName = "plans"

type Options struct {
	// Root resolves relative plan paths. Defaults to ".".
	Root    string
	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// Graph is the dependency graph of all plans of a project.
//
// Plans are persisted in the "plans" index; the in-memory adjacency is built
// from it on first use and kept up to date by Add. Reads may run
// concurrently. Writers must be serialized by the caller.
type Graph struct {
	plans *entitystore.Index[*core.Plan]
	root  string

	log     *logger.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	loaded   bool
	nodes    []*Node
	byID     map[string]*Node
	byName   map[string]*Node
	byHash   map[string]*Node
	outgoing [][]int // by index, sorted by plan name
	incoming [][]int // by index, sorted by plan name
	labels   map[edgeIndex][]string
}

func planID(p *core.Plan) string { return p.ID }

func New(db *entitystore.Database, opts Options) (*Graph, error) {
	plans, err := entitystore.OpenIndex(db, plansIndexName, planID)
	if err != nil {
		return nil, errors.Wrap(err, "open plans index")
	}
	root := opts.Root
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve root %s", root)
	}
	return &Graph{
		plans:   plans,
		root:    abs,
		log:     logger.OrNop(opts.Logger).With("component", "dag"),
		metrics: opts.Metrics,
	}, nil
}

// Reset drops the in-memory adjacency. The next call reloads it from the
// plans index, e.g. after uncommitted changes were discarded.
func (g *Graph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loaded = false
	g.nodes = nil
}

// load materializes every plan once. Called without g.mu held.
func (g *Graph) load() error {
	g.mu.RLock()
	loaded := g.loaded
	g.mu.RUnlock()
	if loaded {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.loaded {
		return nil
	}
	g.nodes = nil
	g.byID = make(map[string]*Node)
	g.byName = make(map[string]*Node)
	g.byHash = make(map[string]*Node)
	g.outgoing = nil
	g.incoming = nil
	g.labels = make(map[edgeIndex][]string)

	for p, err := range g.plans.Values() {
		if err != nil {
			return errors.Wrap(err, "load plans")
		}
		if _, dup := g.byName[p.Name]; dup {
			g.log.Warn("stored plans share a name", "name", p.Name, "id", p.ID)
		}
		g.insertLocked(p)
	}
	g.loaded = true
	g.log.Debug("dependency graph loaded", "plans", len(g.nodes))
	return nil
}

// Add inserts a copy of plan unless a structurally equal plan exists, in which
// case the existing plan is returned. The returned plan is shared and must not
// be modified. A different plan with the same name is an
// invariant violation. A plan whose id is already present is returned as is.
func (g *Graph) Add(plan *core.Plan) (*core.Plan, error) {
	if plan == nil {
		return nil, graphErrorf(core.ErrInvalidPlan, "nil plan")
	}
	if err := plan.Validate(); err != nil {
		return nil, &GraphError{Kind: core.ErrInvalidPlan, Msg: err.Error()}
	}
	if err := g.load(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if n, ok := g.byHash[plan.StructuralHash()]; ok {
		g.metrics.PlanDeduped()
		return n.Plan, nil
	}
	if n, ok := g.byName[plan.Name]; ok {
		return nil, graphErrorf(ErrDuplicatePlanName, "%q is already used by %s", plan.Name, n.Plan.ID)
	}
	if n, ok := g.byID[plan.ID]; ok {
		g.log.Warn("plan id already present", "id", plan.ID, "name", plan.Name)
		return n.Plan, nil
	}

	plan = plan.Copy()
	if err := g.plans.Add(plan); err != nil {
		return nil, errors.Wrapf(err, "add plan %s", plan.Name)
	}
	g.insertLocked(plan)
	g.metrics.PlanInserted()
	g.log.Debug("plan inserted", "name", plan.Name, "id", plan.ID)
	return plan, nil
}

// insertLocked appends a node and connects it with every existing node in
// both directions.
func (g *Graph) insertLocked(p *core.Plan) {
	n := &Node{Plan: p, index: len(g.nodes)}
	g.nodes = append(g.nodes, n)
	g.outgoing = append(g.outgoing, nil)
	g.incoming = append(g.incoming, nil)
	g.byID[p.ID] = n
	if _, ok := g.byName[p.Name]; !ok {
		g.byName[p.Name] = n
	}
	if _, ok := g.byHash[p.StructuralHash()]; !ok {
		g.byHash[p.StructuralHash()] = n
	}

	for _, other := range g.nodes[:n.index] {
		g.connectLocked(n, other)
		g.connectLocked(other, n)
	}
}

func (g *Graph) connectLocked(from, to *Node) {
	var paths []string
	for _, out := range from.Plan.OutputPaths() {
		for _, in := range to.Plan.InputPaths() {
			if g.related(out, in) {
				paths = append(paths, in)
			}
		}
	}
	if len(paths) == 0 {
		return
	}
	sort.Strings(paths)
	paths = dedupSorted(paths)

	g.labels[edgeIndex{from: from.index, to: to.index}] = paths
	g.outgoing[from.index] = g.insertSorted(g.outgoing[from.index], to.index)
	g.incoming[to.index] = g.insertSorted(g.incoming[to.index], from.index)
}

func (g *Graph) insertSorted(list []int, idx int) []int {
	name := g.nodes[idx].Plan.Name
	pos := sort.Search(len(list), func(i int) bool {
		return g.nodes[list[i]].Plan.Name >= name
	})
	list = append(list, 0)
	copy(list[pos+1:], list[pos:])
	list[pos] = idx
	return list
}

func dedupSorted(s []string) []string {
	out := s[:0]
	for i, v := range s {
		if i == 0 || v != s[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// resolve makes p absolute against the graph root. Symlinks are not followed.
func (g *Graph) resolve(p string) string {
	if !filepath.IsAbs(p) {
		p = filepath.Join(g.root, p)
	}
	return filepath.Clean(p)
}

// isSuperPath reports whether parent equals child or is one of its ancestor
// directories.
func (g *Graph) isSuperPath(parent, child string) bool {
	rel, err := filepath.Rel(g.resolve(parent), g.resolve(child))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// related reports containment in either direction.
func (g *Graph) related(a, b string) bool {
	return g.isSuperPath(a, b) || g.isSuperPath(b, a)
}

// Plan returns the plan with the given id.
func (g *Graph) Plan(id string) (*core.Plan, bool, error) {
	if err := g.load(); err != nil {
		return nil, false, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.byID[id]
	if !ok {
		return nil, false, nil
	}
	return n.Plan, true, nil
}

// Plans returns every plan, sorted by name.
func (g *Graph) Plans() ([]*core.Plan, error) {
	if err := g.load(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*core.Plan, 0, len(g.nodes))
	for _, idx := range g.byNameLocked() {
		out = append(out, g.nodes[idx].Plan)
	}
	return out, nil
}

func (g *Graph) byNameLocked() []int {
	idx := make([]int, len(g.nodes))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return g.nameLess(idx[i], idx[j]) })
	return idx
}

// Edges returns every derived edge as (From, To) plan ids, ordered by the
// names of From then To.
func (g *Graph) Edges() ([]Edge, error) {
	if err := g.load(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, 0, len(g.labels))
	for _, from := range g.byNameLocked() {
		for _, to := range g.outgoing[from] {
			paths := g.labels[edgeIndex{from: from, to: to}]
			out = append(out, Edge{
				From:  g.nodes[from].Plan.ID,
				To:    g.nodes[to].Plan.ID,
				Paths: append([]string(nil), paths...),
			})
		}
	}
	return out, nil
}

// TopologicalOrder returns every plan so that no plan precedes one it
// depends on. Ties are broken by name. The plans of one cycle are kept
// together, by name, and still follow their ancestors.
func (g *Graph) TopologicalOrder() ([]*core.Plan, error) {
	if err := g.load(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	order := g.topoOrderIndices()
	out := make([]*core.Plan, 0, len(order))
	for _, idx := range order {
		out = append(out, g.nodes[idx].Plan)
	}
	return out, nil
}

// Cycle returns the plan names of one cycle, first name repeated at the end,
// or nil when the graph is acyclic.
func (g *Graph) Cycle() ([]string, error) {
	if err := g.load(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.findCycleDeterministic(), nil
}

// Validate returns a cycle error when the graph is not a DAG.
func (g *Graph) Validate() error {
	cycle, err := g.Cycle()
	if err != nil {
		return err
	}
	if cycle != nil {
		return cycleError(cycle)
	}
	return nil
}
