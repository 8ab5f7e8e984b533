package dag

import "lineage/internal/core"

// Edge is a derived dependency: To consumes something From produces.
// Paths lists the input patterns of To that matched, sorted.
type Edge struct {
	From  string
	To    string
	Paths []string
}

// Node is a plan in the graph. Index is its insertion position and never
// changes.
type Node struct {
	Plan  *core.Plan
	index int
}

func (n *Node) Index() int { return n.index }

type edgeIndex struct {
	from int
	to   int
}
