// Package dag holds the dependency graph of plans and the impact analysis
// over it.
//
// Nodes are deduplicated plans: two plans with the same structural hash are
// the same node. Edges are never stored. They are derived from path
// containment between the outputs of one plan and the inputs of another and
// recomputed whenever the graph is loaded.
//
// Histories recorded by older tooling may contain cycles, so cycles are
// tolerated. Every traversal keeps a visited set, and TopologicalOrder emits
// the nodes trapped in cycles after the acyclic part. Cycle returns one
// deterministic witness when the graph is not a DAG.
package dag
