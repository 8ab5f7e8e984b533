// Package core defines the domain model of the provenance core.
//
// # Core Types
//
// Dataset: one snapshot of a dataset's metadata. Its Name is stable for the
// lifetime of the dataset; Identifier and ID change on every mutation, and
// DerivedFrom links a snapshot to its predecessor.
//
// DatasetFile: a (path, checksum, add-time) record. Removed records are kept
// with a removal timestamp so the file history can always be reconstructed.
//
// Plan: a reusable execution template with declared input and output paths.
// Plans with the same StructuralHash are the same node of the dependency graph.
//
// Activity: one concrete execution of a Plan, referenced by plan id only.
//
// Committed snapshots are frozen; every mutator returns ErrImmutable for them.
package core
