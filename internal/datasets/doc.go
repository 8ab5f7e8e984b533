// Package datasets keeps the provenance of every dataset in a project.
//
// Two indexes are maintained over the entity store:
//
//	datasets                   name -> current snapshot
//	datasets-provenance-tails  id   -> newest snapshot of each derivation chain
//
// Every update produces a new snapshot with a fresh identifier whose
// DerivedFrom points at the snapshot it replaces. Removal is a tombstone: the
// dataset leaves the current index but its chain stays reachable through the
// tails index and by id.
//
// Inconsistencies in pre-existing history (updating a tombstone, removing a
// dataset that does not exist) are not errors. They are returned as Warnings,
// logged and counted, and the operation completes.
package datasets
