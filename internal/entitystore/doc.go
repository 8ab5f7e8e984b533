// Package entitystore is the keyed object store underneath the provenance core.
//
// It is split into:
//   - Database: the set of persisted objects, addressed by an internal OID derived
//     from each object's domain identifier, plus the commit/discard boundary
//   - Index: a named key -> object mapping whose members stay ghosts (OID only)
//     until they are dereferenced
//   - Backend: where committed records live (memory, badger, or plain files)
//
// Nothing reaches a Backend before Commit. A failed mutation therefore leaves no
// persisted trace; callers recover by calling Discard, which rolls every index
// back to its last committed contents.
package entitystore
