// Package entity implements entity identity, lazy references and structural
// diffs.
//
// An *Entity is a loaded record. A *LazyRef stands in for an entity that may
// not be loaded yet: it answers identity questions immediately and loads
// through its Session on the first data access. Both implement Ref, so
// relationship slots and callers can hold either.
//
// Identity is not value equality. IsEqual compares client ids when both
// sides have one, and otherwise compares type (covariantly) and server id.
//
// Lifecycle of a LazyRef:
//
//	unresolved --data access / Load--> loading --ok--> resolved
//	                                           \--err--> failed
//
// Resolved and failed are terminal. A failed reference is not retried.
//
// Mutation is single-writer. Group writes with BeginChanges/End or Batch so
// observers see one Change per batch.
package entity
