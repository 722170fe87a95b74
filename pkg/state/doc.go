// Package state persists scope snapshots and restores them into live nodes.
//
// Responsibilities:
//   - Store only loads and saves a single snapshot for a single Ref.
//   - Save exports a node and writes it through a Store, guarded by ETag.
//   - Restore loads a snapshot and merges it into a node so that watchers on
//     the node fire on the next turn like for any other write.
//
// Data flow:
//
//	node.Export() -> Store.Save(ref, snapshot, meta) -> Meta
//	Store.Load(ref) -> node.Assign(snapshot)
//
// Deterministic keys:
//
//	Ref.Identifier() yields `domain/key`, used by both MemoryStore and
//	SQLiteStore as their primary key.
//
// Concurrency control:
//
//	A non-empty Meta.ETag passed to Store.Save is the ETag the caller expects
//	to overwrite. Stores reject the save with ErrETagMismatch when the stored
//	ETag differs. An empty ETag saves unconditionally.
package state
