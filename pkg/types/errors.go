package types

import "errors"

// Sentinel errors for the expected-failure kinds of spec.md §7. Internal
// routines prefer bool/sentinel-value returns (per §7 "Propagation");
// these are reserved for the transaction-level API where a Go error is the
// idiomatic surface.
var (
	// ErrVertexNotFound is returned by operations that require an
	// existing vertex.
	ErrVertexNotFound = errors.New("vertexdb: vertex not found")

	// ErrVertexExists is returned by insert_vertex on an already-existing
	// slot.
	ErrVertexExists = errors.New("vertexdb: vertex already exists")

	// ErrEdgeNotFound is returned by set_edge_property on a missing edge.
	// remove_edge of a missing edge is a no-op and does not return it.
	ErrEdgeNotFound = errors.New("vertexdb: edge not found")

	// ErrCommitPrecondition names the condition of a WriteTxn that mixes a
	// vertex removal with other operations in the same transaction
	// (spec.md §7 kind 3). WriteTxn.Commit reports that case by returning
	// false; no operation returns this error.
	ErrCommitPrecondition = errors.New("vertexdb: vertex removal cannot be combined with other operations in one transaction")

	// ErrShardNotFound names a read of a shard never allocated by a write.
	// No operation returns it: read paths treat such a shard as empty.
	ErrShardNotFound = errors.New("vertexdb: shard not found")

	// ErrPropertyKeyRange is returned when a property key index is
	// outside [0, VertexPropertyNum) or [0, EdgePropertyNum).
	ErrPropertyKeyRange = errors.New("vertexdb: property key out of range")

	// ErrAborted names an operation attempted after abort() or commit on
	// the owning transaction. No operation returns it: WriteTxn.Commit
	// after Abort or Commit returns false.
	ErrAborted = errors.New("vertexdb: transaction already aborted or committed")

	// ErrTooManyWorkers is returned by the reader/writer registry when
	// every slot in Config.MaxRegisteredWorkers is already taken.
	ErrTooManyWorkers = errors.New("vertexdb: registry has no free worker slots")
)
