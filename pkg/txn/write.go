package txn

import (
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/cuemby/vertexdb/pkg/metrics"
	"github.com/cuemby/vertexdb/pkg/shard"
	"github.com/cuemby/vertexdb/pkg/types"
)

type opKind int

const (
	opInsertVertex opKind = iota
	opRemoveVertex
	opSetVertexProperty
	opInsertEdge
	opRemoveEdge
	opSetEdgeProperty
)

type vertexOp struct {
	kind  opKind
	v     types.VertexID
	key   types.PropertyKey
	value types.PropertyValue
}

type edgeOp struct {
	kind  opKind
	src   types.VertexID
	dst   types.VertexID
	props []types.PropertyValue
	key   types.PropertyKey
	value types.PropertyValue
}

// WriteTxn buffers a sequence of vertex and edge operations and applies
// them to every touched shard atomically with Commit (spec.md §6
// "begin_write"): nothing is visible to any reader until Commit returns.
type WriteTxn struct {
	mgr        *Manager
	workerSlot int
	vertexOps  []vertexOp
	edgeOps    []edgeOp
	done       bool
}

// BeginWrite reserves a worker slot and returns an empty WriteTxn ready
// to buffer operations.
func (m *Manager) BeginWrite() (*WriteTxn, error) {
	slot, err := m.registry.Register()
	if err != nil {
		return nil, err
	}
	return &WriteTxn{mgr: m, workerSlot: slot}, nil
}

func (w *WriteTxn) InsertVertex(v types.VertexID) {
	w.vertexOps = append(w.vertexOps, vertexOp{kind: opInsertVertex, v: v})
}

func (w *WriteTxn) RemoveVertex(v types.VertexID) {
	w.vertexOps = append(w.vertexOps, vertexOp{kind: opRemoveVertex, v: v})
}

func (w *WriteTxn) SetVertexProperty(v types.VertexID, key types.PropertyKey, value types.PropertyValue) {
	w.vertexOps = append(w.vertexOps, vertexOp{kind: opSetVertexProperty, v: v, key: key, value: value})
}

func (w *WriteTxn) InsertEdge(src, dst types.VertexID, props []types.PropertyValue) {
	w.edgeOps = append(w.edgeOps, edgeOp{kind: opInsertEdge, src: src, dst: dst, props: props})
}

func (w *WriteTxn) RemoveEdge(src, dst types.VertexID) {
	w.edgeOps = append(w.edgeOps, edgeOp{kind: opRemoveEdge, src: src, dst: dst})
}

func (w *WriteTxn) SetEdgeProperty(src, dst types.VertexID, key types.PropertyKey, value types.PropertyValue) {
	w.edgeOps = append(w.edgeOps, edgeOp{kind: opSetEdgeProperty, src: src, dst: dst, key: key, value: value})
}

// InsertEdgeBatch buffers a whole run of edges out of src in one call.
func (w *WriteTxn) InsertEdgeBatch(src types.VertexID, dsts []types.VertexID, rows [][]types.PropertyValue) {
	for i, dst := range dsts {
		var props []types.PropertyValue
		if rows != nil {
			props = rows[i]
		}
		w.InsertEdge(src, dst, props)
	}
}

// Abort discards every buffered operation. Nothing was ever applied to a
// shard before Commit, so aborting only needs to drop the buffers and
// release the worker slot.
func (w *WriteTxn) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.vertexOps = nil
	w.edgeOps = nil
	w.mgr.registry.Unregister(w.workerSlot)
}

// Commit applies every buffered operation across the shards it touches.
// vertexBatch is accepted for symmetry with commit(vertex_batch,
// edge_batch) but has no effect: vertex mutations have no batched fast
// path at the shard tier, only edges do. edgeBatch, once the buffered
// edge count for a given source vertex reaches Config.BatchUpdateEnableThreshold,
// dispatches through the shard's InsertEdgeBatch path instead of one
// InsertEdge call per edge.
//
// Commit reports false (spec.md §7 kind 3, "precondition violation") if
// the transaction mixes a vertex removal with any other operation.
func (w *WriteTxn) Commit(vertexBatch, edgeBatch bool) bool {
	_ = vertexBatch
	if w.done {
		return false
	}
	w.done = true
	defer w.mgr.registry.Unregister(w.workerSlot)

	if !w.validPrecondition() {
		metrics.CommitsTotal.WithLabelValues("write", "aborted").Inc()
		return false
	}

	shardIdx := w.touchedShards()
	builders := make(map[uint64]*shard.Builder, len(shardIdx))
	for _, idx := range shardIdx {
		s := w.mgr.forest.LockOrCreateForWrite(idx)
		builders[idx] = s.BeginWrite(w.workerSlot)
	}

	w.applyVertexOps(builders)
	w.applyEdgeOps(builders, edgeBatch)

	w.commitBuilders(builders)
	metrics.CommitsTotal.WithLabelValues("write", "committed").Inc()

	w.gcTouched(shardIdx)
	return true
}

// validPrecondition enforces spec.md §7 kind 3: a vertex removal cannot
// share a transaction with any other operation.
func (w *WriteTxn) validPrecondition() bool {
	hasRemove := false
	other := len(w.edgeOps)
	for _, op := range w.vertexOps {
		if op.kind == opRemoveVertex {
			hasRemove = true
		} else {
			other++
		}
	}
	return !(hasRemove && other > 0)
}

func (w *WriteTxn) touchedShards() []uint64 {
	bits := w.mgr.cfg.VertexGroupBits
	seen := make(map[uint64]bool)
	var out []uint64
	add := func(v types.VertexID) {
		idx := v.Shard(bits)
		if !seen[idx] {
			seen[idx] = true
			out = append(out, idx)
		}
	}
	for _, op := range w.vertexOps {
		add(op.v)
	}
	for _, op := range w.edgeOps {
		add(op.src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (w *WriteTxn) applyVertexOps(builders map[uint64]*shard.Builder) {
	bits := w.mgr.cfg.VertexGroupBits
	for _, op := range w.vertexOps {
		b := builders[op.v.Shard(bits)]
		slot := int(op.v.Slot(bits))
		switch op.kind {
		case opInsertVertex:
			_ = b.InsertVertex(slot)
		case opRemoveVertex:
			_ = b.RemoveVertex(slot)
		case opSetVertexProperty:
			_ = b.SetVertexProperty(slot, op.key, op.value)
		}
	}
}

// pendingEdges groups one source vertex's pending inserts so a run long
// enough to cross BatchUpdateEnableThreshold can take the shard's
// InsertEdgeBatch path (spec.md §4.3 "Batch = sequence").
type pendingEdges struct {
	dsts []types.VertexID
	rows [][]types.PropertyValue
}

func (w *WriteTxn) applyEdgeOps(builders map[uint64]*shard.Builder, edgeBatch bool) {
	bits := w.mgr.cfg.VertexGroupBits
	batched := make(map[types.VertexID]*pendingEdges)

	for _, op := range w.edgeOps {
		b := builders[op.src.Shard(bits)]
		slot := int(op.src.Slot(bits))
		switch op.kind {
		case opInsertEdge:
			p := batched[op.src]
			if p == nil {
				p = &pendingEdges{}
				batched[op.src] = p
			}
			p.dsts = append(p.dsts, op.dst)
			p.rows = append(p.rows, op.props)
		case opRemoveEdge:
			_ = b.RemoveEdge(slot, op.dst)
		case opSetEdgeProperty:
			_ = b.SetEdgeProperty(slot, op.dst, op.key, op.value)
		}
	}

	for src, p := range batched {
		b := builders[src.Shard(bits)]
		slot := int(src.Slot(bits))
		if edgeBatch && len(p.dsts) >= w.mgr.cfg.BatchUpdateEnableThreshold {
			_ = b.InsertEdgeBatch(slot, p.dsts, p.rows)
			continue
		}
		for i, dst := range p.dsts {
			_ = b.InsertEdge(slot, dst, p.rows[i])
		}
	}
}

// commitBuilders commits every touched shard's builder concurrently
// (each shard's writer lock is disjoint, so this is safe) at one shared
// commit timestamp, via golang.org/x/sync/errgroup for the fan-out with at
// most Config.BatchUpdateThreadNum commits in flight. The timestamp is
// published to new readers only after every shard holds its new version,
// so a reader sees all of the transaction or none of it. It returns the
// timestamp assigned.
func (w *WriteTxn) commitBuilders(builders map[uint64]*shard.Builder) types.Timestamp {
	ts := w.mgr.nextWriteTimestamp()

	var eg errgroup.Group
	if n := w.mgr.cfg.BatchUpdateThreadNum; n > 0 {
		eg.SetLimit(n)
	}
	for _, b := range builders {
		b := b
		eg.Go(func() error {
			b.Commit(ts)
			return nil
		})
	}
	_ = eg.Wait()

	w.mgr.finishCommit(ts)
	return ts
}

func (w *WriteTxn) gcTouched(shardIdx []uint64) {
	oldest := w.mgr.registry.OldestActive(w.mgr.ReadTimestamp())
	for _, idx := range shardIdx {
		if s := w.mgr.forest.Locate(idx); s != nil {
			s.GC(oldest)
		}
	}
}
