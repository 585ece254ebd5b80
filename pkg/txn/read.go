package txn

import (
	"github.com/cuemby/vertexdb/pkg/shard"
	"github.com/cuemby/vertexdb/pkg/types"
)

// ReadTxn is a read-only transaction pinned at a fixed read timestamp
// (spec.md §6 "begin_read"): every call for the lifetime of the
// transaction sees the same consistent snapshot across the whole forest,
// regardless of writes committed after it began.
type ReadTxn struct {
	mgr        *Manager
	workerSlot int
	ts         types.Timestamp
	closed     bool
}

// BeginRead registers a reader slot and pins it at the current read
// timestamp. The caller must Close the transaction when done.
func (m *Manager) BeginRead() (*ReadTxn, error) {
	slot, err := m.registry.Register()
	if err != nil {
		return nil, err
	}
	ts := m.ReadTimestamp()
	m.registry.BeginRead(slot, ts)
	return &ReadTxn{mgr: m, workerSlot: slot, ts: ts}, nil
}

// Close releases the transaction's reader slot. Until Close is called the
// transaction's pinned timestamp blocks GC from reclaiming any version at
// or after it (spec.md §8 scenario 6); a caller that forgets Close leaks
// the slot exactly as an unregistered thread would.
func (r *ReadTxn) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.mgr.registry.EndRead(r.workerSlot)
	r.mgr.registry.Unregister(r.workerSlot)
}

// Timestamp returns the timestamp this transaction is pinned at.
func (r *ReadTxn) Timestamp() types.Timestamp { return r.ts }

func (r *ReadTxn) locate(v types.VertexID) (*shard.Version, int) {
	bits := r.mgr.cfg.VertexGroupBits
	s := r.mgr.forest.Locate(v.Shard(bits))
	if s == nil {
		return nil, 0
	}
	ver := s.FindVersion(r.ts)
	if ver == nil {
		return nil, 0
	}
	return ver, int(v.Slot(bits))
}

// HasVertex reports whether v exists at this transaction's timestamp.
func (r *ReadTxn) HasVertex(v types.VertexID) bool {
	ver, slot := r.locate(v)
	return ver != nil && ver.HasVertex(slot)
}

// HasEdge reports whether u -> v exists.
func (r *ReadTxn) HasEdge(u, v types.VertexID) bool {
	ver, slot := r.locate(u)
	return ver != nil && ver.HasEdge(slot, v)
}

// Degree returns u's out-degree, or 0 if u does not exist.
func (r *ReadTxn) Degree(u types.VertexID) int {
	ver, slot := r.locate(u)
	if ver == nil {
		return 0
	}
	return ver.Degree(slot)
}

// GetVertexProperty returns v's property at key, or types.NoProperty.
func (r *ReadTxn) GetVertexProperty(v types.VertexID, key types.PropertyKey) types.PropertyValue {
	ver, slot := r.locate(v)
	if ver == nil {
		return types.NoProperty
	}
	return ver.GetVertexProperty(slot, key)
}

// GetEdgeProperty returns the property at (u -> v, key), or types.NoProperty.
func (r *ReadTxn) GetEdgeProperty(u, v types.VertexID, key types.PropertyKey) types.PropertyValue {
	ver, slot := r.locate(u)
	if ver == nil {
		return types.NoProperty
	}
	return ver.GetEdgeProperty(slot, v, key)
}

// Edges enumerates u's neighbors in ascending order (spec.md §6 "edges").
// fn returning false stops the walk early.
func (r *ReadTxn) Edges(u types.VertexID, fn func(dst types.VertexID, props []types.PropertyValue) bool) {
	ver, slot := r.locate(u)
	if ver == nil {
		return
	}
	ver.ForEachEdge(slot, fn)
}

// NeighborAddr is the opaque handle returned by GetNeighborAddr: a
// zero-copy scanner can re-enter the same vertex's neighborhood window
// directly, without repeating shard routing and version lookup (spec.md
// §6 "get_neighbor_addr").
type NeighborAddr struct {
	version *shard.Version
	slot    int
}

// Valid reports whether the address still resolves to a live vertex.
func (a NeighborAddr) Valid() bool {
	return a.version != nil && a.version.HasVertex(a.slot)
}

// ForEach re-enumerates the addressed vertex's neighbors.
func (a NeighborAddr) ForEach(fn func(dst types.VertexID, props []types.PropertyValue) bool) {
	if !a.Valid() {
		return
	}
	a.version.ForEachEdge(a.slot, fn)
}

// GetNeighborAddr resolves u once and returns an opaque handle a scanner
// can hold onto across many ForEach calls.
func (r *ReadTxn) GetNeighborAddr(u types.VertexID) NeighborAddr {
	ver, slot := r.locate(u)
	return NeighborAddr{version: ver, slot: slot}
}

// Intersect returns the neighbor ids common to both u and v (spec.md §6
// "intersect"). The underlying range-tree/ART tiers already provide
// representation-specific intersection (rangetree.Tree.IntersectTree,
// art.Tree.Intersect); this walks each vertex's full, already-sorted
// neighbor list and merges them, which is representation-agnostic and
// handles the clustered tier and mixed-tier pairs uniformly.
func (r *ReadTxn) Intersect(u, v types.VertexID) []types.VertexID {
	uVer, uSlot := r.locate(u)
	vVer, vSlot := r.locate(v)
	if uVer == nil || vVer == nil || !uVer.HasVertex(uSlot) || !vVer.HasVertex(vSlot) {
		return nil
	}

	uDsts, _ := uVer.AllEdges(uSlot)
	vDsts, _ := vVer.AllEdges(vSlot)

	var out []types.VertexID
	i, j := 0, 0
	for i < len(uDsts) && j < len(vDsts) {
		switch {
		case uDsts[i] < vDsts[j]:
			i++
		case uDsts[i] > vDsts[j]:
			j++
		default:
			out = append(out, uDsts[i])
			i++
			j++
		}
	}
	return out
}

// Snapshot is a read-only view pinned at a fixed timestamp across the
// whole forest (spec.md §6 "begin_snapshot"). The engine hands out one
// global monotonic timestamp per commit, so any ReadTxn already observes
// a consistent cross-shard view at its pinned timestamp; Snapshot is the
// same mechanism under the name callers use when the intent is an
// explicit point-in-time export or diagnostic walk rather than a single
// logical read.
type Snapshot struct {
	*ReadTxn
}

// BeginSnapshot pins a consistent, whole-forest view.
func (m *Manager) BeginSnapshot() (*Snapshot, error) {
	r, err := m.BeginRead()
	if err != nil {
		return nil, err
	}
	return &Snapshot{ReadTxn: r}, nil
}
