package shard

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/cuemby/vertexdb/pkg/art"
	"github.com/cuemby/vertexdb/pkg/log"
	"github.com/cuemby/vertexdb/pkg/metrics"
	"github.com/cuemby/vertexdb/pkg/pool"
	"github.com/cuemby/vertexdb/pkg/rangetree"
	"github.com/cuemby/vertexdb/pkg/types"
)

// vertexSlot is one entry of a shard's vertex table. A clustered vertex's
// window lives in the Version's shared clusterNode block, found by slot;
// a range/ART vertex's private tree is held directly here.
type vertexSlot struct {
	exists bool
	rep    repKind

	rangeTree *rangetree.Tree
	art       *art.Tree
}

// Version is one immutable snapshot of a shard's vertex table (spec.md §3
// Invariants, §4.3 "Construction"). Readers pinned at a Version never
// observe a later write; writers build the next Version by copying this
// one and mutating only the slots and clustered nodes a write actually
// touches.
type Version struct {
	ts          types.Timestamp
	vertices    []vertexSlot
	clusters    []*clusterNode
	vertexProps *types.PropertyMap

	// retired holds release closures for every pool-backed object this
	// version's predecessor uniquely held and this version replaced.
	// They run once the predecessor itself is no longer reachable by any
	// reader (see Shard.GC), never earlier: the predecessor's own slots
	// still reference these objects until then.
	retired []func()

	prev *Version
}

// Timestamp is this version's commit timestamp.
func (v *Version) Timestamp() types.Timestamp { return v.ts }

// VertexCount reports the number of live vertex slots.
func (v *Version) VertexCount() int {
	n := 0
	for _, s := range v.vertices {
		if s.exists {
			n++
		}
	}
	return n
}

// ForEachVertex enumerates every live slot in ascending order. fn
// returning false stops the walk early.
func (v *Version) ForEachVertex(fn func(slot int) bool) {
	for slot, s := range v.vertices {
		if !s.exists {
			continue
		}
		if !fn(slot) {
			return
		}
	}
}

// HasVertex reports whether slot is a live vertex.
func (v *Version) HasVertex(slot int) bool {
	return slot >= 0 && slot < len(v.vertices) && v.vertices[slot].exists
}

// Degree returns the out-degree of slot, or 0 for a missing vertex.
func (v *Version) Degree(slot int) int {
	if !v.HasVertex(slot) {
		return 0
	}
	switch v.vertices[slot].rep {
	case repClustered:
		idx := locateClusterNode(v.clusters, slot)
		if idx < 0 {
			return 0
		}
		return v.clusters[idx].degreeOf(slot)
	case repRange:
		return v.vertices[slot].rangeTree.Degree()
	default:
		return v.vertices[slot].art.Degree()
	}
}

// HasEdge reports whether slot -> dst exists.
func (v *Version) HasEdge(slot int, dst types.VertexID) bool {
	if !v.HasVertex(slot) {
		return false
	}
	s := v.vertices[slot]
	switch s.rep {
	case repClustered:
		idx := locateClusterNode(v.clusters, slot)
		if idx < 0 {
			return false
		}
		return v.clusters[idx].contains(slot, dst)
	case repRange:
		return s.rangeTree.Contains(dst)
	default:
		return s.art.Contains(dst)
	}
}

// GetVertexProperty returns vertex slot's property at key.
func (v *Version) GetVertexProperty(slot int, key types.PropertyKey) types.PropertyValue {
	if !v.HasVertex(slot) {
		return types.NoProperty
	}
	return v.vertexProps.Get(key, slot)
}

// GetEdgeProperty returns the property at (slot -> dst, key).
func (v *Version) GetEdgeProperty(slot int, dst types.VertexID, key types.PropertyKey) types.PropertyValue {
	if !v.HasVertex(slot) {
		return types.NoProperty
	}
	s := v.vertices[slot]
	switch s.rep {
	case repClustered:
		idx := locateClusterNode(v.clusters, slot)
		if idx < 0 {
			return types.NoProperty
		}
		val, ok := v.clusters[idx].getProperty(slot, dst, key)
		if !ok {
			return types.NoProperty
		}
		return val
	case repRange:
		val, ok := s.rangeTree.GetProperty(dst, key)
		if !ok {
			return types.NoProperty
		}
		return val
	default:
		val, ok := s.art.GetProperty(dst, key)
		if !ok {
			return types.NoProperty
		}
		return val
	}
}

// ForEachEdge enumerates slot's neighbors in ascending order.
func (v *Version) ForEachEdge(slot int, fn func(dst types.VertexID, props []types.PropertyValue) bool) {
	if !v.HasVertex(slot) {
		return
	}
	s := v.vertices[slot]
	switch s.rep {
	case repClustered:
		idx := locateClusterNode(v.clusters, slot)
		if idx < 0 {
			return
		}
		v.clusters[idx].forEach(slot, fn)
	case repRange:
		s.rangeTree.ForEach(fn)
	default:
		s.art.ForEachElement(fn)
	}
}

// AllEdges returns every neighbor of slot as parallel slices.
func (v *Version) AllEdges(slot int) ([]types.VertexID, [][]types.PropertyValue) {
	if !v.HasVertex(slot) {
		return nil, nil
	}
	s := v.vertices[slot]
	switch s.rep {
	case repClustered:
		idx := locateClusterNode(v.clusters, slot)
		if idx < 0 {
			return nil, nil
		}
		return v.clusters[idx].windowAll(slot)
	case repRange:
		return s.rangeTree.All()
	default:
		keys := s.art.All()
		rows := make([][]types.PropertyValue, len(keys))
		for i, k := range keys {
			row := make([]types.PropertyValue, 0)
			if val, ok := s.art.GetProperty(k, 0); ok {
				row = append(row, val)
			}
			rows[i] = row
		}
		return keys, rows
	}
}

// spinlock is a simple single-writer mutual exclusion primitive built on a
// CAS loop (spec.md §3 "single writer per shard, acquired via a spinning
// compare-and-swap rather than a blocking mutex since write critical
// sections are short").
type spinlock struct {
	state atomic.Bool
}

func (s *spinlock) Lock() {
	for !s.state.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (s *spinlock) Unlock() {
	s.state.Store(false)
}

// Shard owns one shard's version chain and the pool its vertices draw
// segments and property blocks from (spec.md §2 Components D/E).
type Shard struct {
	ID  uint64
	cfg types.Config

	// segPool backs both adjacency segments and edge-property blocks: a
	// single Pool already hands out either kind at the same fixed
	// capacity (spec.md §2 Component A).
	segPool *pool.Pool

	writeLock spinlock

	current atomic.Pointer[Version]

	mu       sync.Mutex // protects versions; writer-only, disjoint from writeLock
	versions []*Version

	log zerolog.Logger
}

// New creates a shard with an empty initial version at timestamp 0.
func New(id uint64, cfg types.Config) *Shard {
	initial := &Version{
		ts:          0,
		vertices:    make([]vertexSlot, cfg.ShardSize()),
		vertexProps: types.NewPropertyMap(cfg.VertexPropertyNum, cfg.ShardSize()),
	}
	s := &Shard{
		ID:       id,
		cfg:      cfg,
		segPool:  pool.NewPool(cfg.RangeLeafSize, cfg.MaxRegisteredWorkers),
		versions: []*Version{initial},
		log:      log.WithShard(id),
	}
	s.current.Store(initial)
	return s
}

// Current returns the shard's most recently committed version.
func (s *Shard) Current() *Version {
	return s.current.Load()
}

// Builder accumulates mutations against a cloned vertex table before they
// become visible to readers (spec.md §4.3's copy-on-write version builder).
type Builder struct {
	shard      *Shard
	base       *Version
	next       *Version
	workerSlot int
}

// BeginWrite acquires the shard's writer spinlock and returns a Builder
// seeded with a shallow copy of the current version. Callers must call
// Commit or Abort exactly once.
func (s *Shard) BeginWrite(workerSlot int) *Builder {
	s.writeLock.Lock()
	base := s.current.Load()
	next := &Version{
		vertices:    append([]vertexSlot(nil), base.vertices...),
		clusters:    append([]*clusterNode(nil), base.clusters...),
		vertexProps: base.vertexProps.ShallowCopy(),
		prev:        base,
	}
	return &Builder{shard: s, base: base, next: next, workerSlot: workerSlot}
}

func (b *Builder) retire(release func()) {
	b.next.retired = append(b.next.retired, release)
}

// InsertVertex adds slot as a live vertex with no neighbors. Returns
// ErrVertexExists if already present.
func (b *Builder) InsertVertex(slot int) error {
	if b.next.vertices[slot].exists {
		return types.ErrVertexExists
	}
	b.next.vertices[slot] = vertexSlot{exists: true, rep: repClustered}
	return nil
}

// RemoveVertex drops slot and every pool-backed object its neighborhood
// owned. Returns ErrVertexNotFound if absent.
func (b *Builder) RemoveVertex(slot int) error {
	if !b.next.vertices[slot].exists {
		return types.ErrVertexNotFound
	}
	s := b.next.vertices[slot]
	switch s.rep {
	case repClustered:
		b.next.clusters = removeClusteredVertex(b.shard.cfg, b.shard.segPool, b.next.clusters, slot, b.workerSlot, b.retire)
	case repRange:
		s.rangeTree.Release(b.retire)
	}
	b.next.vertices[slot] = vertexSlot{}
	return nil
}

// InsertEdge adds slot -> dst with the given property row, dispatching
// across the clustered/range/ART tiers by current degree.
func (b *Builder) InsertEdge(slot int, dst types.VertexID, props []types.PropertyValue) error {
	if !b.next.vertices[slot].exists {
		return types.ErrVertexNotFound
	}
	s := b.next.vertices[slot]
	switch s.rep {
	case repClustered:
		clusters, exDsts, exRows, extracted, duplicate := insertClusteredEdge(b.shard.cfg, b.shard.segPool, b.next.clusters, slot, dst, props, b.workerSlot, b.retire)
		b.next.clusters = clusters
		if duplicate {
			return nil
		}
		if extracted {
			rt := rangetree.New(b.shard.cfg, b.shard.segPool)
			rt.InsertBatch(exDsts, exRows, b.workerSlot, func(release func()) { release() })
			metrics.RepresentationTransitionsTotal.WithLabelValues("clustered", "range").Inc()
			b.next.vertices[slot] = vertexSlot{exists: true, rep: repRange, rangeTree: rt}
		}
	default:
		rep, rt, at := insertTreeEdge(b.shard.cfg, s.rep, s.rangeTree, s.art, dst, props, b.workerSlot, b.retire)
		b.next.vertices[slot] = vertexSlot{exists: true, rep: rep, rangeTree: rt, art: at}
	}
	return nil
}

// RemoveEdge deletes slot -> dst if present.
func (b *Builder) RemoveEdge(slot int, dst types.VertexID) error {
	if !b.next.vertices[slot].exists {
		return types.ErrVertexNotFound
	}
	s := b.next.vertices[slot]
	switch s.rep {
	case repClustered:
		clusters, _ := removeClusteredEdge(b.shard.cfg, b.shard.segPool, b.next.clusters, slot, dst, b.workerSlot, b.retire)
		b.next.clusters = clusters
	default:
		rt, at := removeTreeEdge(s.rep, s.rangeTree, s.art, dst, b.workerSlot, b.retire)
		b.next.vertices[slot] = vertexSlot{exists: true, rep: s.rep, rangeTree: rt, art: at}
	}
	return nil
}

// SetVertexProperty writes slot's property at key, copying the underlying
// sub-vector on first write within this Builder.
func (b *Builder) SetVertexProperty(slot int, key types.PropertyKey, value types.PropertyValue) error {
	if !b.next.vertices[slot].exists {
		return types.ErrVertexNotFound
	}
	if int(key) < 0 || int(key) >= b.next.vertexProps.NumKeys() {
		return types.ErrPropertyKeyRange
	}
	b.next.vertexProps.CopyKey(key)
	b.next.vertexProps.Set(key, slot, value)
	return nil
}

// SetEdgeProperty rewrites the property at (slot -> dst, key).
func (b *Builder) SetEdgeProperty(slot int, dst types.VertexID, key types.PropertyKey, value types.PropertyValue) error {
	if !b.next.vertices[slot].exists {
		return types.ErrVertexNotFound
	}
	if int(key) < 0 || int(key) >= b.shard.cfg.EdgePropertyNum {
		return types.ErrPropertyKeyRange
	}
	s := b.next.vertices[slot]
	if !b.next.HasEdge(slot, dst) {
		return types.ErrEdgeNotFound
	}
	switch s.rep {
	case repClustered:
		b.next.clusters = setClusteredProperty(b.shard.cfg, b.shard.segPool, b.next.clusters, slot, dst, key, value, b.workerSlot, b.retire)
	default:
		rt, at := setTreeProperty(s.rep, s.rangeTree, s.art, dst, key, value, b.workerSlot, b.retire)
		b.next.vertices[slot] = vertexSlot{exists: true, rep: s.rep, rangeTree: rt, art: at}
	}
	return nil
}

// InsertEdgeBatch applies a pre-sorted run of (dst, props) pairs to slot's
// neighborhood. Per spec.md §8 "Batch = sequence" (insert_edge_batch must
// be equivalent to the sequence of per-edge inserts), this dispatches each
// pair through the same single-edge path InsertEdge uses, so representation
// promotions and the clustered node block are exercised identically.
func (b *Builder) InsertEdgeBatch(slot int, dsts []types.VertexID, rows [][]types.PropertyValue) error {
	if !b.next.vertices[slot].exists {
		return types.ErrVertexNotFound
	}
	for i, dst := range dsts {
		var props []types.PropertyValue
		if rows != nil {
			props = rows[i]
		}
		if err := b.InsertEdge(slot, dst, props); err != nil {
			return err
		}
	}
	return nil
}

// Commit installs the Builder's working version as the shard's current
// version at timestamp ts and releases the writer lock.
func (b *Builder) Commit(ts types.Timestamp) *Version {
	b.next.ts = ts
	b.shard.mu.Lock()
	b.shard.versions = append(b.shard.versions, b.next)
	b.shard.mu.Unlock()
	b.shard.current.Store(b.next)
	b.shard.writeLock.Unlock()
	metrics.VersionChainLength.WithLabelValues(fmt.Sprint(b.shard.ID)).Set(float64(len(b.shard.versions)))
	metrics.VertexCount.WithLabelValues(fmt.Sprint(b.shard.ID)).Set(float64(b.next.VertexCount()))
	return b.next
}

// Abort discards the Builder's working version and releases the writer
// lock without installing anything. The predecessor objects the working
// version replaced stay live, since the current version still references
// them; blocks the Builder allocated are not returned to the pool and are
// left to the Go garbage collector.
func (b *Builder) Abort() {
	b.shard.writeLock.Unlock()
}

// GC reclaims every version whose successor in the chain has a timestamp
// <= oldestActive (spec.md §4.2 "Direct"/"General" reclamation): a reader
// pinned at oldestActive or later resolves to that successor or a newer
// version, so the older one is unreachable. Reclaiming a version runs its
// successor's retired list, releasing the objects the successor replaced.
// oldestActive is normally the oldest timestamp among the reader/writer
// registry's active_reader_timestamps() snapshot (pkg/registry), so the
// version a long-running reader resolves to is never reclaimed out from
// under it (spec.md §8 scenario 6).
func (s *Shard) GC(oldestActive types.Timestamp) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	reclaimed := 0
	for len(s.versions) > 1 && s.versions[1].ts <= oldestActive {
		successor := s.versions[1]
		for _, release := range successor.retired {
			release()
		}
		successor.retired = nil
		s.versions = s.versions[1:]
		reclaimed++
	}
	if reclaimed > 0 {
		metrics.GCReclamations.WithLabelValues(fmt.Sprint(s.ID)).Add(float64(reclaimed))
		s.log.Debug().Int("reclaimed", reclaimed).Msg("shard gc reclaimed versions")
	}
	return reclaimed
}

// FindVersion returns the newest version with timestamp <= readTS, or nil
// if the shard did not exist yet at readTS (spec.md §4.2 "Reader path").
func (s *Shard) FindVersion(readTS types.Timestamp) *Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.versions) - 1; i >= 0; i-- {
		if s.versions[i].ts <= readTS {
			return s.versions[i]
		}
	}
	return nil
}

// OldestVersionTimestamp returns the timestamp of the oldest live version
// still retained in the chain (used by GC callers to short-circuit).
func (s *Shard) OldestVersionTimestamp() types.Timestamp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[0].ts
}
