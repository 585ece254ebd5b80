// Package pool implements the fixed-size block allocators behind adjacency
// segments and per-slot property vectors (spec.md §2 Component A,
// Segment/Property Pools). Every segment and property vector is shared by
// atomic reference count across shard versions (spec.md §3 "Invariants");
// a count that falls to zero returns the block to the pool's shared free
// list rather than relying on the Go garbage collector to notice. A block
// does not record which worker allocated it, so it is not returned to
// that worker's own cache; every worker draws from the shared list once
// its own cache is empty.
package pool

import (
	"sync"
	"sync/atomic"

	"github.com/cuemby/vertexdb/pkg/types"
)

// Segment is one contiguous, sorted run of destination vertex ids backing
// either a clustered node's neighborhood window or a range-tree inner
// node. Capacity is fixed at allocation time (RangeLeafSize); Len tracks
// the live element count.
type Segment struct {
	Data []types.VertexID
	Len  int

	refs atomic.Int32
	pool *Pool
}

// NewSegment allocates a standalone segment not backed by any Pool, with
// an initial reference count of 1. Used by tests and by bulk-build paths
// that do not want pooled reuse.
func NewSegment(capacity int) *Segment {
	return &Segment{Data: make([]types.VertexID, capacity), refs: newRefs(1)}
}

func newRefs(n int32) atomic.Int32 {
	var a atomic.Int32
	a.Store(n)
	return a
}

// Retain increments the segment's reference count. Called whenever a new
// shard version mounts (shares, unmutated) a predecessor's segment.
func (s *Segment) Retain() {
	s.refs.Add(1)
}

// Release decrements the reference count and, if it reaches zero, returns
// the segment to its owning pool (or simply drops it for GC if it has
// none). Returns true when this call freed the segment.
func (s *Segment) Release() bool {
	if s.refs.Add(-1) > 0 {
		return false
	}
	if s.pool != nil {
		s.pool.putSegment(s)
	}
	return true
}

// RefCount reports the current reference count (for invariant checks and
// tests; spec.md §8 "Reference consistency").
func (s *Segment) RefCount() int32 {
	return s.refs.Load()
}

// Slice returns the live portion of the segment's backing array.
func (s *Segment) Slice() []types.VertexID {
	return s.Data[:s.Len]
}

// PropertyBlock is the property-pool counterpart of Segment: a fixed
// capacity array of scalar values for one property key, parallel to a
// Segment's Data, reference-counted the same way.
type PropertyBlock struct {
	Values []types.PropertyValue

	refs atomic.Int32
	pool *Pool
}

// NewPropertyBlock allocates a standalone block with every slot set to
// NoProperty and a reference count of 1.
func NewPropertyBlock(capacity int) *PropertyBlock {
	b := &PropertyBlock{Values: make([]types.PropertyValue, capacity), refs: newRefs(1)}
	for i := range b.Values {
		b.Values[i] = types.NoProperty
	}
	return b
}

func (b *PropertyBlock) Retain() { b.refs.Add(1) }

func (b *PropertyBlock) Release() bool {
	if b.refs.Add(-1) > 0 {
		return false
	}
	if b.pool != nil {
		b.pool.putPropertyBlock(b)
	}
	return true
}

func (b *PropertyBlock) RefCount() int32 { return b.refs.Load() }

// Pool is a fixed-capacity block allocator for segments and property
// blocks, with one free list per registered worker slot (spec.md's
// "per-worker caches") and a shared fallback list for callers that never
// registered with the reader/writer registry (spec.md §4.6, §9 "Per-worker
// allocator state").
type Pool struct {
	capacity int

	mu       sync.Mutex
	perWorker []*workerCache
	shared    *workerCache
}

type workerCache struct {
	mu       sync.Mutex
	segments []*Segment
	props    []*PropertyBlock
}

// NewPool creates a pool whose segments and property blocks have the given
// fixed capacity (typically Config.RangeLeafSize), with numWorkers
// pre-allocated per-worker caches.
func NewPool(capacity, numWorkers int) *Pool {
	p := &Pool{
		capacity:  capacity,
		perWorker: make([]*workerCache, numWorkers),
		shared:    &workerCache{},
	}
	for i := range p.perWorker {
		p.perWorker[i] = &workerCache{}
	}
	return p
}

func (p *Pool) cacheFor(workerSlot int) *workerCache {
	if workerSlot < 0 {
		return p.shared
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if workerSlot >= len(p.perWorker) {
		grown := make([]*workerCache, workerSlot+1)
		copy(grown, p.perWorker)
		for i := len(p.perWorker); i < len(grown); i++ {
			grown[i] = &workerCache{}
		}
		p.perWorker = grown
	}
	return p.perWorker[workerSlot]
}

// GetSegment hands out a segment with capacity Pool.capacity and Len 0,
// reused from workerSlot's cache when available, then from the shared
// cache. workerSlot < 0 uses the shared fallback cache.
func (p *Pool) GetSegment(workerSlot int) *Segment {
	for _, c := range []*workerCache{p.cacheFor(workerSlot), p.shared} {
		c.mu.Lock()
		if n := len(c.segments); n > 0 {
			s := c.segments[n-1]
			c.segments = c.segments[:n-1]
			c.mu.Unlock()
			s.Len = 0
			s.refs.Store(1)
			return s
		}
		c.mu.Unlock()
	}

	s := &Segment{Data: make([]types.VertexID, p.capacity), pool: p}
	s.refs.Store(1)
	return s
}

func (p *Pool) putSegment(s *Segment) {
	// Segment does not record which slot produced it, so freed segments
	// return to the shared cache, which every worker's GetSegment also
	// drains from.
	c := p.shared
	c.mu.Lock()
	c.segments = append(c.segments, s)
	c.mu.Unlock()
}

// GetPropertyBlock hands out a property block with capacity Pool.capacity,
// all slots reset to NoProperty, reused from workerSlot's cache and then
// the shared cache when available.
func (p *Pool) GetPropertyBlock(workerSlot int) *PropertyBlock {
	for _, c := range []*workerCache{p.cacheFor(workerSlot), p.shared} {
		c.mu.Lock()
		if n := len(c.props); n > 0 {
			b := c.props[n-1]
			c.props = c.props[:n-1]
			c.mu.Unlock()
			for i := range b.Values {
				b.Values[i] = types.NoProperty
			}
			b.refs.Store(1)
			return b
		}
		c.mu.Unlock()
	}

	b := NewPropertyBlock(p.capacity)
	b.pool = p
	return b
}

func (p *Pool) putPropertyBlock(b *PropertyBlock) {
	c := p.shared
	c.mu.Lock()
	c.props = append(c.props, b)
	c.mu.Unlock()
}
