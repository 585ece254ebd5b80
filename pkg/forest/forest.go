// Package forest implements the shard forest (spec.md §3 "Shard Forest",
// §4.1): a directly-indexed, lazily-grown table mapping a shard index to
// its *shard.Shard, plus the routing arithmetic that turns a VertexID into
// that index.
package forest

import (
	"sync"

	"github.com/cuemby/vertexdb/pkg/shard"
	"github.com/cuemby/vertexdb/pkg/types"
)

// Forest owns every shard an engine has allocated.
type Forest struct {
	cfg types.Config

	mu     sync.RWMutex
	shards []*shard.Shard
}

// New returns an empty forest; shards are created on first write.
func New(cfg types.Config) *Forest {
	return &Forest{cfg: cfg}
}

// Route returns the shard index that owns vertex v.
func (f *Forest) Route(v types.VertexID) uint64 {
	return v.Shard(f.cfg.VertexGroupBits)
}

// Locate returns the shard at index, or nil if no write has ever touched
// it (spec.md §4.1 "locate").
func (f *Forest) Locate(index uint64) *shard.Shard {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if index >= uint64(len(f.shards)) {
		return nil
	}
	return f.shards[index]
}

// LockOrCreateForWrite grows the table if index is new to it, lazily
// constructs the shard on first touch, and returns it. The forest's own
// mutex only protects the table's slice header and the one-time
// construction; per-shard serialization is still the Shard's own writer
// lock, acquired by the caller via Shard.BeginWrite (spec.md §4.1
// "lock_or_create_for_write").
func (f *Forest) LockOrCreateForWrite(index uint64) *shard.Shard {
	f.mu.Lock()
	defer f.mu.Unlock()

	if index >= uint64(len(f.shards)) {
		grown := make([]*shard.Shard, index+1)
		copy(grown, f.shards)
		f.shards = grown
	}
	s := f.shards[index]
	if s == nil {
		s = shard.New(index, f.cfg)
		f.shards[index] = s
	}
	return s
}

// Shards returns every shard ever allocated, in ascending index order.
// Used by whole-engine sweeps: GC and diagnostic export.
func (f *Forest) Shards() []*shard.Shard {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*shard.Shard, 0, len(f.shards))
	for _, s := range f.shards {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Config returns the forest's configuration, mainly so callers in pkg/txn
// can route vertex ids without importing types directly for the bit width.
func (f *Forest) Config() types.Config {
	return f.cfg
}
