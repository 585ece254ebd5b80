// Package registry implements the reader/writer registry (spec.md §4.6):
// a bounded table of per-thread slots that publish the read timestamp a
// transaction is pinned to, so garbage collection can compute the oldest
// timestamp any live reader might still observe.
//
// The set of currently-active slots is tracked in a RoaringBitmap rather
// than scanned linearly: membership (is slot N active right now) is
// exactly what a bitmap is for, and ActiveReaderTimestamps needs a
// consistent point-in-time snapshot of that set while registrations and
// unregistrations continue to race against it -- Clone() gives a cheap,
// lock-free-to-read copy instead of holding the registry mutex for the
// whole timestamp walk.
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring"

	"github.com/cuemby/vertexdb/pkg/metrics"
	"github.com/cuemby/vertexdb/pkg/types"
)

type slot struct {
	ts atomic.Uint64
}

// Registry is the process-wide reader/writer registry. One Registry is
// shared by every shard in an engine (spec.md §4.6: the registry is
// engine-global, not per-shard).
type Registry struct {
	mu     sync.Mutex
	active *roaring.Bitmap
	slots  []*slot
	free   []int
}

// New allocates a registry with room for maxWorkers concurrently
// registered threads (Config.MaxRegisteredWorkers).
func New(maxWorkers int) *Registry {
	r := &Registry{
		active: roaring.New(),
		slots:  make([]*slot, maxWorkers),
		free:   make([]int, 0, maxWorkers),
	}
	for i := range r.slots {
		r.slots[i] = &slot{}
	}
	for i := maxWorkers - 1; i >= 0; i-- {
		r.free = append(r.free, i)
	}
	return r
}

// Register reserves a slot for the calling thread. Callers must Unregister
// when they stop issuing transactions; a leaked slot permanently narrows
// the registry's capacity (spec.md §4.6 "a thread that exits without
// unregistering leaks its slot").
func (r *Registry) Register() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.free) == 0 {
		return 0, types.ErrTooManyWorkers
	}
	s := r.free[len(r.free)-1]
	r.free = r.free[:len(r.free)-1]
	return s, nil
}

// Unregister releases a slot back to the free list. The slot must not be
// marked active when this is called.
func (r *Registry) Unregister(workerSlot int) {
	r.mu.Lock()
	r.active.Remove(uint32(workerSlot))
	r.free = append(r.free, workerSlot)
	r.mu.Unlock()
	metrics.ActiveReaders.Set(float64(r.ReadTxnCount()))
}

// BeginRead marks workerSlot as an active reader pinned at ts.
func (r *Registry) BeginRead(workerSlot int, ts types.Timestamp) {
	r.slots[workerSlot].ts.Store(uint64(ts))
	r.mu.Lock()
	r.active.Add(uint32(workerSlot))
	r.mu.Unlock()
	metrics.ActiveReaders.Set(float64(r.ReadTxnCount()))
}

// EndRead clears workerSlot's active-reader marker.
func (r *Registry) EndRead(workerSlot int) {
	r.mu.Lock()
	r.active.Remove(uint32(workerSlot))
	r.mu.Unlock()
	metrics.ActiveReaders.Set(float64(r.ReadTxnCount()))
}

// ActiveReaderTimestamps returns the read timestamp of every currently
// active reader (spec.md §4.6 "active_reader_timestamps"), consulted by
// GC to find the oldest version a live reader might still need.
func (r *Registry) ActiveReaderTimestamps() []types.Timestamp {
	r.mu.Lock()
	snap := r.active.Clone()
	r.mu.Unlock()

	out := make([]types.Timestamp, 0, snap.GetCardinality())
	it := snap.Iterator()
	for it.HasNext() {
		out = append(out, types.Timestamp(r.slots[it.Next()].ts.Load()))
	}
	return out
}

// ReadTxnCount returns the number of currently active read transactions
// (spec.md §4.6 "read_txn_count").
func (r *Registry) ReadTxnCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active.GetCardinality()
}

// OldestActive returns the minimum active reader timestamp, or fallback
// if no reader is currently registered (GC may then reclaim freely up to
// fallback, normally the engine's last-assigned write timestamp).
func (r *Registry) OldestActive(fallback types.Timestamp) types.Timestamp {
	timestamps := r.ActiveReaderTimestamps()
	if len(timestamps) == 0 {
		return fallback
	}
	oldest := timestamps[0]
	for _, ts := range timestamps[1:] {
		if ts < oldest {
			oldest = ts
		}
	}
	return oldest
}
