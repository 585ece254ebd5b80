package txn

import (
	"github.com/google/uuid"

	"github.com/cuemby/vertexdb/pkg/metrics"
	"github.com/cuemby/vertexdb/pkg/shard"
	"github.com/cuemby/vertexdb/pkg/types"
)

// Event is one notification emitted after a light-write operation returns,
// whether it committed or was aborted; the Event does not say which.
// TraceID is stable for every event a single LightWriteTxn produces, so an
// external log can correlate a whole streamed sequence of single-op
// commits back to the transaction that issued them (spec.md §6
// "begin_light_write(tracer?)").
type Event struct {
	TraceID string
	Op      string
	Vertex  types.VertexID
}

// Tracer receives one Event per light-write operation call, committed or
// aborted, e.g. to feed an external audit log. A nil Tracer is a no-op.
type Tracer func(Event)

// LightWriteTxn commits one operation at a time, each immediately visible
// to new readers when the call returns, rather than buffering a sequence
// behind a single commit the way WriteTxn does (spec.md §4.6).
type LightWriteTxn struct {
	mgr        *Manager
	workerSlot int
	tracer     Tracer
	traceID    string
}

// BeginLightWrite reserves a worker slot for a sequence of single-op
// commits. tracer may be nil. A fresh trace ID is minted for the
// transaction's lifetime so tracer can correlate every op it emits.
func (m *Manager) BeginLightWrite(tracer Tracer) (*LightWriteTxn, error) {
	slot, err := m.registry.Register()
	if err != nil {
		return nil, err
	}
	return &LightWriteTxn{mgr: m, workerSlot: slot, tracer: tracer, traceID: uuid.NewString()}, nil
}

// TraceID returns the correlation id shared by every event this
// transaction emits.
func (l *LightWriteTxn) TraceID() string {
	return l.traceID
}

// Close releases the transaction's worker slot.
func (l *LightWriteTxn) Close() {
	l.mgr.registry.Unregister(l.workerSlot)
}

func (l *LightWriteTxn) trace(op string, v types.VertexID) {
	if l.tracer != nil {
		l.tracer(Event{TraceID: l.traceID, Op: op, Vertex: v})
	}
}

// commitOne runs apply against a fresh Builder for shardIdx; on success
// it commits, finishes, and GCs that shard immediately. On error the
// builder is aborted and nothing is committed.
func (l *LightWriteTxn) commitOne(shardIdx uint64, apply func(b *shard.Builder) error) error {
	s := l.mgr.forest.LockOrCreateForWrite(shardIdx)
	b := s.BeginWrite(l.workerSlot)

	if err := apply(b); err != nil {
		b.Abort()
		metrics.CommitsTotal.WithLabelValues("light_write", "aborted").Inc()
		return err
	}

	ts := l.mgr.nextWriteTimestamp()
	b.Commit(ts)
	l.mgr.finishCommit(ts)
	metrics.CommitsTotal.WithLabelValues("light_write", "committed").Inc()

	oldest := l.mgr.registry.OldestActive(l.mgr.ReadTimestamp())
	s.GC(oldest)
	return nil
}

func (l *LightWriteTxn) InsertVertex(v types.VertexID) error {
	bits := l.mgr.cfg.VertexGroupBits
	err := l.commitOne(v.Shard(bits), func(b *shard.Builder) error {
		return b.InsertVertex(int(v.Slot(bits)))
	})
	l.trace("insert_vertex", v)
	return err
}

func (l *LightWriteTxn) RemoveVertex(v types.VertexID) error {
	bits := l.mgr.cfg.VertexGroupBits
	err := l.commitOne(v.Shard(bits), func(b *shard.Builder) error {
		return b.RemoveVertex(int(v.Slot(bits)))
	})
	l.trace("remove_vertex", v)
	return err
}

func (l *LightWriteTxn) SetVertexProperty(v types.VertexID, key types.PropertyKey, value types.PropertyValue) error {
	bits := l.mgr.cfg.VertexGroupBits
	err := l.commitOne(v.Shard(bits), func(b *shard.Builder) error {
		return b.SetVertexProperty(int(v.Slot(bits)), key, value)
	})
	l.trace("set_vertex_property", v)
	return err
}

func (l *LightWriteTxn) InsertEdge(src, dst types.VertexID, props []types.PropertyValue) error {
	bits := l.mgr.cfg.VertexGroupBits
	err := l.commitOne(src.Shard(bits), func(b *shard.Builder) error {
		return b.InsertEdge(int(src.Slot(bits)), dst, props)
	})
	l.trace("insert_edge", src)
	return err
}

func (l *LightWriteTxn) RemoveEdge(src, dst types.VertexID) error {
	bits := l.mgr.cfg.VertexGroupBits
	err := l.commitOne(src.Shard(bits), func(b *shard.Builder) error {
		return b.RemoveEdge(int(src.Slot(bits)), dst)
	})
	l.trace("remove_edge", src)
	return err
}

func (l *LightWriteTxn) SetEdgeProperty(src, dst types.VertexID, key types.PropertyKey, value types.PropertyValue) error {
	bits := l.mgr.cfg.VertexGroupBits
	err := l.commitOne(src.Shard(bits), func(b *shard.Builder) error {
		return b.SetEdgeProperty(int(src.Slot(bits)), dst, key, value)
	})
	l.trace("set_edge_property", src)
	return err
}
