// Package engine wires the shard forest, the reader/writer registry, and
// the transaction manager into the single object an embedder or cmd/vertexdb
// constructs to open the graph store (spec.md §2 "System Overview").
package engine

import (
	"github.com/rs/zerolog"

	"github.com/cuemby/vertexdb/pkg/forest"
	"github.com/cuemby/vertexdb/pkg/log"
	"github.com/cuemby/vertexdb/pkg/metrics"
	"github.com/cuemby/vertexdb/pkg/registry"
	"github.com/cuemby/vertexdb/pkg/snapshot"
	"github.com/cuemby/vertexdb/pkg/txn"
	"github.com/cuemby/vertexdb/pkg/types"
)

// Engine is the top-level handle to a running graph store.
type Engine struct {
	cfg      types.Config
	Forest   *forest.Forest
	Registry *registry.Registry
	Txn      *txn.Manager
	log      zerolog.Logger
}

// Open constructs a fresh, empty engine from cfg. Unlike the teacher's
// orchestrator Manager, there is no on-disk state to recover: the engine
// is purely in-memory (spec.md Non-goals exclude durability/crash
// recovery), so Open never fails.
func Open(cfg types.Config) *Engine {
	f := forest.New(cfg)
	r := registry.New(cfg.MaxRegisteredWorkers)
	m := txn.NewManager(cfg, f, r)

	e := &Engine{cfg: cfg, Forest: f, Registry: r, Txn: m, log: log.WithComponent("engine")}
	metrics.RegisterComponent("forest", true, "")
	metrics.RegisterComponent("registry", true, "")
	metrics.RegisterComponent("engine", true, "")
	e.log.Info().Msg("engine opened")
	return e
}

// Config returns the engine's tunables.
func (e *Engine) Config() types.Config {
	return e.cfg
}

// BeginRead, BeginWrite, BeginLightWrite, and BeginSnapshot forward to the
// transaction manager; they exist on Engine so callers depend on one type
// instead of wiring pkg/txn's Manager up themselves.
func (e *Engine) BeginRead() (*txn.ReadTxn, error)                  { return e.Txn.BeginRead() }
func (e *Engine) BeginWrite() (*txn.WriteTxn, error)                { return e.Txn.BeginWrite() }
func (e *Engine) BeginLightWrite(t txn.Tracer) (*txn.LightWriteTxn, error) {
	return e.Txn.BeginLightWrite(t)
}
func (e *Engine) BeginSnapshot() (*txn.Snapshot, error) { return e.Txn.BeginSnapshot() }

// ShardCount reports the number of shards ever allocated by a write.
func (e *Engine) ShardCount() int {
	return len(e.Forest.Shards())
}

// VertexCount sums the live vertex count across every allocated shard, as
// of each shard's current (most recently committed) version. Diagnostic
// only: under concurrent writers this is a best-effort snapshot, not a
// transactionally consistent total.
func (e *Engine) VertexCount() int {
	total := 0
	for _, s := range e.Forest.Shards() {
		total += s.Current().VertexCount()
	}
	return total
}

// WalkVertices enumerates every live vertex reachable from snap, in shard
// order then ascending slot order, with its vertex properties. It
// satisfies pkg/snapshot.ForestWalker for diagnostic export.
func (e *Engine) WalkVertices(snap *txn.Snapshot, fn func(v types.VertexID, props []types.PropertyValue) bool) {
	bits := e.cfg.VertexGroupBits
	for _, s := range e.Forest.Shards() {
		ver := s.FindVersion(snap.Timestamp())
		if ver == nil {
			continue
		}
		cont := true
		ver.ForEachVertex(func(slot int) bool {
			vid := types.MakeVertexID(s.ID, uint32(slot), bits)
			var props []types.PropertyValue
			if e.cfg.VertexPropertyNum > 0 {
				props = make([]types.PropertyValue, e.cfg.VertexPropertyNum)
				for k := 0; k < e.cfg.VertexPropertyNum; k++ {
					props[k] = ver.GetVertexProperty(slot, types.PropertyKey(k))
				}
			}
			cont = fn(vid, props)
			return cont
		})
		if !cont {
			return
		}
	}
}

// ShardSummaries reports one ShardSummary per allocated shard, as of
// snap. Satisfies pkg/snapshot.SummaryWalker for the periodic exporter.
func (e *Engine) ShardSummaries(snap *txn.Snapshot) []snapshot.ShardSummary {
	shards := e.Forest.Shards()
	out := make([]snapshot.ShardSummary, 0, len(shards))
	for _, s := range shards {
		ver := s.FindVersion(snap.Timestamp())
		if ver == nil {
			continue
		}
		out = append(out, snapshot.ShardSummary{
			Shard:       s.ID,
			VertexCount: ver.VertexCount(),
			Timestamp:   snap.Timestamp(),
		})
	}
	return out
}
