// Package snapshot provides a diagnostic, non-durable export of a running
// engine's vertex/edge set to a bbolt file, for offline inspection. It is
// grounded on the teacher's bucket-per-kind, JSON-encoded bbolt idiom
// (Open/CreateBucketIfNotExists/db.Update/db.View), not on its
// orchestration CRUD API: the engine itself never reads from or writes to
// this package, since durability and crash recovery are explicitly out of
// scope (spec.md Non-goals). It exists purely so an operator can dump a
// point-in-time Snapshot to disk.
package snapshot

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/vertexdb/pkg/txn"
	"github.com/cuemby/vertexdb/pkg/types"
)

var (
	bucketVertices = []byte("vertices")
	bucketEdges    = []byte("edges")
	bucketSummary  = []byte("summary")
)

// ShardSummary is one shard's entry in a periodic summary export: just
// enough to see the store is alive and progressing between full dumps.
type ShardSummary struct {
	Shard       uint64          `json:"shard"`
	VertexCount int             `json:"vertex_count"`
	Timestamp   types.Timestamp `json:"timestamp"`
}

// VertexRecord is one exported vertex.
type VertexRecord struct {
	ID         types.VertexID        `json:"id"`
	Properties []types.PropertyValue `json:"properties,omitempty"`
}

// EdgeRecord is one exported directed edge.
type EdgeRecord struct {
	Src        types.VertexID        `json:"src"`
	Dst        types.VertexID        `json:"dst"`
	Properties []types.PropertyValue `json:"properties,omitempty"`
}

// Store is a bbolt-backed sink/source for exported records.
type Store struct {
	db *bolt.DB
}

// Open creates or reopens a snapshot file at path, creating its buckets
// on first use.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketVertices, bucketEdges, bucketSummary} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying bbolt file.
func (s *Store) Close() error {
	return s.db.Close()
}

func vertexKey(id types.VertexID) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}

func edgeKey(src, dst types.VertexID) []byte {
	k := make([]byte, 16)
	binary.BigEndian.PutUint64(k[:8], uint64(src))
	binary.BigEndian.PutUint64(k[8:], uint64(dst))
	return k
}

func (s *Store) putVertex(tx *bolt.Tx, rec VertexRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketVertices).Put(vertexKey(rec.ID), data)
}

func (s *Store) putEdge(tx *bolt.Tx, rec EdgeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketEdges).Put(edgeKey(rec.Src, rec.Dst), data)
}

// ForEachVertex replays every exported vertex record in key order.
func (s *Store) ForEachVertex(fn func(VertexRecord) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVertices).ForEach(func(_, v []byte) error {
			var rec VertexRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			return fn(rec)
		})
	})
}

// ForEachEdge replays every exported edge record in (src, dst) key order.
func (s *Store) ForEachEdge(fn func(EdgeRecord) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEdges).ForEach(func(_, v []byte) error {
			var rec EdgeRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			return fn(rec)
		})
	})
}

// Export walks every shard reachable from snap (a pinned, consistent
// point-in-time view) and writes its vertices and out-edges into s in a
// single bbolt transaction.
func Export(snap *txn.Snapshot, e ForestWalker, s *Store) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var exportErr error
		e.WalkVertices(snap, func(v types.VertexID, props []types.PropertyValue) bool {
			exportErr = s.putVertex(tx, VertexRecord{ID: v, Properties: props})
			if exportErr != nil {
				return false
			}
			snap.Edges(v, func(dst types.VertexID, edgeProps []types.PropertyValue) bool {
				exportErr = s.putEdge(tx, EdgeRecord{Src: v, Dst: dst, Properties: edgeProps})
				return exportErr == nil
			})
			return exportErr == nil
		})
		return exportErr
	})
}

// ForestWalker enumerates every live vertex reachable from a pinned
// snapshot. pkg/engine.Engine implements it; kept as an interface here so
// this package depends only on pkg/txn, not on pkg/forest directly --
// pkg/engine imports this package (for ShardSummary/SummaryWalker), never
// the other way around.
type ForestWalker interface {
	WalkVertices(snap *txn.Snapshot, fn func(v types.VertexID, props []types.PropertyValue) bool)
}

// SummaryWalker reports one ShardSummary per allocated shard, as of snap.
type SummaryWalker interface {
	ShardSummaries(snap *txn.Snapshot) []ShardSummary
}

// ExportSummary writes one record per shard -- its vertex count and the
// version timestamp it was read at -- instead of the full vertex/edge
// dump Export performs. It is the cheap half of the diagnostic exporter,
// meant to be called periodically by a background goroutine (see
// RunPeriodic) between occasional full Export calls.
func ExportSummary(snap *txn.Snapshot, e SummaryWalker, s *Store) error {
	summaries := e.ShardSummaries(snap)
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSummary)
		for _, sm := range summaries {
			data, err := json.Marshal(sm)
			if err != nil {
				return err
			}
			key := make([]byte, 8)
			binary.BigEndian.PutUint64(key, sm.Shard)
			if err := b.Put(key, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// ForEachShardSummary replays every exported per-shard summary in shard
// index order.
func (s *Store) ForEachShardSummary(fn func(ShardSummary) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSummary).ForEach(func(_, v []byte) error {
			var rec ShardSummary
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			return fn(rec)
		})
	})
}

// RunPeriodic exports a shard summary to s every interval, until ctx is
// canceled. Intended to run in its own goroutine for the lifetime of a
// serving process; errors are reported to onErr (nil is a no-op) rather
// than stopping the loop, since a single failed export shouldn't take the
// exporter down.
func RunPeriodic(ctx context.Context, mgr SnapshotSource, e SummaryWalker, s *Store, interval time.Duration, onErr func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := mgr.BeginSnapshot()
			if err != nil {
				if onErr != nil {
					onErr(err)
				}
				continue
			}
			err = ExportSummary(snap, e, s)
			snap.Close()
			if err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}

// SnapshotSource opens a pinned, point-in-time read view. pkg/txn.Manager
// and pkg/engine.Engine both implement it.
type SnapshotSource interface {
	BeginSnapshot() (*txn.Snapshot, error)
}
