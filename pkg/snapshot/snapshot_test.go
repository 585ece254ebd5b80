package snapshot_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/vertexdb/pkg/engine"
	. "github.com/cuemby/vertexdb/pkg/snapshot"
	"github.com/cuemby/vertexdb/pkg/types"
)

func testConfig() types.Config {
	cfg := types.DefaultConfig()
	cfg.VertexGroupBits = 4
	cfg.RangeLeafSize = 6
	cfg.ArtExtractThreshold = 12
	cfg.ArtLeafSize = 4
	cfg.VertexPropertyNum = 1
	cfg.EdgePropertyNum = 1
	cfg.MaxRegisteredWorkers = 8
	return cfg
}

func TestExportRoundTrips(t *testing.T) {
	e := engine.Open(testConfig())

	w, err := e.BeginWrite()
	require.NoError(t, err)
	w.InsertVertex(1)
	w.InsertVertex(2)
	w.InsertEdge(1, 2, []types.PropertyValue{5})
	require.True(t, w.Commit(false, false))

	snap, err := e.BeginSnapshot()
	require.NoError(t, err)
	defer snap.Close()

	path := filepath.Join(t.TempDir(), "snap.db")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, Export(snap, e, store))

	var vertices []VertexRecord
	require.NoError(t, store.ForEachVertex(func(r VertexRecord) error {
		vertices = append(vertices, r)
		return nil
	}))
	assert.Len(t, vertices, 2)

	var edges []EdgeRecord
	require.NoError(t, store.ForEachEdge(func(r EdgeRecord) error {
		edges = append(edges, r)
		return nil
	}))
	require.Len(t, edges, 1)
	assert.Equal(t, types.VertexID(1), edges[0].Src)
	assert.Equal(t, types.VertexID(2), edges[0].Dst)
	assert.Equal(t, types.PropertyValue(5), edges[0].Properties[0])

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestExportSummary(t *testing.T) {
	e := engine.Open(testConfig())

	w, err := e.BeginWrite()
	require.NoError(t, err)
	w.InsertVertex(1)
	w.InsertVertex(2)
	require.True(t, w.Commit(false, false))

	snap, err := e.BeginSnapshot()
	require.NoError(t, err)
	defer snap.Close()

	store, err := Open(filepath.Join(t.TempDir(), "summary.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, ExportSummary(snap, e, store))

	var summaries []ShardSummary
	require.NoError(t, store.ForEachShardSummary(func(s ShardSummary) error {
		summaries = append(summaries, s)
		return nil
	}))
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].VertexCount)
	assert.Equal(t, snap.Timestamp(), summaries[0].Timestamp)
}

func TestRunPeriodicExportsUntilCanceled(t *testing.T) {
	e := engine.Open(testConfig())

	w, err := e.BeginWrite()
	require.NoError(t, err)
	w.InsertVertex(1)
	require.True(t, w.Commit(false, false))

	store, err := Open(filepath.Join(t.TempDir(), "periodic.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunPeriodic(ctx, e.Txn, e, store, 5*time.Millisecond, nil)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	<-done

	var summaries []ShardSummary
	require.NoError(t, store.ForEachShardSummary(func(s ShardSummary) error {
		summaries = append(summaries, s)
		return nil
	}))
	assert.NotEmpty(t, summaries)
}
