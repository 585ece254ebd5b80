package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/vertexdb/pkg/forest"
	"github.com/cuemby/vertexdb/pkg/registry"
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
	cfg.BatchUpdateEnableThreshold = 4
	return cfg
}

func newManager() *Manager {
	cfg := testConfig()
	f := forest.New(cfg)
	r := registry.New(cfg.MaxRegisteredWorkers)
	return NewManager(cfg, f, r)
}

func TestWriteThenReadSeesCommit(t *testing.T) {
	m := newManager()

	w, err := m.BeginWrite()
	require.NoError(t, err)
	w.InsertVertex(1)
	w.InsertEdge(1, 2, []types.PropertyValue{7})
	require.True(t, w.Commit(false, false))

	r, err := m.BeginRead()
	require.NoError(t, err)
	defer r.Close()

	assert.True(t, r.HasVertex(1))
	assert.True(t, r.HasEdge(1, 2))
	assert.Equal(t, types.PropertyValue(7), r.GetEdgeProperty(1, 2, 0))
}

func TestReadPinnedBeforeWriteDoesNotSeeIt(t *testing.T) {
	m := newManager()

	w, err := m.BeginWrite()
	require.NoError(t, err)
	w.InsertVertex(1)
	require.True(t, w.Commit(false, false))

	r, err := m.BeginRead()
	require.NoError(t, err)
	defer r.Close()

	w2, err := m.BeginWrite()
	require.NoError(t, err)
	w2.InsertEdge(1, 99, nil)
	require.True(t, w2.Commit(false, false))

	assert.False(t, r.HasEdge(1, 99), "reader pinned before the second commit must not observe it")
}

func TestCommitRejectsMixedRemoveVertex(t *testing.T) {
	m := newManager()

	w, err := m.BeginWrite()
	require.NoError(t, err)
	w.InsertVertex(1)
	require.True(t, w.Commit(false, false))

	w2, err := m.BeginWrite()
	require.NoError(t, err)
	w2.RemoveVertex(1)
	w2.InsertVertex(2)
	assert.False(t, w2.Commit(false, false))
}

func TestAbortAppliesNothing(t *testing.T) {
	m := newManager()

	w, err := m.BeginWrite()
	require.NoError(t, err)
	w.InsertVertex(1)
	w.Abort()

	r, err := m.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	assert.False(t, r.HasVertex(1))
}

func TestEdgeBatchPath(t *testing.T) {
	m := newManager()

	w, err := m.BeginWrite()
	require.NoError(t, err)
	w.InsertVertex(1)
	dsts := make([]types.VertexID, 10)
	for i := range dsts {
		dsts[i] = types.VertexID(100 + i)
	}
	w.InsertEdgeBatch(1, dsts, nil)
	require.True(t, w.Commit(false, true))

	r, err := m.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 10, r.Degree(1))
	for _, d := range dsts {
		assert.True(t, r.HasEdge(1, d))
	}
}

func TestIntersect(t *testing.T) {
	m := newManager()

	w, err := m.BeginWrite()
	require.NoError(t, err)
	w.InsertVertex(1)
	w.InsertVertex(2)
	w.InsertEdge(1, 10, nil)
	w.InsertEdge(1, 20, nil)
	w.InsertEdge(1, 30, nil)
	w.InsertEdge(2, 20, nil)
	w.InsertEdge(2, 30, nil)
	w.InsertEdge(2, 40, nil)
	require.True(t, w.Commit(false, false))

	r, err := m.BeginRead()
	require.NoError(t, err)
	defer r.Close()

	common := r.Intersect(1, 2)
	assert.Equal(t, []types.VertexID{20, 30}, common)
}

func TestLightWriteImmediatelyVisible(t *testing.T) {
	m := newManager()

	var traced []string
	var traceIDs []string
	l, err := m.BeginLightWrite(func(e Event) {
		traced = append(traced, e.Op)
		traceIDs = append(traceIDs, e.TraceID)
	})
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.InsertVertex(1))
	require.NoError(t, l.InsertEdge(1, 5, nil))

	r, err := m.BeginRead()
	require.NoError(t, err)
	defer r.Close()

	assert.True(t, r.HasEdge(1, 5))
	assert.Equal(t, []string{"insert_vertex", "insert_edge"}, traced)
	require.Len(t, traceIDs, 2)
	assert.Equal(t, traceIDs[0], traceIDs[1], "every event from one light-write must share its trace id")
	assert.Equal(t, l.TraceID(), traceIDs[0])
}

func TestSnapshotBehavesLikeReadTxn(t *testing.T) {
	m := newManager()

	w, err := m.BeginWrite()
	require.NoError(t, err)
	w.InsertVertex(1)
	require.True(t, w.Commit(false, false))

	snap, err := m.BeginSnapshot()
	require.NoError(t, err)
	defer snap.Close()

	assert.True(t, snap.HasVertex(1))
}

func TestGCReclaimsOnlyAfterReaderCloses(t *testing.T) {
	m := newManager()

	w, err := m.BeginWrite()
	require.NoError(t, err)
	w.InsertVertex(1)
	require.True(t, w.Commit(false, false))

	r, err := m.BeginRead()
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		w, err := m.BeginWrite()
		require.NoError(t, err)
		w.InsertEdge(1, types.VertexID(i), nil)
		require.True(t, w.Commit(false, false))
	}

	assert.True(t, r.HasVertex(1), "old reader's pinned version must still be intact")
	r.Close()
}
