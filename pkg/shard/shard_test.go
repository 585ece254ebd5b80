package shard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/vertexdb/pkg/types"
)

func testConfig() types.Config {
	cfg := types.DefaultConfig()
	cfg.VertexGroupBits = 4 // 16 slots
	cfg.RangeLeafSize = 6   // clustered extract threshold = 3
	cfg.ArtExtractThreshold = 12
	cfg.ArtLeafSize = 4
	cfg.VertexPropertyNum = 1
	cfg.EdgePropertyNum = 1
	cfg.MaxRegisteredWorkers = 4
	return cfg
}

func row(v float64) []types.PropertyValue {
	return []types.PropertyValue{types.PropertyValue(v)}
}

func TestInsertVertexAndEdge(t *testing.T) {
	s := New(1, testConfig())

	b := s.BeginWrite(0)
	require.NoError(t, b.InsertVertex(0))
	require.NoError(t, b.InsertEdge(0, 100, row(1)))
	v := b.Commit(1)

	assert.True(t, v.HasVertex(0))
	assert.True(t, v.HasEdge(0, 100))
	assert.Equal(t, 1, v.Degree(0))
	assert.Equal(t, types.PropertyValue(1), v.GetEdgeProperty(0, 100, 0))
}

func TestInsertVertexDuplicate(t *testing.T) {
	s := New(1, testConfig())
	b := s.BeginWrite(0)
	require.NoError(t, b.InsertVertex(0))
	b.Commit(1)

	b2 := s.BeginWrite(0)
	err := b2.InsertVertex(0)
	assert.ErrorIs(t, err, types.ErrVertexExists)
	b2.Abort()
}

func TestInsertEdgeMissingVertex(t *testing.T) {
	s := New(1, testConfig())
	b := s.BeginWrite(0)
	err := b.InsertEdge(0, 100, row(1))
	assert.ErrorIs(t, err, types.ErrVertexNotFound)
	b.Abort()
}

func TestRemoveEdge(t *testing.T) {
	s := New(1, testConfig())

	b := s.BeginWrite(0)
	require.NoError(t, b.InsertVertex(0))
	require.NoError(t, b.InsertEdge(0, 100, row(1)))
	require.NoError(t, b.InsertEdge(0, 200, row(2)))
	b.Commit(1)

	b2 := s.BeginWrite(0)
	require.NoError(t, b2.RemoveEdge(0, 100))
	v2 := b2.Commit(2)

	assert.False(t, v2.HasEdge(0, 100))
	assert.True(t, v2.HasEdge(0, 200))
	assert.Equal(t, 1, v2.Degree(0))
}

func TestRemoveVertex(t *testing.T) {
	s := New(1, testConfig())

	b := s.BeginWrite(0)
	require.NoError(t, b.InsertVertex(0))
	require.NoError(t, b.InsertEdge(0, 100, row(1)))
	b.Commit(1)

	b2 := s.BeginWrite(0)
	require.NoError(t, b2.RemoveVertex(0))
	v2 := b2.Commit(2)

	assert.False(t, v2.HasVertex(0))
}

func TestSetVertexProperty(t *testing.T) {
	s := New(1, testConfig())

	b := s.BeginWrite(0)
	require.NoError(t, b.InsertVertex(0))
	b.Commit(1)

	b2 := s.BeginWrite(0)
	require.NoError(t, b2.SetVertexProperty(0, 0, types.PropertyValue(42)))
	v2 := b2.Commit(2)

	assert.Equal(t, types.PropertyValue(42), v2.GetVertexProperty(0, 0))
}

func TestSetVertexPropertyOutOfRange(t *testing.T) {
	s := New(1, testConfig())
	b := s.BeginWrite(0)
	require.NoError(t, b.InsertVertex(0))
	err := b.SetVertexProperty(0, 5, types.PropertyValue(1))
	assert.ErrorIs(t, err, types.ErrPropertyKeyRange)
	b.Abort()
}

func TestSetEdgeProperty(t *testing.T) {
	s := New(1, testConfig())

	b := s.BeginWrite(0)
	require.NoError(t, b.InsertVertex(0))
	require.NoError(t, b.InsertEdge(0, 100, row(1)))
	b.Commit(1)

	b2 := s.BeginWrite(0)
	require.NoError(t, b2.SetEdgeProperty(0, 100, 0, types.PropertyValue(99)))
	v2 := b2.Commit(2)

	assert.Equal(t, types.PropertyValue(99), v2.GetEdgeProperty(0, 100, 0))
}

func TestSetEdgePropertyMissingEdge(t *testing.T) {
	s := New(1, testConfig())
	b := s.BeginWrite(0)
	require.NoError(t, b.InsertVertex(0))
	err := b.SetEdgeProperty(0, 100, 0, types.PropertyValue(1))
	assert.ErrorIs(t, err, types.ErrEdgeNotFound)
	b.Abort()
}

// TestRepresentationPromotion drives a single vertex's degree past the
// clustered->range and range->ART thresholds and checks every edge
// remains reachable through each promotion.
func TestRepresentationPromotion(t *testing.T) {
	cfg := testConfig()
	s := New(1, cfg)

	b := s.BeginWrite(0)
	require.NoError(t, b.InsertVertex(0))
	v := b.Commit(1)
	_ = v

	for i := 0; i < 20; i++ {
		b := s.BeginWrite(0)
		require.NoError(t, b.InsertEdge(0, types.VertexID(i*10), row(float64(i))))
		v = b.Commit(types.Timestamp(i + 2))
	}

	assert.Equal(t, 20, v.Degree(0))
	for i := 0; i < 20; i++ {
		assert.True(t, v.HasEdge(0, types.VertexID(i*10)), "missing edge %d", i*10)
		assert.Equal(t, types.PropertyValue(i), v.GetEdgeProperty(0, types.VertexID(i*10), 0))
	}
}

func TestInsertEdgeBatchPromotesAndMerges(t *testing.T) {
	cfg := testConfig()
	s := New(1, cfg)

	b := s.BeginWrite(0)
	require.NoError(t, b.InsertVertex(0))
	require.NoError(t, b.InsertEdge(0, 5, row(5)))
	b.Commit(1)

	dsts := make([]types.VertexID, 0, 30)
	rows := make([][]types.PropertyValue, 0, 30)
	for i := 0; i < 30; i++ {
		dsts = append(dsts, types.VertexID(i*3))
		rows = append(rows, row(float64(i)))
	}

	b2 := s.BeginWrite(0)
	require.NoError(t, b2.InsertEdgeBatch(0, dsts, rows))
	v2 := b2.Commit(2)

	assert.True(t, v2.HasEdge(0, 5))
	assert.True(t, v2.HasEdge(0, 0))
	assert.True(t, v2.HasEdge(0, 87))
}

// TestOlderVersionUnaffectedByLaterWrite is the core MVCC isolation check:
// a reader pinned at an older version must never observe a later write's
// mutation of the same vertex's neighborhood.
func TestOlderVersionUnaffectedByLaterWrite(t *testing.T) {
	s := New(1, testConfig())

	b := s.BeginWrite(0)
	require.NoError(t, b.InsertVertex(0))
	require.NoError(t, b.InsertEdge(0, 100, row(1)))
	oldVersion := b.Commit(1)

	b2 := s.BeginWrite(0)
	require.NoError(t, b2.InsertEdge(0, 200, row(2)))
	newVersion := b2.Commit(2)

	assert.False(t, oldVersion.HasEdge(0, 200))
	assert.True(t, newVersion.HasEdge(0, 200))
	assert.True(t, oldVersion.HasEdge(0, 100))
	assert.True(t, newVersion.HasEdge(0, 100))
}

func TestAbortDiscardsWrite(t *testing.T) {
	s := New(1, testConfig())

	b := s.BeginWrite(0)
	require.NoError(t, b.InsertVertex(0))
	b.Commit(1)

	b2 := s.BeginWrite(0)
	require.NoError(t, b2.InsertEdge(0, 100, row(1)))
	b2.Abort()

	cur := s.Current()
	assert.False(t, cur.HasEdge(0, 100))
}

func TestGCReclaimsOldVersions(t *testing.T) {
	s := New(1, testConfig())

	for i := 0; i < 5; i++ {
		b := s.BeginWrite(0)
		if i == 0 {
			require.NoError(t, b.InsertVertex(0))
		} else {
			require.NoError(t, b.InsertEdge(0, types.VertexID(i), row(float64(i))))
		}
		b.Commit(types.Timestamp(i + 1))
	}

	assert.Len(t, s.versions, 6) // initial ts=0 plus five commits

	reclaimed := s.GC(types.Timestamp(4))
	assert.Equal(t, 4, reclaimed)
	assert.Len(t, s.versions, 2)
	assert.Equal(t, types.Timestamp(4), s.versions[0].ts)
}

func TestGCNoopWhenNothingOlder(t *testing.T) {
	s := New(1, testConfig())
	b := s.BeginWrite(0)
	require.NoError(t, b.InsertVertex(0))
	b.Commit(1)

	reclaimed := s.GC(0)
	assert.Equal(t, 0, reclaimed)
	assert.Len(t, s.versions, 2)
}

func TestConcurrentWritersSerialize(t *testing.T) {
	s := New(1, testConfig())
	b := s.BeginWrite(0)
	require.NoError(t, b.InsertVertex(0))
	b.Commit(1)

	done := make(chan struct{})
	go func() {
		b := s.BeginWrite(1)
		require.NoError(t, b.InsertEdge(0, 1, row(1)))
		b.Commit(2)
		close(done)
	}()
	<-done

	b2 := s.BeginWrite(0)
	require.NoError(t, b2.InsertEdge(0, 2, row(2)))
	v := b2.Commit(3)

	assert.True(t, v.HasEdge(0, 1))
	assert.True(t, v.HasEdge(0, 2))
}
