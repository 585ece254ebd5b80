package rangetree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/vertexdb/pkg/pool"
	"github.com/cuemby/vertexdb/pkg/types"
)

func testConfig() types.Config {
	cfg := types.DefaultConfig()
	cfg.RangeLeafSize = 4
	cfg.EdgePropertyNum = 1
	return cfg
}

func noopRetire(release func()) { release() }

func TestInsertAndContains(t *testing.T) {
	cfg := testConfig()
	p := pool.NewPool(cfg.RangeLeafSize, 1)
	tr := New(cfg, p)

	for _, x := range []types.VertexID{10, 5, 20, 15} {
		tr.Insert(x, []types.PropertyValue{types.PropertyValue(x)}, 0, noopRetire)
	}

	for _, x := range []types.VertexID{10, 5, 20, 15} {
		assert.True(t, tr.Contains(x))
	}
	assert.False(t, tr.Contains(99))
	assert.Equal(t, 4, tr.Degree())
}

func TestInsertDuplicateIsNoop(t *testing.T) {
	cfg := testConfig()
	p := pool.NewPool(cfg.RangeLeafSize, 1)
	tr := New(cfg, p)

	tr.Insert(10, []types.PropertyValue{1}, 0, noopRetire)
	tr.Insert(10, []types.PropertyValue{2}, 0, noopRetire)

	require.Equal(t, 1, tr.Degree())
	v, ok := tr.GetProperty(10, 0)
	require.True(t, ok)
	assert.EqualValues(t, 1, v, "duplicate insert must not overwrite the existing property")
}

func TestSplitOnOverflow(t *testing.T) {
	cfg := testConfig() // RangeLeafSize == 4
	p := pool.NewPool(cfg.RangeLeafSize, 1)
	tr := New(cfg, p)

	for i := types.VertexID(0); i < 5; i++ {
		tr.Insert(i, nil, 0, noopRetire)
	}

	assert.Equal(t, 5, tr.Degree())
	assert.Greater(t, len(tr.nodes), 1, "overflowing a single segment must split it")
	dsts, _ := tr.All()
	assert.Equal(t, []types.VertexID{0, 1, 2, 3, 4}, dsts)
}

func TestRemoveDropsEmptySegment(t *testing.T) {
	cfg := testConfig()
	p := pool.NewPool(cfg.RangeLeafSize, 1)
	tr := New(cfg, p)

	tr.Insert(1, nil, 0, noopRetire)
	tr.Remove(1, 0, noopRetire)

	assert.False(t, tr.Contains(1))
	assert.Equal(t, 0, tr.Degree())
	assert.Empty(t, tr.nodes)
}

func TestInsertBatchMergesSorted(t *testing.T) {
	cfg := testConfig()
	p := pool.NewPool(cfg.RangeLeafSize, 1)
	tr := New(cfg, p)

	tr.Insert(2, nil, 0, noopRetire)
	tr.Insert(8, nil, 0, noopRetire)

	tr.InsertBatch([]types.VertexID{1, 3, 9}, nil, 0, noopRetire)

	dsts, _ := tr.All()
	assert.Equal(t, []types.VertexID{1, 2, 3, 8, 9}, dsts)
}

func TestCopySharesSegmentsAndRetains(t *testing.T) {
	cfg := testConfig()
	p := pool.NewPool(cfg.RangeLeafSize, 1)
	tr := New(cfg, p)
	tr.Insert(1, nil, 0, noopRetire)

	seg := tr.nodes[0].Seg
	require.EqualValues(t, 1, seg.RefCount())

	cp := tr.Copy()
	assert.EqualValues(t, 2, seg.RefCount())
	assert.True(t, cp.Contains(1))
}

func TestIntersectTree(t *testing.T) {
	cfg := testConfig()
	p := pool.NewPool(cfg.RangeLeafSize, 1)
	a := New(cfg, p)
	b := New(cfg, p)

	for _, x := range []types.VertexID{1, 2, 3, 4} {
		a.Insert(x, nil, 0, noopRetire)
	}
	for _, x := range []types.VertexID{2, 4, 6} {
		b.Insert(x, nil, 0, noopRetire)
	}

	var out []types.VertexID
	a.IntersectTree(b, &out)
	assert.Equal(t, []types.VertexID{2, 4}, out)
}
