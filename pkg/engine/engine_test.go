package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func TestOpenEmptyEngine(t *testing.T) {
	e := Open(testConfig())
	assert.Equal(t, 0, e.ShardCount())
	assert.Equal(t, 0, e.VertexCount())
}

func TestEndToEndWriteAndRead(t *testing.T) {
	e := Open(testConfig())

	w, err := e.BeginWrite()
	require.NoError(t, err)
	w.InsertVertex(1)
	w.InsertEdge(1, 2, []types.PropertyValue{3})
	require.True(t, w.Commit(false, false))

	assert.Equal(t, 1, e.ShardCount())
	assert.Equal(t, 1, e.VertexCount())

	r, err := e.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	assert.True(t, r.HasEdge(1, 2))
}

func TestCrossShardWrite(t *testing.T) {
	cfg := testConfig()
	e := Open(cfg)

	vA := types.MakeVertexID(0, 1, cfg.VertexGroupBits)
	vB := types.MakeVertexID(1, 1, cfg.VertexGroupBits)

	w, err := e.BeginWrite()
	require.NoError(t, err)
	w.InsertVertex(vA)
	w.InsertVertex(vB)
	require.True(t, w.Commit(false, false))

	assert.Equal(t, 2, e.ShardCount())
}
