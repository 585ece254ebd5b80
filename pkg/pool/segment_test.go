package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/vertexdb/pkg/types"
)

func TestSegmentRefCounting(t *testing.T) {
	s := NewSegment(8)
	require.EqualValues(t, 1, s.RefCount())

	s.Retain()
	require.EqualValues(t, 2, s.RefCount())

	assert.False(t, s.Release())
	assert.True(t, s.Release())
}

func TestPoolReusesReleasedSegments(t *testing.T) {
	p := NewPool(4, 2)

	s1 := p.GetSegment(0)
	s1.Data[0] = 42
	s1.Len = 1
	s1.Release()

	s2 := p.GetSegment(1)
	assert.Equal(t, 0, s2.Len, "reused segment must reset its length")
	assert.EqualValues(t, 1, s2.RefCount())
}

func TestPoolGrowsPerWorkerCaches(t *testing.T) {
	p := NewPool(4, 1)

	// Worker slot 5 was never pre-allocated; the pool must grow to
	// accommodate it rather than panic.
	s := p.GetSegment(5)
	require.NotNil(t, s)
}

func TestPropertyBlockResetsToNoProperty(t *testing.T) {
	p := NewPool(4, 1)

	b := p.GetPropertyBlock(0)
	b.Values[0] = 7
	b.Release()

	b2 := p.GetPropertyBlock(0)
	for _, v := range b2.Values {
		assert.Equal(t, types.NoProperty, v, "GetPropertyBlock must reset reused storage")
	}
}
