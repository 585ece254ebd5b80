package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/vertexdb/pkg/types"
)

func TestRegisterUnregisterReusesSlots(t *testing.T) {
	r := New(2)

	s0, err := r.Register()
	require.NoError(t, err)
	s1, err := r.Register()
	require.NoError(t, err)
	assert.NotEqual(t, s0, s1)

	_, err = r.Register()
	assert.ErrorIs(t, err, types.ErrTooManyWorkers)

	r.Unregister(s0)
	s2, err := r.Register()
	require.NoError(t, err)
	assert.Equal(t, s0, s2)
}

func TestActiveReaderTimestamps(t *testing.T) {
	r := New(4)

	a, _ := r.Register()
	b, _ := r.Register()

	r.BeginRead(a, 10)
	r.BeginRead(b, 5)

	assert.Equal(t, uint64(2), r.ReadTxnCount())
	ts := r.ActiveReaderTimestamps()
	assert.ElementsMatch(t, []types.Timestamp{10, 5}, ts)
	assert.Equal(t, types.Timestamp(5), r.OldestActive(999))

	r.EndRead(b)
	assert.Equal(t, uint64(1), r.ReadTxnCount())
	assert.Equal(t, types.Timestamp(10), r.OldestActive(999))

	r.EndRead(a)
	assert.Equal(t, types.Timestamp(999), r.OldestActive(999))
}
