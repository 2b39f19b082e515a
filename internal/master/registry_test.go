package master

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refrantz/paralellMandelbrot/pkg/types"
)

func TestRegistry_AdmitUpToCapacity(t *testing.T) {
	r := NewRegistry(2)
	assert.Equal(t, 2, r.Active())

	_, err := r.Admit("a")
	require.NoError(t, err)
	_, err = r.Admit("b")
	require.NoError(t, err)
	_, err = r.Admit("a")
	require.NoError(t, err, "known workers are re-admitted")

	_, err = r.Admit("c")
	assert.ErrorIs(t, err, ErrProtocolViolation)

	_, err = r.Admit("")
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestRegistry_CloseIsPermanent(t *testing.T) {
	r := NewRegistry(2)
	_, err := r.Admit("a")
	require.NoError(t, err)

	r.Close("a")
	r.Close("a")
	assert.Equal(t, 1, r.Active())

	_, err = r.Admit("a")
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry(3)
	l, err := NewLedger(10, 3)
	require.NoError(t, err)

	_, _ = r.Admit("b")
	_, _ = r.Admit("a")
	rr, _ := l.NextChunk()
	r.Assigned("a", rr)
	l.Track("a", rr)
	r.Close("b")

	snap := r.Snapshot(l)
	require.Len(t, snap, 2)
	assert.Equal(t, types.WorkerSnapshot{ID: "b", State: types.WorkerStateTerminated}, snap[0])
	assert.Equal(t, types.WorkerSnapshot{ID: "a", State: types.WorkerStateComputing, Chunks: 1, Rows: 3, Outstanding: 1}, snap[1])
}
