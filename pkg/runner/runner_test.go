package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refrantz/paralellMandelbrot/internal/kernel"
	"github.com/refrantz/paralellMandelbrot/internal/master"
	"github.com/refrantz/paralellMandelbrot/pkg/types"
)

func TestRun_MatchesSequential(t *testing.T) {
	cases := []struct {
		name    string
		grid    types.GridSpec
		workers int
		harvest master.HarvestMode
	}{
		{"one worker row at a time", types.GridSpec{Width: 24, Height: 18, MaxIter: 80, ChunkSize: 1}, 1, master.HarvestSync},
		{"pool with chunks", types.GridSpec{Width: 32, Height: 31, MaxIter: 120, ChunkSize: 4}, 4, master.HarvestAsync},
		{"chunk larger than grid", types.GridSpec{Width: 5, Height: 3, MaxIter: 30, ChunkSize: 10}, 2, master.HarvestAsync},
		{"chunk size far beyond grid height", types.GridSpec{Width: 64, Height: 4, MaxIter: 10, ChunkSize: 1 << 50}, 2, master.HarvestAsync},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			var started *master.Scheduler
			report, err := Run(ctx, RunOptions{
				Grid:    tc.grid,
				Workers: tc.workers,
				Harvest: tc.harvest,
				OnStart: func(s *master.Scheduler) { started = s },
			})
			require.NoError(t, err)
			assert.Equal(t, kernel.Compute(tc.grid, types.DefaultViewport()), report.Cells)
			require.NotNil(t, started)
			assert.Equal(t, master.PhaseDone, started.Status().Phase)
			assert.Len(t, report.Workers, tc.workers)
		})
	}
}

func TestRun_CustomViewport(t *testing.T) {
	grid := types.GridSpec{Width: 8, Height: 8, MaxIter: 40, ChunkSize: 3}
	vp := types.Viewport{XMin: -0.75, YMin: 0.1, XSpan: 0.01, YSpan: 0.01}

	report, err := Run(context.Background(), RunOptions{Grid: grid, Viewport: vp, Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, kernel.Compute(grid, vp), report.Cells)
}

func TestRun_ZeroWorkersWaitsForCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Run(ctx, RunOptions{Grid: types.GridSpec{Width: 2, Height: 2, MaxIter: 10, ChunkSize: 1}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_AllocationFailure(t *testing.T) {
	_, err := Run(context.Background(), RunOptions{
		Grid:     types.GridSpec{Width: 100, Height: 100, MaxIter: 10, ChunkSize: 1},
		Workers:  1,
		MaxCells: 10,
	})
	assert.ErrorIs(t, err, master.ErrAllocation)
}
