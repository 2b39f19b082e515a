package master

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/refrantz/paralellMandelbrot/internal/kernel"
	"github.com/refrantz/paralellMandelbrot/internal/transport/memory"
	"github.com/refrantz/paralellMandelbrot/internal/worker"
	"github.com/refrantz/paralellMandelbrot/pkg/types"
)

// fakeTransport lets a test play every worker by hand.
type fakeTransport struct {
	ready    chan types.WorkerID
	results  chan *types.ChunkResult
	failures chan error
	replies  chan sentReply
	replyErr error
}

type sentReply struct {
	id    types.WorkerID
	reply *types.Reply
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		ready:    make(chan types.WorkerID, 64),
		results:  make(chan *types.ChunkResult, 1024),
		failures: make(chan error, 1),
		replies:  make(chan sentReply, 64),
	}
}

func (f *fakeTransport) Ready() <-chan types.WorkerID        { return f.ready }
func (f *fakeTransport) Results() <-chan *types.ChunkResult { return f.results }
func (f *fakeTransport) Failures() <-chan error             { return f.failures }

func (f *fakeTransport) Reply(ctx context.Context, id types.WorkerID, reply *types.Reply) error {
	if f.replyErr != nil {
		return f.replyErr
	}
	select {
	case f.replies <- sentReply{id: id, reply: reply}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ask sends a ready signal for id and waits for the answer.
func (f *fakeTransport) ask(t *testing.T, id types.WorkerID) *types.Reply {
	t.Helper()
	f.ready <- id
	select {
	case r := <-f.replies:
		require.Equal(t, id, r.id)
		return r.reply
	case <-time.After(2 * time.Second):
		t.Fatalf("no reply for %s", id)
		return nil
	}
}

// recordingTransport wraps a transport and records every reply in issue order.
type recordingTransport struct {
	Transport
	mu      sync.Mutex
	replies []sentReply
}

func (r *recordingTransport) Reply(ctx context.Context, id types.WorkerID, reply *types.Reply) error {
	r.mu.Lock()
	r.replies = append(r.replies, sentReply{id: id, reply: reply})
	r.mu.Unlock()
	return r.Transport.Reply(ctx, id, reply)
}

func (r *recordingTransport) sent() []sentReply {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentReply(nil), r.replies...)
}

// runLocal runs a scheduler with n in-process agents.
func runLocal(t *testing.T, cfg *Config, n int) (*Report, *recordingTransport) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	network := memory.NewNetwork(n)
	rec := &recordingTransport{Transport: network}
	sched, err := NewScheduler(cfg, rec)
	require.NoError(t, err)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		link, err := network.Link(types.WorkerID("w-" + string(rune('a'+i))))
		require.NoError(t, err)
		agent, err := worker.NewAgent(&worker.Config{Grid: cfg.Grid, Viewport: types.DefaultViewport()}, link)
		require.NoError(t, err)
		g.Go(func() error {
			_, err := agent.Run(gctx)
			return err
		})
	}

	var report *Report
	g.Go(func() error {
		var err error
		report, err = sched.Run(gctx)
		return err
	})
	require.NoError(t, g.Wait())
	assert.Equal(t, PhaseDone, sched.Status().Phase)
	return report, rec
}

func TestScheduler_SingleWorkerTwoByTwo(t *testing.T) {
	grid := types.GridSpec{Width: 2, Height: 2, MaxIter: 5000, ChunkSize: 1}
	report, rec := runLocal(t, &Config{Grid: grid, Workers: 1}, 1)

	assert.Equal(t, kernel.Compute(grid, types.DefaultViewport()), report.Cells)
	assert.Equal(t, 2, report.Chunks)

	sent := rec.sent()
	require.Len(t, sent, 3)
	assert.Equal(t, types.RowRange{Start: 0, Count: 1}, *sent[0].reply.Range)
	assert.Equal(t, types.RowRange{Start: 1, Count: 1}, *sent[1].reply.Range)
	assert.True(t, sent[2].reply.Terminate)
}

func TestScheduler_ThreeWorkersUnevenChunks(t *testing.T) {
	grid := types.GridSpec{Width: 16, Height: 10, MaxIter: 200, ChunkSize: 3}
	report, rec := runLocal(t, &Config{Grid: grid, Workers: 3}, 3)

	assert.Equal(t, kernel.Compute(grid, types.DefaultViewport()), report.Cells)

	var ranges []types.RowRange
	terminated := map[types.WorkerID]int{}
	for _, s := range rec.sent() {
		if s.reply.Terminate {
			terminated[s.id]++
			continue
		}
		assert.Empty(t, terminated, "range issued after a termination")
		ranges = append(ranges, *s.reply.Range)
	}
	assert.Equal(t, []types.RowRange{
		{Start: 0, Count: 3},
		{Start: 3, Count: 3},
		{Start: 6, Count: 3},
		{Start: 9, Count: 1},
	}, ranges)
	assert.Len(t, terminated, 3)
	for id, n := range terminated {
		assert.Equal(t, 1, n, "worker %s terminated more than once", id)
	}

	total := 0
	for _, w := range report.Workers {
		assert.Equal(t, types.WorkerStateTerminated, w.State)
		assert.Zero(t, w.Outstanding)
		total += w.Rows
	}
	assert.Equal(t, 10, total)
	assert.Equal(t, int64(4), report.Latency.Count)
}

func TestScheduler_SyncHarvest(t *testing.T) {
	grid := types.GridSpec{Width: 8, Height: 12, MaxIter: 100, ChunkSize: 1}
	report, _ := runLocal(t, &Config{Grid: grid, Workers: 4, Harvest: HarvestSync}, 4)

	assert.Equal(t, kernel.Compute(grid, types.DefaultViewport()), report.Cells)
	assert.Equal(t, 12, report.Chunks)
}

func TestScheduler_MoreWorkersThanRows(t *testing.T) {
	grid := types.GridSpec{Width: 4, Height: 2, MaxIter: 50, ChunkSize: 1}
	report, rec := runLocal(t, &Config{Grid: grid, Workers: 5}, 5)

	assert.Equal(t, kernel.Compute(grid, types.DefaultViewport()), report.Cells)
	terminations := 0
	for _, s := range rec.sent() {
		if s.reply.Terminate {
			terminations++
		}
	}
	assert.Equal(t, 5, terminations)
}

func TestScheduler_EmptyPoolNeverFinishes(t *testing.T) {
	grid := types.GridSpec{Width: 4, Height: 4, MaxIter: 10, ChunkSize: 2}
	sched, err := NewScheduler(&Config{Grid: grid, Workers: 0}, newFakeTransport())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	report, err := sched.Run(ctx)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	status := sched.Status()
	assert.Equal(t, PhaseDispatching, status.Phase)
	assert.Equal(t, 4, status.RowsRemaining)
	assert.Zero(t, status.RowsHarvested)
}

func TestScheduler_EmptyGridEmptyPool(t *testing.T) {
	grid := types.GridSpec{Width: 4, Height: 0, MaxIter: 10, ChunkSize: 2}
	sched, err := NewScheduler(&Config{Grid: grid, Workers: 0}, newFakeTransport())
	require.NoError(t, err)
	assert.Equal(t, PhaseDone, sched.Status().Phase)

	report, err := sched.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Cells)
	assert.Zero(t, report.Chunks)
}

func TestScheduler_EmptyGridTerminatesWorkers(t *testing.T) {
	grid := types.GridSpec{Width: 4, Height: 0, MaxIter: 10, ChunkSize: 2}
	ft := newFakeTransport()
	sched, err := NewScheduler(&Config{Grid: grid, Workers: 2}, ft)
	require.NoError(t, err)
	assert.Equal(t, PhaseDraining, sched.Status().Phase)

	done := make(chan error, 1)
	go func() {
		_, err := sched.Run(context.Background())
		done <- err
	}()

	assert.True(t, ft.ask(t, "a").Terminate)
	assert.True(t, ft.ask(t, "b").Terminate)
	require.NoError(t, <-done)
}

func TestScheduler_DrainsInFlightResults(t *testing.T) {
	grid := types.GridSpec{Width: 2, Height: 2, MaxIter: 10, ChunkSize: 1}
	ft := newFakeTransport()
	sched, err := NewScheduler(&Config{Grid: grid, Workers: 1}, ft)
	require.NoError(t, err)

	done := make(chan *Report, 1)
	go func() {
		report, err := sched.Run(context.Background())
		assert.NoError(t, err)
		done <- report
	}()

	// The worker asks twice before either result is delivered.
	first := ft.ask(t, "a")
	second := ft.ask(t, "a")
	require.NotNil(t, first.Range)
	require.NotNil(t, second.Range)
	assert.True(t, ft.ask(t, "a").Terminate)

	ft.results <- &types.ChunkResult{WorkerID: "a", Offset: second.Range.Start, RowCount: 1, Data: []int32{3, 4}}
	ft.results <- &types.ChunkResult{WorkerID: "a", Offset: first.Range.Start, RowCount: 1, Data: []int32{1, 2}}

	select {
	case report := <-done:
		require.NotNil(t, report)
		assert.Equal(t, []int32{1, 2, 3, 4}, report.Cells)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not finish")
	}
}

func TestScheduler_ProtocolViolations(t *testing.T) {
	grid := types.GridSpec{Width: 2, Height: 4, MaxIter: 10, ChunkSize: 1}

	tests := []struct {
		name  string
		drive func(t *testing.T, ft *fakeTransport)
	}{
		{
			name: "worker beyond pool size",
			drive: func(t *testing.T, ft *fakeTransport) {
				ft.ask(t, "a")
				ft.ready <- "b"
			},
		},
		{
			name: "result for a range never assigned",
			drive: func(t *testing.T, ft *fakeTransport) {
				ft.ask(t, "a")
				ft.results <- &types.ChunkResult{WorkerID: "a", Offset: 3, RowCount: 1, Data: []int32{0, 0}}
			},
		},
		{
			name: "result with the wrong cell count",
			drive: func(t *testing.T, ft *fakeTransport) {
				r := ft.ask(t, "a")
				ft.results <- &types.ChunkResult{WorkerID: "a", Offset: r.Range.Start, RowCount: 1, Data: []int32{0}}
			},
		},
		{
			name: "result claimed by another worker",
			drive: func(t *testing.T, ft *fakeTransport) {
				r := ft.ask(t, "a")
				ft.results <- &types.ChunkResult{WorkerID: "b", Offset: r.Range.Start, RowCount: 1, Data: []int32{0, 0}}
			},
		},
		{
			name: "nil result",
			drive: func(t *testing.T, ft *fakeTransport) {
				ft.results <- nil
			},
		},
		{
			name: "empty worker id",
			drive: func(t *testing.T, ft *fakeTransport) {
				ft.ready <- ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := newFakeTransport()
			sched, err := NewScheduler(&Config{Grid: grid, Workers: 1}, ft)
			require.NoError(t, err)

			done := make(chan error, 1)
			go func() {
				_, err := sched.Run(context.Background())
				done <- err
			}()
			tt.drive(t, ft)

			select {
			case err := <-done:
				assert.ErrorIs(t, err, ErrProtocolViolation)
			case <-time.After(2 * time.Second):
				t.Fatal("scheduler did not stop")
			}
		})
	}
}

func TestScheduler_ReadyAfterTermination(t *testing.T) {
	grid := types.GridSpec{Width: 2, Height: 1, MaxIter: 10, ChunkSize: 1}
	ft := newFakeTransport()
	sched, err := NewScheduler(&Config{Grid: grid, Workers: 2}, ft)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := sched.Run(context.Background())
		done <- err
	}()

	r := ft.ask(t, "a")
	ft.results <- &types.ChunkResult{WorkerID: "a", Offset: r.Range.Start, RowCount: 1, Data: []int32{1, 1}}
	assert.True(t, ft.ask(t, "a").Terminate)
	ft.ready <- "a"

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrProtocolViolation)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_TransportFailures(t *testing.T) {
	grid := types.GridSpec{Width: 2, Height: 2, MaxIter: 10, ChunkSize: 1}

	t.Run("failure signal", func(t *testing.T) {
		ft := newFakeTransport()
		sched, err := NewScheduler(&Config{Grid: grid, Workers: 1}, ft)
		require.NoError(t, err)
		ft.failures <- errors.New("connection reset")

		_, err = sched.Run(context.Background())
		assert.ErrorIs(t, err, ErrTransport)
	})

	t.Run("reply error", func(t *testing.T) {
		ft := newFakeTransport()
		ft.replyErr = errors.New("broken pipe")
		sched, err := NewScheduler(&Config{Grid: grid, Workers: 1}, ft)
		require.NoError(t, err)
		ft.ready <- "a"

		_, err = sched.Run(context.Background())
		assert.ErrorIs(t, err, ErrTransport)
	})

	t.Run("ready channel closed", func(t *testing.T) {
		ft := newFakeTransport()
		sched, err := NewScheduler(&Config{Grid: grid, Workers: 1}, ft)
		require.NoError(t, err)
		close(ft.ready)

		_, err = sched.Run(context.Background())
		assert.ErrorIs(t, err, ErrTransport)
	})
}

func TestNewScheduler_Validation(t *testing.T) {
	ft := newFakeTransport()
	grid := types.GridSpec{Width: 2, Height: 2, MaxIter: 10, ChunkSize: 1}

	_, err := NewScheduler(nil, ft)
	assert.Error(t, err)

	_, err = NewScheduler(&Config{Grid: grid, Workers: 1}, nil)
	assert.Error(t, err)

	_, err = NewScheduler(&Config{Grid: types.GridSpec{Width: 2, Height: 2, MaxIter: 10}, Workers: 1}, ft)
	assert.Error(t, err)

	_, err = NewScheduler(&Config{Grid: grid, Workers: -1}, ft)
	assert.Error(t, err)

	_, err = NewScheduler(&Config{Grid: grid, Workers: 1, Harvest: "eventually"}, ft)
	assert.Error(t, err)

	_, err = NewScheduler(&Config{Grid: grid, Workers: 1, MaxCells: 3}, ft)
	assert.ErrorIs(t, err, ErrAllocation)
}

func TestScheduler_StatusAndRunID(t *testing.T) {
	grid := types.GridSpec{Width: 2, Height: 2, MaxIter: 10, ChunkSize: 1}
	sched, err := NewScheduler(&Config{Grid: grid, Workers: 1}, newFakeTransport(), WithRunID("run-1"), WithLogger(nil))
	require.NoError(t, err)

	assert.Equal(t, "run-1", sched.RunID())
	status := sched.Status()
	assert.Equal(t, "run-1", status.RunID)
	assert.Equal(t, PhaseDispatching, status.Phase)
	assert.Equal(t, 2, status.RowsRemaining)
	assert.Equal(t, 1, status.ActiveWorkers)
	assert.Empty(t, status.Workers)
}
