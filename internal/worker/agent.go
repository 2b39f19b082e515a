package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/refrantz/paralellMandelbrot/internal/kernel"
	"github.com/refrantz/paralellMandelbrot/internal/tracing"
	"github.com/refrantz/paralellMandelbrot/pkg/types"
)

// ErrUnexpectedReply is returned when the master answers with something that
// is neither a valid range nor the termination sentinel.
var ErrUnexpectedReply = errors.New("unexpected reply from master")

// ErrAllocation is returned when the scratch buffer for one chunk cannot be
// sized.
var ErrAllocation = errors.New("cannot allocate chunk buffer")

// Link is the worker's side of the master channel.
type Link interface {
	// ID returns the identity the master knows this worker by.
	ID() types.WorkerID

	// SendReady signals that the worker wants its next unit of work.
	SendReady(ctx context.Context) error

	// AwaitReply blocks for the master's answer to the last ready signal.
	AwaitReply(ctx context.Context) (*types.Reply, error)

	// SendResult returns one computed chunk. Implementations must not retain
	// res.Data after returning.
	SendResult(ctx context.Context, res *types.ChunkResult) error
}

// Config holds what a worker needs to render its chunks.
type Config struct {
	Grid     types.GridSpec
	Viewport types.Viewport
}

// Stats summarizes a worker's run.
type Stats struct {
	Chunks int
	Rows   int
	Busy   time.Duration
}

// Option customizes an Agent.
type Option func(*Agent)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(a *Agent) {
		if log != nil {
			a.log = log
		}
	}
}

// Agent runs the request/compute loop for one worker.
type Agent struct {
	config  Config
	link    Link
	log     *zap.Logger
	mapper  kernel.Mapper
	scratch []int32
	state   atomic.Value // types.WorkerState
}

// NewAgent validates config and allocates the scratch buffer for one chunk.
func NewAgent(config *Config, link Link, opts ...Option) (*Agent, error) {
	if config == nil {
		return nil, fmt.Errorf("worker config cannot be nil")
	}
	if link == nil {
		return nil, fmt.Errorf("worker link cannot be nil")
	}
	if err := config.Grid.Validate(); err != nil {
		return nil, err
	}
	scratch, err := newScratch(config.Grid)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		config:  *config,
		link:    link,
		log:     zap.NewNop(),
		mapper:  kernel.NewMapper(config.Viewport, config.Grid.Width, config.Grid.Height),
		scratch: scratch,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.state.Store(types.WorkerStateRequesting)
	return a, nil
}

// newScratch sizes the buffer for the largest chunk the grid can produce.
func newScratch(g types.GridSpec) ([]int32, error) {
	rows := g.ChunkRows()
	if rows > 0 && g.Width > math.MaxInt/rows {
		return nil, fmt.Errorf("%w: %d rows of width %d overflow", ErrAllocation, rows, g.Width)
	}
	return make([]int32, rows*g.Width), nil
}

// State returns the agent's current state.
func (a *Agent) State() types.WorkerState {
	return a.state.Load().(types.WorkerState)
}

// Run loops until the master terminates the worker or an error occurs.
// Errors are never retried.
func (a *Agent) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	id := a.link.ID()

	for {
		a.state.Store(types.WorkerStateRequesting)
		if err := a.link.SendReady(ctx); err != nil {
			return stats, fmt.Errorf("worker %s: send ready: %w", id, err)
		}
		reply, err := a.link.AwaitReply(ctx)
		if err != nil {
			return stats, fmt.Errorf("worker %s: await reply: %w", id, err)
		}
		if reply == nil {
			return stats, fmt.Errorf("worker %s: %w: empty reply", id, ErrUnexpectedReply)
		}
		if reply.Terminate {
			a.state.Store(types.WorkerStateTerminated)
			a.log.Debug("terminated", zap.String("worker", string(id)), zap.Int("chunks", stats.Chunks))
			return stats, nil
		}
		if reply.Range == nil {
			return stats, fmt.Errorf("worker %s: %w: reply carries no range", id, ErrUnexpectedReply)
		}

		r := *reply.Range
		if err := a.check(r); err != nil {
			return stats, fmt.Errorf("worker %s: %w", id, err)
		}

		a.state.Store(types.WorkerStateComputing)
		began := time.Now()
		res := a.compute(ctx, r)
		stats.Busy += time.Since(began)

		if err := a.link.SendResult(ctx, res); err != nil {
			return stats, fmt.Errorf("worker %s: send result %s: %w", id, r, err)
		}
		stats.Chunks++
		stats.Rows += r.Count
	}
}

func (a *Agent) check(r types.RowRange) error {
	g := a.config.Grid
	if r.Count <= 0 || r.Count > g.ChunkSize || r.Start < 0 || r.End() > g.Height {
		return fmt.Errorf("%w: range %s does not fit grid height %d with chunk size %d", ErrUnexpectedReply, r, g.Height, g.ChunkSize)
	}
	return nil
}

// compute renders r into the scratch buffer.
func (a *Agent) compute(ctx context.Context, r types.RowRange) *types.ChunkResult {
	_, span := tracing.StartSpan(ctx, "worker.chunk")
	span.SetString("worker.id", string(a.link.ID())).
		SetInt("chunk.start", r.Start).
		SetInt("chunk.rows", r.Count)
	defer tracing.EndSpan(span, nil)

	width := a.config.Grid.Width
	data := a.scratch[:r.Count*width]
	for i := 0; i < r.Count; i++ {
		a.mapper.Row(data[i*width:(i+1)*width], r.Start+i, a.config.Grid.MaxIter)
	}
	return &types.ChunkResult{
		WorkerID: a.link.ID(),
		Offset:   r.Start,
		RowCount: r.Count,
		Data:     data,
	}
}
