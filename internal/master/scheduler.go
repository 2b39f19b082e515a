package master

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/refrantz/paralellMandelbrot/internal/metrics"
	"github.com/refrantz/paralellMandelbrot/internal/tracing"
	"github.com/refrantz/paralellMandelbrot/pkg/types"
)

// Phase is the scheduler's position in its lifecycle.
type Phase string

const (
	// PhaseDispatching means unassigned rows remain.
	PhaseDispatching Phase = "dispatching"
	// PhaseDraining means every row is assigned but results or workers are outstanding.
	PhaseDraining Phase = "draining"
	// PhaseDone means the result buffer is complete and every worker was terminated.
	PhaseDone Phase = "done"
)

// HarvestMode selects how results are collected relative to dispatch.
type HarvestMode string

const (
	// HarvestAsync harvests results whenever they arrive, interleaved with dispatch.
	HarvestAsync HarvestMode = "async"
	// HarvestSync blocks for one result after every assignment before
	// answering the next ready signal.
	HarvestSync HarvestMode = "sync"
)

// Config holds the configuration of a scheduler.
type Config struct {
	// Grid is the render to distribute.
	Grid types.GridSpec

	// Workers is the fixed size of the worker pool.
	Workers int

	// Harvest selects the harvest mode. Empty means HarvestAsync.
	Harvest HarvestMode

	// MaxCells caps the result buffer size. Zero means no cap.
	MaxCells int
}

// Status is a point-in-time view of a run, safe to read from any goroutine.
type Status struct {
	RunID         string                 `json:"run_id"`
	Phase         Phase                  `json:"phase"`
	Grid          types.GridSpec         `json:"grid"`
	RowsRemaining int                    `json:"rows_remaining"`
	RowsHarvested int                    `json:"rows_harvested"`
	Outstanding   int                    `json:"outstanding"`
	ActiveWorkers int                    `json:"active_workers"`
	Workers       []types.WorkerSnapshot `json:"workers"`
	StartedAt     time.Time              `json:"started_at"`
}

// Report is the outcome of a completed run.
type Report struct {
	RunID    string
	Grid     types.GridSpec
	Cells    []int32
	Chunks   int
	Duration time.Duration
	Workers  []types.WorkerSnapshot
	Latency  metrics.Summary
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(s *Scheduler) {
		if id != "" {
			s.runID = id
		}
	}
}

// Scheduler is the master's dispatch and harvest loop. It owns the ledger,
// the registry and the result buffer; all three are touched only from Run.
type Scheduler struct {
	config    Config
	transport Transport
	log       *zap.Logger
	runID     string

	ledger   *Ledger
	buffer   *ResultBuffer
	registry *Registry
	recorder *metrics.ChunkRecorder
	span     *tracing.Span

	phase     Phase
	startedAt time.Time
	status    atomic.Pointer[Status]
}

// NewScheduler allocates the run state. Allocation failures are returned
// wrapped in ErrAllocation and the run must not proceed.
func NewScheduler(config *Config, transport Transport, opts ...Option) (*Scheduler, error) {
	if config == nil {
		return nil, fmt.Errorf("scheduler config cannot be nil")
	}
	if transport == nil {
		return nil, fmt.Errorf("scheduler transport cannot be nil")
	}
	if err := config.Grid.Validate(); err != nil {
		return nil, err
	}
	if config.Workers < 0 {
		return nil, fmt.Errorf("worker pool size cannot be negative: %d", config.Workers)
	}
	switch config.Harvest {
	case "":
		config.Harvest = HarvestAsync
	case HarvestAsync, HarvestSync:
	default:
		return nil, fmt.Errorf("unknown harvest mode: %s", config.Harvest)
	}

	ledger, err := NewLedger(config.Grid.Height, config.Grid.ChunkSize)
	if err != nil {
		return nil, err
	}
	buffer, err := NewResultBuffer(config.Grid.Width, config.Grid.Height, config.MaxCells)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		config:    *config,
		transport: transport,
		log:       zap.NewNop(),
		runID:     uuid.New().String(),
		ledger:    ledger,
		buffer:    buffer,
		registry:  NewRegistry(config.Workers),
		recorder:  metrics.NewChunkRecorder(),
		phase:     PhaseDispatching,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.advance()
	s.publish()
	return s, nil
}

// RunID returns the run identifier.
func (s *Scheduler) RunID() string { return s.runID }

// Status returns the latest published snapshot.
func (s *Scheduler) Status() *Status { return s.status.Load() }

// Run drives the protocol until every row is harvested and every worker has
// been sent the termination sentinel. It returns early only on a transport
// failure, a protocol violation, or cancellation of ctx. With an empty pool
// and a non-empty grid it makes no progress until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) (report *Report, err error) {
	ctx, span := tracing.StartSpan(ctx, "master.run")
	span.SetString("run.id", s.runID).
		SetInt("grid.width", s.config.Grid.Width).
		SetInt("grid.height", s.config.Grid.Height).
		SetInt("grid.chunk_size", s.config.Grid.ChunkSize).
		SetInt("workers", s.config.Workers)
	defer func() { tracing.EndSpan(span, err) }()
	s.span = span

	s.startedAt = time.Now()
	s.publish()
	s.log.Info("run started",
		zap.String("run_id", s.runID),
		zap.Int("width", s.config.Grid.Width),
		zap.Int("height", s.config.Grid.Height),
		zap.Int("chunk_size", s.config.Grid.ChunkSize),
		zap.Int("workers", s.config.Workers),
		zap.String("harvest", string(s.config.Harvest)))

	ready := s.transport.Ready()
	results := s.transport.Results()
	failures := s.transport.Failures()

	for s.phase != PhaseDone {
		select {
		case <-ctx.Done():
			s.log.Warn("run cancelled", zap.String("phase", string(s.phase)), zap.Error(ctx.Err()))
			return nil, ctx.Err()

		case ferr := <-failures:
			return nil, fmt.Errorf("%w: %v", ErrTransport, ferr)

		case id, ok := <-ready:
			if !ok {
				return nil, fmt.Errorf("%w: ready channel closed", ErrTransport)
			}
			assigned, err := s.dispatch(ctx, id)
			if err != nil {
				return nil, err
			}
			if assigned && s.config.Harvest == HarvestSync {
				if err := s.awaitResult(ctx, results, failures); err != nil {
					return nil, err
				}
			}

		case res, ok := <-results:
			if !ok {
				return nil, fmt.Errorf("%w: result channel closed", ErrTransport)
			}
			if err := s.harvest(res); err != nil {
				return nil, err
			}
		}
		s.advance()
		s.publish()
	}

	report = &Report{
		RunID:    s.runID,
		Grid:     s.config.Grid,
		Cells:    s.buffer.Cells(),
		Chunks:   s.ledger.Issued(),
		Duration: time.Since(s.startedAt),
		Workers:  s.registry.Snapshot(s.ledger),
		Latency:  s.recorder.Summary(),
	}
	s.log.Info("run complete",
		zap.String("run_id", s.runID),
		zap.Int("chunks", report.Chunks),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// dispatch answers one ready signal. It reports whether a range was assigned.
func (s *Scheduler) dispatch(ctx context.Context, id types.WorkerID) (bool, error) {
	if _, err := s.registry.Admit(id); err != nil {
		return false, err
	}

	if r, ok := s.ledger.NextChunk(); ok {
		s.ledger.Track(id, r)
		s.registry.Assigned(id, r)
		s.recorder.Assigned(r.Start)
		if err := s.transport.Reply(ctx, id, types.AssignReply(r)); err != nil {
			return false, fmt.Errorf("%w: assign %s to %s: %v", ErrTransport, r, id, err)
		}
		s.log.Debug("chunk assigned", zap.String("worker", string(id)), zap.Stringer("rows", r))
		return true, nil
	}

	if err := s.transport.Reply(ctx, id, types.TerminateReply()); err != nil {
		return false, fmt.Errorf("%w: terminate %s: %v", ErrTransport, id, err)
	}
	s.registry.Close(id)
	s.span.Event("worker.terminated", attribute.String("worker.id", string(id)))
	s.log.Debug("worker terminated", zap.String("worker", string(id)), zap.Int("active", s.registry.Active()))
	return false, nil
}

// awaitResult blocks for exactly one result.
func (s *Scheduler) awaitResult(ctx context.Context, results <-chan *types.ChunkResult, failures <-chan error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case ferr := <-failures:
		return fmt.Errorf("%w: %v", ErrTransport, ferr)
	case res, ok := <-results:
		if !ok {
			return fmt.Errorf("%w: result channel closed", ErrTransport)
		}
		return s.harvest(res)
	}
}

// harvest folds one chunk result into the buffer.
func (s *Scheduler) harvest(res *types.ChunkResult) error {
	if res == nil {
		return fmt.Errorf("%w: nil result", ErrProtocolViolation)
	}
	r, err := s.ledger.Settle(res.WorkerID, res.Offset, res.RowCount)
	if err != nil {
		return err
	}
	if err := s.buffer.Write(r.Start, r.Count, res.Data); err != nil {
		return err
	}
	if err := s.recorder.Harvested(r.Start); err != nil {
		s.log.Warn("chunk latency not recorded", zap.Stringer("rows", r), zap.Error(err))
	}
	s.span.Event("chunk.harvested",
		attribute.String("worker.id", string(res.WorkerID)),
		attribute.Int("chunk.start", r.Start),
		attribute.Int("chunk.rows", r.Count))
	s.log.Debug("chunk harvested", zap.String("worker", string(res.WorkerID)), zap.Stringer("rows", r))
	return nil
}

// advance moves the phase forward once its exit condition holds.
func (s *Scheduler) advance() {
	if s.phase == PhaseDispatching && s.ledger.Exhausted() {
		s.phase = PhaseDraining
	}
	if s.phase == PhaseDraining && s.registry.Active() == 0 && s.ledger.Outstanding() == 0 {
		s.phase = PhaseDone
	}
}

func (s *Scheduler) publish() {
	s.status.Store(&Status{
		RunID:         s.runID,
		Phase:         s.phase,
		Grid:          s.config.Grid,
		RowsRemaining: s.ledger.Remaining(),
		RowsHarvested: s.buffer.RowsWritten(),
		Outstanding:   s.ledger.Outstanding(),
		ActiveWorkers: s.registry.Active(),
		Workers:       s.registry.Snapshot(s.ledger),
		StartedAt:     s.startedAt,
	})
}
