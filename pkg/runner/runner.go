// Package runner renders a grid in one process: a scheduler and a pool of
// worker goroutines connected by the in-memory transport.
package runner

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/refrantz/paralellMandelbrot/internal/master"
	"github.com/refrantz/paralellMandelbrot/internal/transport/memory"
	"github.com/refrantz/paralellMandelbrot/internal/worker"
	"github.com/refrantz/paralellMandelbrot/pkg/types"
)

// RunOptions configures a local render.
type RunOptions struct {
	// Grid to render (required).
	Grid types.GridSpec

	// Viewport is the region of the plane. Zero value means the default view.
	Viewport types.Viewport

	// Workers is the pool size.
	Workers int

	// Harvest selects async or sync result collection.
	Harvest master.HarvestMode

	// MaxCells caps the result buffer. Zero means no cap.
	MaxCells int

	// Logger receives scheduler and worker logs. Nil discards them.
	Logger *zap.Logger

	// OnStart is called with the scheduler before any worker starts, so
	// callers can poll its status.
	OnStart func(*master.Scheduler)
}

// Run renders the grid and returns the scheduler's report. With zero workers
// and a non-empty grid it blocks until ctx is done.
func Run(ctx context.Context, opts RunOptions) (*master.Report, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	vp := opts.Viewport
	if vp == (types.Viewport{}) {
		vp = types.DefaultViewport()
	}

	network := memory.NewNetwork(opts.Workers)
	sched, err := master.NewScheduler(&master.Config{
		Grid:     opts.Grid,
		Workers:  opts.Workers,
		Harvest:  opts.Harvest,
		MaxCells: opts.MaxCells,
	}, network, master.WithLogger(log.Named("master")))
	if err != nil {
		return nil, err
	}
	if opts.OnStart != nil {
		opts.OnStart(sched)
	}

	agents := make([]*worker.Agent, 0, opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		id := types.WorkerID(fmt.Sprintf("worker-%d", i))
		link, err := network.Link(id)
		if err != nil {
			return nil, err
		}
		agent, err := worker.NewAgent(&worker.Config{Grid: opts.Grid, Viewport: vp}, link,
			worker.WithLogger(log.Named("worker").With(zap.String("worker", string(id)))))
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}

	g, gctx := errgroup.WithContext(ctx)
	var report *master.Report
	g.Go(func() error {
		var err error
		report, err = sched.Run(gctx)
		return err
	})
	for _, agent := range agents {
		agent := agent
		g.Go(func() error {
			_, err := agent.Run(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}
