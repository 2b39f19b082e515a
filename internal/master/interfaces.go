package master

import (
	"context"

	"github.com/refrantz/paralellMandelbrot/pkg/types"
)

// Transport is the master's side of the worker channel.
//
// Ready delivers the identity of every worker that asks for work. Results
// delivers completed chunks from any worker. Failures reports errors the
// transport observed on its own goroutines; every value is fatal to the run.
// Reply sends exactly one answer to a ready signal.
type Transport interface {
	Ready() <-chan types.WorkerID
	Results() <-chan *types.ChunkResult
	Failures() <-chan error
	Reply(ctx context.Context, id types.WorkerID, reply *types.Reply) error
}
