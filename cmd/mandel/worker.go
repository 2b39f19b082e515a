package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refrantz/paralellMandelbrot/api/rest/client"
	"github.com/refrantz/paralellMandelbrot/internal/config"
	"github.com/refrantz/paralellMandelbrot/internal/worker"
	"github.com/refrantz/paralellMandelbrot/pkg/logger"
	"github.com/refrantz/paralellMandelbrot/pkg/types"
)

func newWorkerCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Compute chunks for a remote master",
		Long: `Connect to a master, register, and compute row chunks until the master
sends the termination sentinel. The grid and viewport come from the master.`,
		Example: `  mandel worker --master-url ws://10.0.0.5:8090/api/v1/workers/ws --id node-3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cleanup, err := setup(cmd, opts, config.RoleWorker)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			return runWorker(ctx, cfg)
		},
	}
	cmd.Flags().String("master-url", "", "master websocket url")
	cmd.Flags().String("id", "", "worker id (default: random uuid)")
	cmd.Flags().Duration("dial-timeout", 0, "how long to keep trying to reach the master")
	cmd.Flags().Bool("trace", false, "export spans to stderr")
	return cmd
}

func runWorker(ctx context.Context, cfg *config.Config) error {
	id := types.WorkerID(cfg.Worker.ID)
	if id == "" {
		id = types.WorkerID(uuid.NewString())
	}
	log := logger.Named("worker").With(zap.String("worker", string(id)))

	link, err := dialWithRetry(ctx, cfg.Worker.MasterURL, id, cfg.Worker.DialTimeout, log)
	if err != nil {
		return err
	}
	defer link.Close()
	log.Info("registered", zap.Int("width", link.Grid().Width), zap.Int("height", link.Grid().Height))

	agent, err := worker.NewAgent(&worker.Config{Grid: link.Grid(), Viewport: link.Viewport()}, link, worker.WithLogger(log))
	if err != nil {
		return err
	}
	stats, err := agent.Run(ctx)
	if err != nil {
		return err
	}
	log.Info("done", zap.Int("chunks", stats.Chunks), zap.Int("rows", stats.Rows), zap.Duration("busy", stats.Busy))
	return nil
}

// dialWithRetry keeps dialing until the master answers or timeout elapses.
// A refused registration is not retried.
func dialWithRetry(ctx context.Context, url string, id types.WorkerID, timeout time.Duration, log *zap.Logger) (*client.Link, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	backoff := 100 * time.Millisecond
	for attempt := 1; ; attempt++ {
		link, err := client.Dial(ctx, url, id, timeout)
		if err == nil {
			return link, nil
		}
		if errors.Is(err, client.ErrRejected) {
			return nil, err
		}
		log.Debug("dial failed", zap.Int("attempt", attempt), zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("master %s unreachable after %d attempts: %w", url, attempt, err)
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 2*time.Second)
	}
}
