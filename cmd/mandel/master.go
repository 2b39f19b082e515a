package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refrantz/paralellMandelbrot/api/rest"
	"github.com/refrantz/paralellMandelbrot/internal/config"
	"github.com/refrantz/paralellMandelbrot/internal/master"
	"github.com/refrantz/paralellMandelbrot/pkg/logger"
)

func newMasterCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "master",
		Short: "Serve a render to remote workers",
		Long: `Start a master that waits for the configured number of workers to connect
over websocket, hands out row chunks until the image is complete, then writes
it and exits.`,
		Example: `  mandel master --address :8090 --workers 4 --width 4000 --height 4000
  mandel worker --master-url ws://localhost:8090/api/v1/workers/ws`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cleanup, err := setup(cmd, opts, config.RoleMaster)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			report, err := serveRun(ctx, cfg)
			if err != nil {
				return err
			}
			return finish(cmd, opts, cfg, report)
		},
	}
	addGridFlags(cmd)
	addPoolFlags(cmd)
	cmd.Flags().String("address", "", "listen address")
	return cmd
}

// serveRun listens for workers and drives one scheduler run to completion.
func serveRun(ctx context.Context, cfg *config.Config) (*master.Report, error) {
	log := logger.Named("master")

	hub := rest.NewWorkerHub(rest.HubConfig{
		Grid:     cfg.Grid.Spec(),
		Viewport: cfg.Grid.Viewport(),
		Capacity: cfg.Master.Workers,
	}, log.Named("hub"))
	sched, err := master.NewScheduler(&master.Config{
		Grid:     cfg.Grid.Spec(),
		Workers:  cfg.Master.Workers,
		Harvest:  master.HarvestMode(cfg.Master.Harvest),
		MaxCells: cfg.Master.MaxCells,
	}, hub, master.WithLogger(log))
	if err != nil {
		return nil, err
	}

	srvCfg := rest.DefaultConfig()
	srvCfg.Address = cfg.Master.Address
	srv := rest.NewServer(hub, sched, srvCfg, log.Named("http"))

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()
	defer func() {
		hub.Close()
		if err := srv.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Warn("server shutdown failed", zap.Error(err))
		}
	}()
	log.Info("waiting for workers",
		zap.String("address", cfg.Master.Address),
		zap.Int("workers", cfg.Master.Workers),
		zap.String("run_id", sched.RunID()))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	type outcome struct {
		report *master.Report
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		report, err := sched.Run(runCtx)
		done <- outcome{report, err}
	}()

	select {
	case out := <-done:
		return out.report, out.err
	case err := <-serveErr:
		cancel()
		<-done
		if err == nil {
			err = errors.New("server stopped before the run finished")
		}
		return nil, err
	}
}
