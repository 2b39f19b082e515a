package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refrantz/paralellMandelbrot/internal/config"
	"github.com/refrantz/paralellMandelbrot/internal/master"
	"github.com/refrantz/paralellMandelbrot/internal/output/ppm"
	"github.com/refrantz/paralellMandelbrot/internal/output/summary"
	"github.com/refrantz/paralellMandelbrot/pkg/logger"
	"github.com/refrantz/paralellMandelbrot/pkg/runner"
)

func newRunCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Render with a master and an in-process worker pool",
		Example: `  # 1920x1080 with 8 workers, 16 rows per chunk
  mandel run --width 1920 --height 1080 --workers 8 --chunk-size 16

  # one row per request, results collected before the next dispatch
  mandel run --chunk-size 1 --harvest sync`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cleanup, err := setup(cmd, opts, config.RoleLocal)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			report, err := runner.Run(ctx, runner.RunOptions{
				Grid:     cfg.Grid.Spec(),
				Viewport: cfg.Grid.Viewport(),
				Workers:  cfg.Master.Workers,
				Harvest:  master.HarvestMode(cfg.Master.Harvest),
				MaxCells: cfg.Master.MaxCells,
				Logger:   logger.L(),
			})
			if err != nil {
				return err
			}
			return finish(cmd, opts, cfg, report)
		},
	}
	addGridFlags(cmd)
	addPoolFlags(cmd)
	return cmd
}

// finish writes the image and, unless quiet, the run summary.
func finish(cmd *cobra.Command, opts *globalOptions, cfg *config.Config, report *master.Report) error {
	if err := ppm.WriteFile(cfg.Output.Path, report.Grid, report.Cells); err != nil {
		return err
	}
	logger.Info("image written", zap.String("path", cfg.Output.Path), zap.String("run_id", report.RunID))
	if opts.quiet {
		return nil
	}
	return summary.Write(cmd.OutOrStdout(), report)
}
