package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refrantz/paralellMandelbrot/internal/config"
	"github.com/refrantz/paralellMandelbrot/internal/kernel"
	"github.com/refrantz/paralellMandelbrot/internal/output/ppm"
	"github.com/refrantz/paralellMandelbrot/pkg/logger"
)

func newSequentialCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sequential",
		Short: "Render in a single goroutine, without a master",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cleanup, err := setup(cmd, opts, config.RoleLocal)
			if err != nil {
				return err
			}
			defer cleanup()

			grid := cfg.Grid.Spec()
			start := time.Now()
			cells := kernel.Compute(grid, cfg.Grid.Viewport())
			elapsed := time.Since(start)

			if err := ppm.WriteFile(cfg.Output.Path, grid, cells); err != nil {
				return err
			}
			logger.Info("image written", zap.String("path", cfg.Output.Path), zap.Duration("elapsed", elapsed))
			if !opts.quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "rendered %dx%d in %s\n", grid.Width, grid.Height, elapsed.Round(time.Millisecond))
			}
			return nil
		},
	}
	addGridFlags(cmd)
	return cmd
}
