package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refrantz/paralellMandelbrot/internal/config"
	"github.com/refrantz/paralellMandelbrot/internal/tracing"
	"github.com/refrantz/paralellMandelbrot/pkg/logger"
)

const (
	// Version is the current release.
	Version = "0.1.0"
	// Banner is printed by the version command.
	Banner = `
   .-.   mandel %s
  (   )  master/worker escape-time renderer
   '-'
`
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	cfgFile string
	debug   bool
	quiet   bool
}

// flagPaths maps command-line flags to configuration paths.
var flagPaths = map[string]string{
	"width":        "grid.width",
	"height":       "grid.height",
	"max-iter":     "grid.max_iter",
	"chunk-size":   "grid.chunk_size",
	"workers":      "master.workers",
	"harvest":      "master.harvest",
	"max-cells":    "master.max_cells",
	"address":      "master.address",
	"output":       "output.path",
	"master-url":   "worker.master_url",
	"id":           "worker.id",
	"dial-timeout": "worker.dial_timeout",
	"trace":        "tracing.enabled",
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		logger.Error("command failed", zap.Error(err))
		logger.Sync()
		return 1
	}
	logger.Sync()
	return 0
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "mandel",
		Short: "Distributed Mandelbrot renderer",
		Long: `mandel renders the Mandelbrot set by splitting the image into row chunks
that a pool of workers pull from a master, either in one process or over
websocket connections.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file path")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "only log warnings and errors, print no summary")
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetVersionTemplate(fmt.Sprintf(Banner, Version) + "\n")

	root.AddCommand(
		newRunCmd(opts),
		newMasterCmd(opts),
		newWorkerCmd(opts),
		newSequentialCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), Banner, Version)
		},
	}
}

// addGridFlags registers the flags every rendering command accepts.
func addGridFlags(cmd *cobra.Command) {
	cmd.Flags().Int("width", 0, "image width in pixels")
	cmd.Flags().Int("height", 0, "image height in pixels")
	cmd.Flags().Int("max-iter", 0, "iteration cap per pixel")
	cmd.Flags().StringP("output", "o", "", "PPM output path")
}

func addPoolFlags(cmd *cobra.Command) {
	cmd.Flags().Int("chunk-size", 0, "rows per assignment")
	cmd.Flags().Int("workers", 0, "worker pool size")
	cmd.Flags().String("harvest", "", "result collection: async or sync")
	cmd.Flags().Int("max-cells", 0, "refuse grids larger than this many cells (0 = no limit)")
	cmd.Flags().Bool("trace", false, "export spans to stderr")
}

// setup loads and validates configuration for role, then installs the logger
// and, if enabled, the span exporter. The returned cleanup must be called.
func setup(cmd *cobra.Command, opts *globalOptions, role config.Role) (*config.Config, func(), error) {
	overrides := make(map[string]string)
	for name, path := range flagPaths {
		f := cmd.Flags().Lookup(name)
		if f != nil && f.Changed {
			overrides[path] = f.Value.String()
		}
	}

	cfg, err := config.NewLoader().
		WithConfigPath(opts.cfgFile).
		WithCmdArgs(overrides).
		Load()
	if err != nil {
		return nil, nil, err
	}

	logCfg := &logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
	}
	switch {
	case opts.debug:
		logCfg.Level = "debug"
	case opts.quiet:
		logCfg.Level = "warn"
	}
	logger.Set(logger.New(logCfg, cmd.ErrOrStderr()))

	if err := config.ValidateConfig(cfg, role); err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Init("mandel", Version, cfg.Tracing.Output)
		if err != nil {
			return nil, nil, fmt.Errorf("init tracing: %w", err)
		}
		cleanup = func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("tracing shutdown failed", zap.Error(err))
			}
		}
	}
	return cfg, cleanup, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
