// Package cli implements the tilestitch command-line interface.
//
// # Commands
//
//   - plan: print the tile grid of an image, or the tiles covering a pixel
//   - tile: cut channel images into padded tiles for the external labeler
//   - stitch: run pass X and pass Y over the labeled tiles of an image
//   - stitch-x, stitch-y: run one pass; stitch-y resumes from row strips
//   - export: convert a label map to a 16-bit TIFF or PNG
//   - config init: write the default configuration file
//
// All commands accept --config (YAML or TOML) and --verbose (-v) for
// debug-level logging.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"tilestitch/pkg/config"
	"tilestitch/pkg/orchestrator"
)

const appName = "tilestitch"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	verbose    bool
}

// New creates a CLI that logs to w at level.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Level:           level,
	})}
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Tilestitch merges independently labeled image tiles into one label map",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if c.verbose {
				c.Logger.SetLevel(LogDebug)
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(log.WithContext(ctx, c.Logger.WithPrefix(cmd.Name())))
		},
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "tilestitch.yaml", "configuration file (YAML or TOML)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(c.planCommand())
	root.AddCommand(c.tileCommand())
	root.AddCommand(c.stitchCommand())
	root.AddCommand(c.stitchXCommand())
	root.AddCommand(c.stitchYCommand())
	root.AddCommand(c.exportCommand())
	root.AddCommand(c.configCommand())

	return root
}

// loadConfig reads and validates the configuration file. A missing file
// yields the defaults.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Output.Verbose {
		c.Logger.SetLevel(LogDebug)
	}
	return cfg, nil
}

// newOrchestrator wires the directory store of folder/name to an
// orchestrator sized from the reference channel.
func (c *CLI) newOrchestrator(ctx context.Context, folder, name string) (*orchestrator.Orchestrator, orchestrator.Layout, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, orchestrator.Layout{}, err
	}
	layout := orchestrator.NewLayout(cfg, folder, name)
	width, height, err := layout.ReferenceDimensions()
	if err != nil {
		return nil, layout, err
	}

	logger := log.FromContext(ctx).With("image", layout.Base())
	store := orchestrator.NewDirStore(layout, cfg.Output.ExportTIFF, logger)
	o, err := orchestrator.New(cfg, width, height, store, store, logger)
	if err != nil {
		return nil, layout, err
	}
	return o, layout, nil
}

// elapsed is the run time since start, as logged when a command finishes.
func elapsed(start time.Time) time.Duration {
	return time.Since(start).Round(time.Millisecond)
}
