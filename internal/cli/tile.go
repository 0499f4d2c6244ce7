package cli

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"tilestitch/pkg/labelio"
	"tilestitch/pkg/orchestrator"
	"tilestitch/pkg/tiling"
)

// tileCommand cuts channel images into the padded tiles the labeler reads.
func (c *CLI) tileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tile <folder> <name> [channel...]",
		Short: "Cut channel images into padded tiles for labeling",
		Long: `Cut the single-channel images of folder/name into padded tiles.

Each channel image <unstacked>/<folder>/<name>_<channel>.tif is split along
the configured grid into <tiledForLabeling>/<folder>/<name>_<channel>/,
one TIFF per tile named by its origin. Without channels, the nucleus and
membrane channels of the labeler configuration are tiled.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runTile(cmd.Context(), args[0], args[1], args[2:])
		},
	}
	return cmd
}

func (c *CLI) runTile(ctx context.Context, folder, name string, channels []string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	logger := log.FromContext(ctx)
	layout := orchestrator.NewLayout(cfg, folder, name)
	if len(channels) == 0 {
		channels = []string{cfg.Labeler.NucleusChannel, cfg.Labeler.MembraneChannel}
	}

	for _, ch := range channels {
		start := time.Now()
		img, err := labelio.ReadImage(layout.ChannelPath(ch))
		if err != nil {
			return fmt.Errorf("load channel %s: %w", ch, err)
		}
		b := img.Bounds()
		plan, err := tiling.NewPlan(b.Dx(), b.Dy(), cfg.Tiling)
		if err != nil {
			return err
		}

		err = tiling.Split(ctx, img, plan, cfg.Workers(), func(ctx context.Context, t tiling.Tile, sub image.Image) error {
			path := layout.ChannelTilePath(ch, t)
			logger.Debug("writing tile", "tile", t, "path", path)
			return labelio.WriteImage(path, sub)
		})
		if err != nil {
			return fmt.Errorf("tile channel %s: %w", ch, err)
		}
		logger.Info("tiled channel", "channel", ch, "tiles", plan.Rows()*plan.Cols(), "elapsed", elapsed(start))
	}
	return nil
}
