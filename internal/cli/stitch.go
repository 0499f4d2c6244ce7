package cli

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// stitchCommand runs both passes over the labeled tiles of one image.
func (c *CLI) stitchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stitch <folder> <name>",
		Short: "Stitch labeled tiles into one label map",
		Long: `Stitch the labeled tiles of folder/name into one whole-image label map.

Pass X merges the tiles of every row into a row strip, pass Y merges the
row strips into the final map. Row strips, the final map and a manifest
describing the run are written under the configured directories.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			o, layout, err := c.newOrchestrator(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			start := time.Now()
			man, err := o.Run(ctx)
			if err != nil {
				return err
			}
			log.FromContext(ctx).Info("stitched label map",
				"path", layout.FinalPath(), "maxID", man.MaxID, "elapsed", elapsed(start))
			return nil
		},
	}
}

// stitchXCommand runs pass X only.
func (c *CLI) stitchXCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stitch-x <folder> <name>",
		Short: "Merge the tiles of every row into row strips",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			o, _, err := c.newOrchestrator(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			start := time.Now()
			report, err := o.PassX(ctx)
			if err != nil {
				return err
			}
			t := report.Totals()
			log.FromContext(ctx).Info("stitched row strips",
				"rows", o.Plan().Rows(), "filled", t.Filled, "discarded", t.Discarded, "elapsed", elapsed(start))
			return nil
		},
	}
}

// stitchYCommand resumes from persisted row strips.
func (c *CLI) stitchYCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stitch-y <folder> <name>",
		Short: "Merge persisted row strips into the final label map",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			o, layout, err := c.newOrchestrator(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			start := time.Now()
			man, err := o.RunY(ctx)
			if err != nil {
				return err
			}
			log.FromContext(ctx).Info("stitched label map",
				"path", layout.FinalPath(), "maxID", man.MaxID, "elapsed", elapsed(start))
			return nil
		},
	}
}
