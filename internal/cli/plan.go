package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tilestitch/pkg/orchestrator"
	"tilestitch/pkg/tiling"
)

// planCommand prints the tile grid of an image.
func (c *CLI) planCommand() *cobra.Command {
	var (
		width, height int
		at            string
	)

	cmd := &cobra.Command{
		Use:   "plan [folder name]",
		Short: "Print the tile grid of an image",
		Long: `Print the padded tile grid of an image.

The image size is read from the reference channel of folder/name, or given
directly with --width and --height. With --at x,y only the tiles whose padded
box contains that pixel are listed.`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if len(args) == 2 {
				width, height, err = orchestrator.NewLayout(cfg, args[0], args[1]).ReferenceDimensions()
				if err != nil {
					return err
				}
			} else if width <= 0 || height <= 0 {
				return fmt.Errorf("give folder and name, or --width and --height")
			}

			plan, err := tiling.NewPlan(width, height, cfg.Tiling)
			if err != nil {
				return err
			}
			if at == "" {
				printPlan(cmd.OutOrStdout(), plan)
				return nil
			}
			x, y, err := parsePoint(at)
			if err != nil {
				return err
			}
			for _, t := range plan.TilesAt(x, y) {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&width, "width", 0, "image width in pixels")
	cmd.Flags().IntVar(&height, "height", 0, "image height in pixels")
	cmd.Flags().StringVar(&at, "at", "", "list only the tiles covering pixel x,y")

	return cmd
}

func printPlan(w io.Writer, p *tiling.Plan) {
	fmt.Fprintf(w, "image %dx%d, %d rows x %d cols\n", p.Width, p.Height, p.Rows(), p.Cols())
	for i, s := range p.X.Spans {
		lo, hi := p.X.Core(i)
		fmt.Fprintf(w, "x %d: tile [%d,%d) core [%d,%d)\n", i, s.Start, s.End, lo, hi)
	}
	for i, s := range p.Y.Spans {
		lo, hi := p.Y.Core(i)
		fmt.Fprintf(w, "y %d: tile [%d,%d) core [%d,%d)\n", i, s.Start, s.End, lo, hi)
	}
}

// parsePoint parses "x,y".
func parsePoint(s string) (x, y int, err error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("invalid point %q, want x,y", s)
	}
	if x, err = strconv.Atoi(strings.TrimSpace(xs)); err != nil {
		return 0, 0, fmt.Errorf("invalid point %q: %w", s, err)
	}
	if y, err = strconv.Atoi(strings.TrimSpace(ys)); err != nil {
		return 0, 0, fmt.Errorf("invalid point %q: %w", s, err)
	}
	return x, y, nil
}
