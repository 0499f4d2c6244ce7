package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"tilestitch/pkg/labelio"
)

// exportCommand converts a label map between formats.
func (c *CLI) exportCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <labels.lbl>",
		Short: "Convert a label map to a 16-bit TIFF or PNG",
		Long: `Convert a label map to another format, picked by the output extension.

TIFF and PNG hold 16-bit ids; maps with larger ids are refused.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			if output == "" {
				output = strings.TrimSuffix(input, filepath.Ext(input)) + labelio.FormatTIFF.Ext()
			}
			m, err := labelio.Read(input)
			if err != nil {
				return fmt.Errorf("load %s: %w", input, err)
			}
			if err := labelio.Write(output, m); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			log.FromContext(cmd.Context()).Info("exported label map", "path", output, "maxID", m.Max())
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: <input>.tif)")
	return cmd
}
