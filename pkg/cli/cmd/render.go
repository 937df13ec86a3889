package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gantryhq/gantry/pkg/manifest"
)

// renderCmd represents the render command
var renderCmd = &cobra.Command{
	Use:   "render [file or directory]...",
	Short: "Print manifests as normalized YAML",
	Long: `Render parses manifests and reprints them as a single normalized
multi-document YAML stream, in input order. Useful to see exactly what
gantry parsed out of a directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return fmt.Errorf("at least one file or directory is required")
		}

		set, err := manifest.Load(args...)
		if err != nil {
			return err
		}
		return set.Render(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
}
