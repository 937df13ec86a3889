package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gantryhq/gantry/pkg/build"
	"github.com/gantryhq/gantry/pkg/cli/format"
	"github.com/gantryhq/gantry/pkg/log"
)

var buildNoCache bool

// buildCmd represents the build command
var buildCmd = &cobra.Command{
	Use:   "build image=dir...",
	Short: "Build container images for a stack",
	Long: `Build produces the images a stack references, one image=dir pair per
argument. The Dockerfile is read from the context directory.

Examples:
  # Build the backend image
  gantry build myapp/backend:latest=./backend

  # Build several images without cache
  gantry build --no-cache myapp/backend=./backend myapp/frontend=./frontend`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return fmt.Errorf("at least one image=dir argument is required")
		}

		contexts, err := parseBuildSpecs(args)
		if err != nil {
			return err
		}

		r, err := newDockerRunner()
		if err != nil {
			return err
		}
		builder := build.NewBuilder(r.Client(), log.GetDefaultLogger().WithComponent("build"))

		for image, bc := range contexts {
			if err := builder.Build(context.Background(), build.Options{
				ContextDir: bc.Dir,
				Tags:       []string{image},
				NoCache:    buildNoCache,
			}); err != nil {
				return fmt.Errorf("build %s: %w", image, err)
			}
			fmt.Printf("%s Built %s\n", format.StatusSymbol(true), image)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().BoolVar(&buildNoCache, "no-cache", false, "Build without using the cache")
}
