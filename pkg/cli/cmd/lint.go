package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gantryhq/gantry/pkg/cli/format"
	"github.com/gantryhq/gantry/pkg/lint"
	"github.com/gantryhq/gantry/pkg/manifest"
)

var (
	lintQuiet      bool
	lintRecursive  bool
	lintFormat     string
	lintBuildSpecs []string
)

// lintCmd represents the lint command
var lintCmd = &cobra.Command{
	Use:   "lint [file or directory]...",
	Short: "Check manifests for cross-resource mistakes",
	Long: `Lint loads Kubernetes manifests and checks that the resources agree
with each other: env vars against configmap keys, service selectors and
targetPorts against deployments, volume claims against workloads, and
(given build contexts) Dockerfiles against the manifests.

Examples:
  # Lint a manifest directory
  gantry lint ./manifests/

  # Include Dockerfile checks for an image built from ./backend
  gantry lint --build myapp/backend=./backend ./manifests/

  # Output JSON for CI
  gantry lint --format json ./manifests/`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return fmt.Errorf("at least one file or directory is required")
		}

		files, err := gatherManifestFiles(args, lintRecursive)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no YAML files found to lint")
		}

		start := time.Now()
		set, err := manifest.Load(files...)
		if err != nil {
			return err
		}

		contexts, err := parseBuildSpecs(lintBuildSpecs)
		if err != nil {
			return err
		}

		findings := lint.Run(&lint.Context{Set: set, BuildContexts: contexts})

		if lintFormat == "json" {
			out, err := format.FindingsJSON(findings)
			if err != nil {
				return err
			}
			fmt.Println(out)
		} else {
			format.PrintFindings(os.Stdout, findings)
			if !lintQuiet {
				errs := len(findings.Errors())
				format.PrintLintSummary(os.Stdout, set.Len(), errs, len(findings)-errs, time.Since(start))
			}
		}

		if findings.HasErrors() {
			return fmt.Errorf("lint found %d error(s)", len(findings.Errors()))
		}
		return nil
	},
}

// gatherManifestFiles expands the arguments into YAML file paths. Files are
// taken as-is; directories contribute their top-level YAML files, or their
// whole tree when recursive is set.
func gatherManifestFiles(args []string, recursive bool) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("error accessing %s: %w", arg, err)
		}

		if !info.IsDir() {
			files = append(files, arg)
			continue
		}

		if recursive {
			err := filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() && hasYAMLExtension(path) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("error walking directory %s: %w", arg, err)
			}
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("error reading directory %s: %w", arg, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && hasYAMLExtension(entry.Name()) {
				files = append(files, filepath.Join(arg, entry.Name()))
			}
		}
	}
	return files, nil
}

// hasYAMLExtension checks if a file has a YAML extension
func hasYAMLExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}

func init() {
	rootCmd.AddCommand(lintCmd)

	lintCmd.Flags().BoolVar(&lintQuiet, "quiet", false, "Only show findings, no summary")
	lintCmd.Flags().BoolVarP(&lintRecursive, "recursive", "r", false, "Recurse into subdirectories")
	lintCmd.Flags().StringVar(&lintFormat, "format", "text", "Output format (text, json)")
	lintCmd.Flags().StringArrayVar(&lintBuildSpecs, "build", nil, "Build context as image=dir, repeatable")
}
