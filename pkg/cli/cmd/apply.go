package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gantryhq/gantry/pkg/cli/format"
	"github.com/gantryhq/gantry/pkg/deployer"
	"github.com/gantryhq/gantry/pkg/manifest"
)

var (
	applyFiles      []string
	applyForce      bool
	applyDryRun     bool
	applyNamespace  string
	applyBuildSpecs []string
)

// applyCmd represents the apply command
var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Run a manifest set on the local Docker engine",
	Long: `Apply loads the manifests, lints them, and brings the local Docker
engine in line with what they describe. Lint errors block the apply
unless --force is given. Re-applying the same manifests replaces the
workload's containers; named volumes are created but never removed.

Examples:
  # Deploy a stack
  gantry apply -f ./manifests/

  # Show what would happen without touching Docker
  gantry apply -f ./manifests/ --dry-run

  # Deploy despite lint errors
  gantry apply -f ./manifests/ --force`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := append(applyFiles, args...)
		if len(paths) == 0 {
			return fmt.Errorf("at least one manifest file or directory is required (-f)")
		}

		namespace := applyNamespace
		if namespace == "" {
			namespace = activeConfig().Namespace
		}
		set, err := manifest.LoadWithNamespace(namespace, paths...)
		if err != nil {
			return err
		}

		contexts, err := parseBuildSpecs(applyBuildSpecs)
		if err != nil {
			return err
		}
		opts := deployer.Options{
			Force:         applyForce,
			StopTimeout:   activeConfig().Deploy.StopTimeout,
			BuildContexts: contexts,
		}

		if applyDryRun {
			d := deployer.New(nil, nil, nil, nil)
			plan, err := d.Plan(set, opts)
			if err != nil {
				return err
			}
			printPlan(plan)
			return nil
		}

		d, _, cleanup, err := newDeployer()
		if err != nil {
			return err
		}
		defer cleanup()

		plan, err := d.Apply(context.Background(), set, opts)
		if plan != nil && len(plan.Findings) > 0 {
			format.PrintFindings(os.Stdout, plan.Findings)
		}
		if err != nil {
			if errors.Is(err, deployer.ErrLintGate) {
				return fmt.Errorf("refusing to apply: %w", err)
			}
			return err
		}

		total := 0
		for _, step := range plan.Workloads {
			total += len(step.Instances)
		}
		fmt.Printf("%s Applied %d workload(s), %d instance(s)\n",
			format.StatusSymbol(true), len(plan.Workloads), total)
		return nil
	},
}

// printPlan renders a dry-run plan.
func printPlan(plan *deployer.Plan) {
	if len(plan.Findings) > 0 {
		format.PrintFindings(os.Stdout, plan.Findings)
		fmt.Println()
	}
	for _, ref := range plan.ConfigMaps {
		fmt.Printf("config   %s\n", ref)
	}
	for _, vol := range plan.Volumes {
		fmt.Printf("volume   %s (from %s)\n", vol.Volume, vol.Claim)
	}
	for _, step := range plan.Workloads {
		fmt.Printf("workload %s (%d replica(s))\n", step.Ref, step.Replicas)
		for _, instance := range step.Instances {
			fmt.Printf("  instance %s image=%s aliases=%v\n",
				instance.Name, instance.Image, instance.Aliases)
		}
	}
}

func init() {
	rootCmd.AddCommand(applyCmd)

	applyCmd.Flags().StringArrayVarP(&applyFiles, "filename", "f", nil, "Manifest files or directories, repeatable")
	applyCmd.Flags().BoolVar(&applyForce, "force", false, "Apply even when lint reports errors")
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Print the plan without touching Docker")
	applyCmd.Flags().StringVarP(&applyNamespace, "namespace", "n", "", "Namespace for objects that do not set one (default from gantryfile)")
	applyCmd.Flags().StringArrayVar(&applyBuildSpecs, "build", nil, "Build context as image=dir, repeatable")
}
