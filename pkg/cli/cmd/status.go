package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var statusNamespace string

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show deployed instances and their observed state",
	Long: `Status lists the instances gantry has deployed in a namespace along
with what the Docker engine currently reports for each.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, _, cleanup, err := newDeployer()
		if err != nil {
			return err
		}
		defer cleanup()

		namespace := statusNamespace
		if namespace == "" {
			namespace = activeConfig().Namespace
		}

		states, err := d.Status(context.Background(), namespace)
		if err != nil {
			return err
		}

		table := NewInstanceTable()
		return table.Render(states)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusNamespace, "namespace", "n", "", "Namespace to inspect (default from gantryfile)")
}
