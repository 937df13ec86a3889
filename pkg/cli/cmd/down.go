package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gantryhq/gantry/pkg/cli/format"
	"github.com/gantryhq/gantry/pkg/deployer"
)

var downNamespace string

// downCmd represents the down command
var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop and remove a deployed stack",
	Long: `Down stops and removes every instance gantry deployed in a namespace
and clears the recorded state. Named volumes are kept, so a later apply
finds the data where it was left.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, _, cleanup, err := newDeployer()
		if err != nil {
			return err
		}
		defer cleanup()

		namespace := downNamespace
		if namespace == "" {
			namespace = activeConfig().Namespace
		}

		if err := d.Down(context.Background(), namespace, deployer.Options{
			StopTimeout: activeConfig().Deploy.StopTimeout,
		}); err != nil {
			return err
		}

		fmt.Printf("%s Namespace %s is down (volumes kept)\n", format.StatusSymbol(true), namespace)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(downCmd)

	downCmd.Flags().StringVarP(&downNamespace, "namespace", "n", "", "Namespace to tear down (default from gantryfile)")
}
