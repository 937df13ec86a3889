package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gantryhq/gantry/pkg/runner"
)

var (
	logsNamespace  string
	logsFollow     bool
	logsTail       int
	logsTimestamps bool
)

// logsCmd represents the logs command
var logsCmd = &cobra.Command{
	Use:   "logs <instance>",
	Short: "Show the logs of a deployed instance",
	Long: `Logs streams the output of a deployed instance, for example falcon-0.

Examples:
  # Show the last 100 lines
  gantry logs falcon-0 --tail 100

  # Follow output as it arrives
  gantry logs redis-0 -f`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, r, cleanup, err := newDeployer()
		if err != nil {
			return err
		}
		defer cleanup()

		namespace := logsNamespace
		if namespace == "" {
			namespace = activeConfig().Namespace
		}

		instance, err := d.Instance(context.Background(), namespace, args[0])
		if err != nil {
			return fmt.Errorf("instance %s not found in namespace %s: %w", args[0], namespace, err)
		}

		stream, err := r.GetLogs(context.Background(), instance, runner.LogOptions{
			Follow:     logsFollow,
			Tail:       logsTail,
			Timestamps: logsTimestamps,
		})
		if err != nil {
			return err
		}
		defer stream.Close()

		_, err = io.Copy(os.Stdout, stream)
		return err
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVarP(&logsNamespace, "namespace", "n", "", "Namespace of the instance (default from gantryfile)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Stream new output as it arrives")
	logsCmd.Flags().IntVar(&logsTail, "tail", 0, "Show only the last N lines (0 for all)")
	logsCmd.Flags().BoolVar(&logsTimestamps, "timestamps", false, "Prefix lines with timestamps")
}
