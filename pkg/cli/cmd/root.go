package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gantryhq/gantry/internal/config"
	"github.com/gantryhq/gantry/pkg/log"
	"github.com/gantryhq/gantry/pkg/version"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gantry",
	Short: "Gantry - run Kubernetes manifests on local Docker",
	Long: `Gantry takes the Kubernetes manifests you already have, checks them
for cross-resource mistakes, and runs the described stack on a local
Docker engine: services become network aliases, claims become named
volumes, and configmaps feed container environments.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			cmd.Help()
			return
		}
	},
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./gantryfile.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	viper.SetEnvPrefix("GANTRY")
	viper.AutomaticEnv()
}

// initConfig loads the gantryfile and configures the default logger.
func initConfig() {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}
	cfg = loaded

	level := log.ParseLevel(cfg.Log.Level)
	if verbose {
		level = log.DebugLevel
	}
	opts := []log.LoggerOption{log.WithLevel(level)}
	if cfg.Log.Format == "json" {
		opts = append(opts, log.WithFormatter(&log.JSONFormatter{}))
	}
	log.SetDefaultLogger(log.NewLogger(opts...))
}

// activeConfig returns the loaded config, falling back to defaults when a
// command runs before initConfig (as in tests).
func activeConfig() *config.Config {
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg
}
