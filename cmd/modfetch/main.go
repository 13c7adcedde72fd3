package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vertextoedge/modfetch/internal/config"
	"github.com/vertextoedge/modfetch/internal/logger"
)

var version = "dev"

// errRunFailed makes the process exit non-zero without printing usage
var errRunFailed = errors.New("one or more downloads failed")

var configPath string

var rootCmd = &cobra.Command{
	Use:           "modfetch",
	Short:         "Download, resume and verify modlist archives",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default ./"+config.DefaultConfigName+")")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

// setup loads configuration and initializes the global logger
func setup() (*config.Config, error) {
	cfg, err := config.Load(configPath, version)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func main() {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		if !errors.Is(err, errRunFailed) {
			printError(err.Error())
		}
		os.Exit(1)
	}
}
