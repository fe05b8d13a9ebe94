// Poolctl is the device agent of a pool-automation controller.
//
// It drives the pump, valve and light outputs of the board, counts down
// filtration runs and is commanded and observed over MQTT. Wi-Fi credentials
// come from the local store, a pairing endpoint or a captive portal.
//
// Usage:
//
//	poolctl [command] [flags]
//
// The daemon is 'poolctl run'. See 'poolctl --help' for the maintenance
// commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/poolctl/internal/logging"
	"github.com/muurk/poolctl/internal/version"
)

func main() {
	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// Global flags
var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "poolctl",
	Short: "Pool automation device agent",
	Long: `Device agent for a pool-automation controller.

Drives the pump, valve and light outputs, runs the filtration timer and
publishes state over MQTT. Network credentials are provisioned through the
pairing endpoint or the captive portal when none are stored.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logLevel != "" {
			return logging.Initialize(logLevel)
		}
		return logging.InitializeFromEnv()
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $POOLCTL_CONFIG or /etc/poolctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); default $POOLCTL_LOG_LEVEL")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("poolctl %s\n", version.Full())
	},
}
