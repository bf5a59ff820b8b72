package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DimaJoyti/priceguard/internal/config"
)

var (
	container *Container

	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// rootCmd is the priceguard binary's entrypoint. Every subcommand shares
// the same PersistentPreRunE: load config, build the Container, and
// make it available to the subcommand; PersistentPostRun tears it down.
var rootCmd = &cobra.Command{
	Use:   "priceguard",
	Short: "PriceGuard price-monitoring core",
	Long: `PriceGuard watches tracked products for price drops, restocks, and
other changes worth alerting a user about.

It schedules monitoring tasks by priority, dispatches them across
per-retailer worker pools, analyzes the resulting observations against
stored price history, evaluates alert rules against the events that
analysis produces, and delivers the resulting alerts through whichever
channel (email, push, in-app) each user prefers.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := config.Validate(cfg); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		c, err := NewContainer(cfg)
		if err != nil {
			return fmt.Errorf("build container: %w", err)
		}
		container = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if container == nil {
			return
		}
		if err := container.Close(); err != nil {
			container.Logger.Error("error closing container", zap.Error(err))
		}
	},
}

// Execute runs the root command, exiting the process with a non-zero
// status on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scheduleOnceCmd)
	rootCmd.AddCommand(trackEngagementCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("priceguard %s (built %s, commit %s)\n", version, buildTime, gitCommit)
	},
}
