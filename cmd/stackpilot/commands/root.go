package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath    string
	verbose       bool
	jsonOutput    bool
	storePath     string
	noStore       bool
	commandLog    string
	metricsListen string
	traceExporter string
	cloudBin      string
	sqlBin        string
	validatorBin  string
)

// buildVersion is the version string shown by the version command.
var buildVersion string

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	buildVersion = version
	rootCmd := &cobra.Command{
		Use:   "stackpilot",
		Short: "Stackpilot - cloud application stack orchestrator",
		Long: `Stackpilot provisions a complete application stack through the cloud
vendor's command-line tools: resource group, container registry, image
build, managed identity, SQL database, and the container application
itself, in dependency order with bounded retries at every
eventual-consistency join.

Commands:
  - deploy:   provision a full stack from a deployment descriptor
  - update:   roll a new image version onto an existing stack
  - destroy:  tear a stack down (one transitive delete)
  - status:   show run history and the last recorded deployment
  - validate: check a descriptor without touching the cloud
  - watch:    redeploy automatically when the descriptor changes`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "stackpilot.yaml", "deployment descriptor path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "log in JSON format")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "stackpilot.db", "run history database path")
	rootCmd.PersistentFlags().BoolVar(&noStore, "no-store", false, "disable run history persistence")
	rootCmd.PersistentFlags().StringVar(&commandLog, "command-log", "stackpilot-commands.log", "external command transcript path")
	rootCmd.PersistentFlags().StringVar(&metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address (disabled when empty)")
	rootCmd.PersistentFlags().StringVar(&traceExporter, "trace-exporter", "", "trace exporter: otlp, stdout (disabled when empty)")
	rootCmd.PersistentFlags().StringVar(&cloudBin, "cloud-bin", "az", "cloud vendor CLI binary")
	rootCmd.PersistentFlags().StringVar(&sqlBin, "sql-bin", "sqlcmd", "SQL client binary")
	rootCmd.PersistentFlags().StringVar(&validatorBin, "validator-bin", "config-lint", "configuration validator binary")

	// Add subcommands
	rootCmd.AddCommand(newDeployCommand())
	rootCmd.AddCommand(newUpdateCommand())
	rootCmd.AddCommand(newDestroyCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}
