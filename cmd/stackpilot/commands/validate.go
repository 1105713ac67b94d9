package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackpilot/stackpilot/pkg/config"
	"github.com/stackpilot/stackpilot/pkg/orchestrate"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a deployment descriptor",
		Long: `Validate a deployment descriptor without touching the cloud.

This command checks:
  - YAML syntax and required fields
  - field constraints (environment, port ranges, retry budgets)
  - that every derived resource name can be made valid`,
		Example: `  # Validate the default descriptor
  stackpilot validate

  # Validate a specific file
  stackpilot validate ./prod.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if len(args) > 0 {
				path = args[0]
			}

			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			names, err := orchestrate.DeriveNames(cfg)
			if err != nil {
				return err
			}

			fmt.Printf("%s is valid\n", path)
			fmt.Printf("  project:     %s (%s, %s)\n", cfg.Project, cfg.Environment, cfg.Location)
			fmt.Printf("  group:       %s\n", names.Group)
			fmt.Printf("  registry:    %s\n", names.Registry)
			fmt.Printf("  identity:    %s\n", names.Identity)
			fmt.Printf("  sql server:  %s\n", names.SQLServer)
			fmt.Printf("  database:    %s\n", names.Database)
			fmt.Printf("  environment: %s\n", names.Environment)
			fmt.Printf("  app:         %s\n", names.App)
			return nil
		},
	}

	return cmd
}
