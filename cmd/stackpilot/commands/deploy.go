package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeployCommand() *cobra.Command {
	var preserve bool

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Provision a full application stack",
		Long: `Provision a complete application stack from the deployment descriptor.

The plan runs in dependency order:
  - validate the descriptor with the external validator
  - create the resource group (everything lives under it)
  - create the container registry and build the image
  - create the managed identity, wait for directory visibility,
    grant it registry pull
  - create the SQL server and database, apply the schema
  - create the app environment and deploy the container app
  - wait for the HTTP health endpoint, then record the summary

On failure the partial stack is deleted with a single transitive delete
of the resource group, unless --preserve-on-failure is set.`,
		Example: `  # Deploy from the default descriptor
  stackpilot deploy

  # Deploy a specific descriptor, keep partial resources on failure
  stackpilot deploy -c prod.yaml --preserve-on-failure`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, preserve)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			rc, err := rt.newRunContext()
			if err != nil {
				return err
			}
			summary, err := rt.seq.Deploy(ctx, rc)
			if err != nil {
				rt.reportFailure(rc, err)
				return err
			}
			fmt.Print(summary.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&preserve, "preserve-on-failure", false, "keep partial resources for inspection instead of rolling back")

	return cmd
}
