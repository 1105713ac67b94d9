package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUpdateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Roll a new image version onto an existing stack",
		Long: `Update an already-provisioned stack to the image version in the
descriptor. Nothing is created: the stack is rediscovered by its project
tag, the new image is built, and the app's image reference is swapped in
a single mutation. A failed update leaves the running stack untouched.`,
		Example: `  # Build and roll out the image version from the descriptor
  stackpilot update

  # Update the staging stack
  stackpilot update -c staging.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, false)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			rc, err := rt.newRunContext()
			if err != nil {
				return err
			}
			summary, err := rt.seq.Update(ctx, rc)
			if err != nil {
				rt.reportFailure(rc, err)
				return err
			}
			fmt.Print(summary.String())
			return nil
		},
	}

	return cmd
}
