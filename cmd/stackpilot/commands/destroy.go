package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDestroyCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Tear down a provisioned stack",
		Long: `Delete the stack's resource group. The delete is transitive and
asynchronous: every resource under the group is removed by the control
plane, and the command returns once the delete is accepted rather than
waiting for it to finish.`,
		Example: `  # Destroy after an interactive confirmation
  stackpilot destroy

  # Destroy without prompting
  stackpilot destroy --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, false)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			if !yes {
				fmt.Printf("This deletes every resource of project %q. Type the project name to confirm: ", rt.cfg.Project)
				var answer string
				fmt.Scanln(&answer)
				if answer != rt.cfg.Project {
					return fmt.Errorf("confirmation did not match project name, aborting")
				}
			}

			rc, err := rt.newRunContext()
			if err != nil {
				return err
			}
			if err := rt.seq.Destroy(ctx, rc); err != nil {
				rt.reportFailure(rc, err)
				return err
			}
			fmt.Printf("delete accepted for project %s; resources are being removed in the background\n", rt.cfg.Project)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}
