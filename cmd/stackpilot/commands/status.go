package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/stackpilot/stackpilot/pkg/config"
	"github.com/stackpilot/stackpilot/pkg/stores"
)

func newStatusCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show run history and the last recorded deployment",
		Long: `Show the last recorded deployment summary for the project plus its
recent run history from the local store. This reads only the local
database; it never queries the cloud.`,
		Example: `  # Show status for the default descriptor's project
  stackpilot status

  # Show the last 20 runs as JSON
  stackpilot status --limit 20 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			st, err := stores.NewSQLiteStore(stores.Config{Path: storePath})
			if err != nil {
				return err
			}
			if err := st.Init(ctx); err != nil {
				return fmt.Errorf("open run history: %w", err)
			}
			defer st.Close()
			if err := st.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate run history: %w", err)
			}

			dep, err := st.GetDeployment(ctx, cfg.Project)
			if err != nil && !errors.Is(err, stores.ErrDeploymentNotFound) {
				return err
			}
			runs, err := st.ListRuns(ctx, cfg.Project, limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(struct {
					Deployment *stores.DeploymentRecord `json:"deployment,omitempty"`
					Runs       []*stores.Run            `json:"runs"`
				}{dep, runs})
			}

			if dep == nil {
				fmt.Printf("no recorded deployment for project %s\n", cfg.Project)
			} else {
				fmt.Printf("project %s, last %s run %s\n", dep.Project, dep.Kind, dep.UpdatedAt.Format(time.RFC3339))
				fmt.Printf("  group:    %s\n", dep.GroupName)
				fmt.Printf("  image:    %s\n", dep.Image)
				if dep.AppURL != "" {
					fmt.Printf("  url:      %s\n", dep.AppURL)
				}
				if dep.DatabaseFQDN != "" {
					fmt.Printf("  database: %s\n", dep.DatabaseFQDN)
				}
			}

			if len(runs) == 0 {
				fmt.Println("no runs recorded")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tKIND\tSTATUS\tRUN")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					run.StartedAt.Format(time.RFC3339), run.Kind, run.Status, run.ID)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of runs to list")

	return cmd
}
