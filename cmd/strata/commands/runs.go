package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newRunsCommand() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List past runs, newest first",
		Long: `List persisted run history.

Runs are only recorded when a database is configured; the in-memory
store forgets them when the process exits.`,
		Example: `  # List recent runs
  strata runs --db strata.db

  # Machine-readable
  strata runs --db strata.db --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			runs, err := rt.store.ListRuns(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(runs)
			}
			if len(runs) == 0 {
				fmt.Println("no runs recorded")
				return nil
			}
			for _, run := range runs {
				fmt.Printf("%s  %-4s  %-9s  started=%s  applied=%d failed=%d skipped=%d\n",
					run.ID, run.Direction, run.Status,
					run.StartedAt.Format(time.RFC3339),
					len(run.Report.Applied), len(run.Report.Failed), len(run.Report.Skipped))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "runs to skip")

	return cmd
}
