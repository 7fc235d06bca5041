package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openstrata/strata/pkg/graph"
)

func newUpCommand() *cobra.Command {
	var (
		manifestPath string
		policyDir    string
		environment  string
		maxParallel  int
	)

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Deploy a stack",
		Long: `Deploy every unit of a stack in dependency order.

Units at the same graph level run in parallel. Producers always complete
before their consumers start, and consumer inputs are resolved from
producer outputs at execution time. The first failure halts the run:
in-flight units finish, unreached dependents are reported as skipped.
Re-running up on an unchanged stack is a no-op.`,
		Example: `  # Deploy a stack
  strata up --manifest stack.yaml

  # Deploy with persistent run history
  strata up --manifest stack.yaml --db strata.db

  # Machine-readable report
  strata up --manifest stack.yaml --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()
			if maxParallel > 0 {
				rt.cfg.MaxParallel = maxParallel
			}

			stack, g, err := loadAndPlan(manifestPath)
			if err != nil {
				return err
			}
			if err := rt.gatePlan(ctx, stack.ToUnits(), "up", environment, policyDir); err != nil {
				return err
			}

			run, err := rt.orchestrator().Apply(ctx, g, graph.Up)
			if err != nil {
				return err
			}

			if err := printRunReport(run); err != nil {
				return err
			}
			if run.Status != graph.RunStatusSucceeded {
				return fmt.Errorf("run %s %s: %d failed, %d skipped",
					run.ID, run.Status, len(run.Report.Failed), len(run.Report.Skipped))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "stack.yaml", "stack manifest file")
	cmd.Flags().StringVar(&policyDir, "policy-dir", "", "directory of additional .rego policies")
	cmd.Flags().StringVar(&environment, "env", "development", "deployment environment for policy evaluation")
	cmd.Flags().IntVar(&maxParallel, "max-parallel", 0, "max parallel unit executions (0 for config default)")

	return cmd
}
