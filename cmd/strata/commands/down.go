package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openstrata/strata/pkg/graph"
)

func newDownCommand() *cobra.Command {
	var (
		manifestPath string
		policyDir    string
		environment  string
	)

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Tear down a stack",
		Long: `Tear down every unit of a stack in reverse dependency order.

A unit is deleted only after all of its dependents are gone. A failed
deletion halts the run and blocks its producers from deletion; they are
reported as skipped.`,
		Example: `  # Tear down a stack
  strata down --manifest stack.yaml

  # Tear down in production (policy-gated)
  strata down --manifest stack.yaml --env production`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			stack, g, err := loadAndPlan(manifestPath)
			if err != nil {
				return err
			}
			if err := rt.gatePlan(ctx, stack.ToUnits(), "down", environment, policyDir); err != nil {
				return err
			}

			run, err := rt.orchestrator().Apply(ctx, g, graph.Down)
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

	return cmd
}
