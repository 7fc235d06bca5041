package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newPlanCommand() *cobra.Command {
	var (
		manifestPath string
		dotFile      string
		policyDir    string
		environment  string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan a stack's dependency graph",
		Long: `Plan builds and validates the dependency graph of a stack manifest.

The plan:
  - Derives edges from named input references (producer.output)
  - Rejects cycles, unknown producers, and undeclared outputs
  - Computes execution levels for parallel scheduling
  - Evaluates Rego policies against the planned units`,
		Example: `  # Plan a stack
  strata plan --manifest stack.yaml

  # Plan with a DOT graph for visualization
  strata plan --manifest stack.yaml --dot graph.dot

  # Plan with custom policies
  strata plan --manifest stack.yaml --policy-dir ./policies --env production`,
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

			if err := rt.gatePlan(ctx, stack.ToUnits(), "up", environment, policyDir); err != nil {
				return err
			}

			if dotFile != "" {
				if err := os.WriteFile(dotFile, []byte(g.ToDOT()), 0o644); err != nil {
					return fmt.Errorf("writing DOT graph: %w", err)
				}
			}

			if jsonOutput {
				return printJSON(g)
			}

			fmt.Printf("Stack %s: %d units, %d edges, %d levels\n",
				stack.Name, len(g.Units), len(g.Edges), len(g.Levels))
			for i, level := range g.Levels {
				fmt.Printf("  level %d: %v\n", i, level)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "stack.yaml", "stack manifest file")
	cmd.Flags().StringVar(&dotFile, "dot", "", "output DOT graph file (optional)")
	cmd.Flags().StringVar(&policyDir, "policy-dir", "", "directory of additional .rego policies")
	cmd.Flags().StringVar(&environment, "env", "development", "deployment environment for policy evaluation")

	return cmd
}
