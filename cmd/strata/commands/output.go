package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openstrata/strata/pkg/graph"
)

func newOutputCommand() *cobra.Command {
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "output <unit.output>",
		Short: "Resolve one unit output",
		Long: `Resolve a named output by evaluating the stack's declared value flow.

The stack is planned and its declared outputs propagated through the
graph in memory; no run history is written. The output must belong to a
unit that the evaluation reached.`,
		Example: `  # Resolve the network unit's vpcId output
  strata output network.vpcId --manifest stack.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			unitName, outputName, ok := strings.Cut(args[0], ".")
			if !ok || unitName == "" || outputName == "" {
				return fmt.Errorf("reference %q must have the form unit.output", args[0])
			}

			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			_, g, err := loadAndPlan(manifestPath)
			if err != nil {
				return err
			}

			// Evaluate in memory without touching run history.
			orch := graph.NewOrchestrator(graph.Config{
				MaxParallel:   rt.cfg.MaxParallel,
				ActionTimeout: rt.cfg.ActionTimeout,
				Logger:        rt.logger,
			})
			run, err := orch.Apply(cmd.Context(), g, graph.Up)
			if err != nil {
				return err
			}
			if run.Report.HasFailures() {
				return fmt.Errorf("evaluation failed for units: %v", run.Report.Failed)
			}

			value, err := orch.GetOutput(unitName, outputName)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(map[string]string{args[0]: value})
			}
			fmt.Println(value)
			return nil
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "stack.yaml", "stack manifest file")

	return cmd
}
