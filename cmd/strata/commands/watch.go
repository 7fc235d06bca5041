package commands

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/openstrata/strata/pkg/graph"
	"github.com/openstrata/strata/pkg/manifest"
)

func newWatchCommand() *cobra.Command {
	var (
		manifestPath string
		apply        bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a manifest and re-plan on change",
		Long: `Watch a stack manifest and re-plan it whenever the file changes.

With --apply each successful re-plan is deployed. The orchestrator's
state carries across deployments, so unchanged units are no-ops and only
units whose inputs changed re-apply.`,
		Example: `  # Re-plan on every save
  strata watch --manifest stack.yaml

  # Continuously reconcile
  strata watch --manifest stack.yaml --apply`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			orch := rt.orchestrator()
			watcher := manifest.NewWatcher(manifestPath, rt.logger)

			// Plan (and optionally deploy) the current contents first.
			if stack, err := manifest.Load(manifestPath); err != nil {
				rt.logger.Warn().Err(err).Msg("initial manifest load failed")
			} else {
				reconcile(ctx, rt, orch, stack, apply)
			}

			err = watcher.Watch(ctx, func(stack *manifest.Stack) {
				reconcile(ctx, rt, orch, stack, apply)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "stack.yaml", "stack manifest file")
	cmd.Flags().BoolVar(&apply, "apply", false, "deploy after each successful re-plan")

	return cmd
}

// reconcile plans one manifest snapshot and optionally deploys it.
// Failures are logged, not fatal: the watch loop outlives bad snapshots.
func reconcile(ctx context.Context, rt *runtime, orch *graph.Orchestrator, stack *manifest.Stack, apply bool) {
	g, err := graph.Plan(stack.ToUnits())
	if err != nil {
		rt.logger.Error().Err(err).Str("stack", stack.Name).Msg("plan failed")
		return
	}

	rt.logger.Info().Str("stack", stack.Name).
		Int("units", len(g.Units)).Int("levels", len(g.Levels)).
		Msg("plan ok")

	if !apply {
		return
	}

	run, err := orch.Apply(ctx, g, graph.Up)
	if err != nil {
		rt.logger.Error().Err(err).Str("stack", stack.Name).Msg("apply failed")
		return
	}

	event := rt.logger.Info()
	if run.Report.HasFailures() {
		event = rt.logger.Error()
	}
	event.Str("run_id", run.ID).
		Str("status", string(run.Status)).
		Int("applied", len(run.Report.Applied)).
		Int("failed", len(run.Report.Failed)).
		Int("skipped", len(run.Report.Skipped)).
		Msg("apply completed")
}
