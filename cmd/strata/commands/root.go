package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose    bool
	jsonOutput bool
	dbPath     string

	// buildVersion labels telemetry emitted by this process.
	buildVersion string
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	buildVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "strata",
		Short: "Strata - Stack graph orchestrator and event router",
		Long: `Strata orchestrates stacks of deployable units as a dependency graph
and routes inbound events to their handling path.

Features:
  - Declarative stack manifests with named output references
  - Dependency-ordered deploy and teardown with parallel execution
  - Halt-on-failure with skipped-unit reporting
  - Policy gating of plans via Rego
  - Dual-mode event routing with retry and quarantine`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (empty for in-memory)")

	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newUpCommand())
	rootCmd.AddCommand(newDownCommand())
	rootCmd.AddCommand(newOutputCommand())
	rootCmd.AddCommand(newRouteCommand())
	rootCmd.AddCommand(newQuarantineCommand())
	rootCmd.AddCommand(newRunsCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}
