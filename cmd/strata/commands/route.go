package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/openstrata/strata/pkg/router"
)

func newRouteCommand() *cobra.Command {
	var eventFile string

	cmd := &cobra.Command{
		Use:   "route",
		Short: "Route one event",
		Long: `Route a single event payload through the dual-mode handler.

Sync requests and unknown events print an HTTP-style response. Async
notifications are delivered with the configured retry budget; an event
that exhausts the budget is written to quarantine and the command exits
non-zero.`,
		Example: `  # Route an event from a file
  strata route --event event.json

  # Route an event from stdin
  cat event.json | strata route`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			raw, err := readEvent(eventFile)
			if err != nil {
				return err
			}

			r := rt.router()

			event, err := router.Decode(raw)
			if err != nil {
				return err
			}

			if event.Kind == router.KindAsyncNotification {
				rec, err := rt.pump(r).Deliver(ctx, event.Async)
				if err != nil {
					return err
				}
				if rec != nil {
					return fmt.Errorf("event quarantined as %s after %d attempts", rec.ID, rec.AttemptCount)
				}
				fmt.Println("delivered")
				return nil
			}

			resp, err := r.Route(ctx, raw)
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}

	cmd.Flags().StringVarP(&eventFile, "event", "e", "", "event payload file (default: stdin)")

	return cmd
}

// readEvent reads the event payload from a file or stdin.
func readEvent(path string) ([]byte, error) {
	if path == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
