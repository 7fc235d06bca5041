package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openstrata/strata/pkg/router"
)

func newQuarantineCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarantine",
		Short: "Inspect and manage quarantined events",
		Long: `Inspect events that exhausted their delivery-retry budget.

Quarantined events keep their original payload, so they can be reviewed,
re-routed after a fix, or purged.`,
	}

	cmd.AddCommand(newQuarantineListCommand())
	cmd.AddCommand(newQuarantineShowCommand())
	cmd.AddCommand(newQuarantineReprocessCommand())
	cmd.AddCommand(newQuarantineDeleteCommand())

	return cmd
}

func newQuarantineListCommand() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List quarantined events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			records, err := rt.store.ListQuarantine(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(records)
			}
			if len(records) == 0 {
				fmt.Println("quarantine is empty")
				return nil
			}
			for _, rec := range records {
				fmt.Printf("%s  attempts=%d  first_seen=%s  %s\n",
					rec.ID, rec.AttemptCount, rec.FirstSeenAt.Format("2006-01-02T15:04:05Z"), rec.Error)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "max records to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "records to skip")

	return cmd
}

func newQuarantineShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one quarantined event with its payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			rec, err := rt.store.GetQuarantine(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(rec)
		},
	}
}

func newQuarantineReprocessCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess <id>",
		Short: "Redeliver a quarantined event with a fresh retry budget",
		Long: `Redeliver a quarantined event through the async handler.

The stored payload gets a fresh retry budget. On success the record is
removed; if the event is still poisonous a new record is written and the
old one removed, so each event has at most one live quarantine record.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			rec, err := rt.store.GetQuarantine(ctx, args[0])
			if err != nil {
				return err
			}

			var notification router.AsyncNotification
			if err := json.Unmarshal(rec.Payload, &notification); err != nil {
				return fmt.Errorf("decode quarantined payload: %w", err)
			}
			notification.DeliveryAttempt = 0

			requeued, err := rt.pump(rt.router()).Deliver(ctx, &notification)
			if err != nil {
				return err
			}
			if err := rt.store.DeleteQuarantine(ctx, rec.ID); err != nil {
				return err
			}
			if requeued != nil {
				return fmt.Errorf("event still failing, re-quarantined as %s", requeued.ID)
			}
			fmt.Printf("reprocessed %s\n", rec.ID)
			return nil
		},
	}
}

func newQuarantineDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a quarantined event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.store.DeleteQuarantine(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}
