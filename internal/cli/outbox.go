package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Bforsyth1234/customer-loyalty-rewards/internal/app"
)

func newOutboxCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and repair change-feed delivery",
	}
	cmd.AddCommand(newOutboxReplayCommand(opts))
	return cmd
}

func newOutboxReplayCommand(opts *RootOptions) *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Requeue due dead-lettered change events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				manager, err := rt.DLQManager()
				if err != nil {
					return err
				}
				report, err := manager.RunOnce(ctx, batch)
				if err != nil {
					return err
				}
				return opts.emit(cmd.OutOrStdout(), report, func(w io.Writer) {
					fmt.Fprintf(w, "requeued %d, rescheduled %d, quarantined %d\n",
						report.Requeued, report.Rescheduled, report.Quarantined)
				})
			})
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 50, "maximum entries to handle")
	return cmd
}
