package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"askhub_backend/internal/service/subscription"
)

type sweeper interface {
	CheckTrialExpiration(ctx context.Context) (*subscription.TrialSweepReport, error)
	CheckSubscriptionExpiration(ctx context.Context) (*subscription.ExpirationSweepReport, error)
}

// opener builds the sweeper lazily so --help works without a database.
type opener func() (sweeper, func(), error)

func newRootCmd(open opener) *cobra.Command {
	var timeout time.Duration

	root := &cobra.Command{
		Use:          "sweep",
		Short:        "Run the subscription lifecycle sweeps once",
		SilenceUsage: true,
	}
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "abort the sweep after this long")

	run := func(fn func(ctx context.Context, s sweeper) (any, error)) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			s, closeFn, err := open()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			report, err := fn(ctx, s)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "trials",
		Short: "Send trial reminders and end expired trials",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, s sweeper) (any, error) {
			return s.CheckTrialExpiration(ctx)
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "subscriptions",
		Short: "Clear paid plans whose period has ended",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, s sweeper) (any, error) {
			return s.CheckSubscriptionExpiration(ctx)
		}),
	})

	return root
}
