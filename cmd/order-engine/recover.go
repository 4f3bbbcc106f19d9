package main

import (
	"fmt"

	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/app"
	"github.com/Prajapati-ankit-it/OrderEase-failure-first/internal/recovery"

	"github.com/spf13/cobra"
)

func recoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "recover [payments|refunds]",
		Short:     "Run one recovery claim-and-process pass",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"payments", "refunds"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, flush, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer flush()

			core, err := app.NewCore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer core.Close()

			var job recovery.Job = core.PaymentRecovery
			if args[0] == "refunds" {
				job = core.RefundRecovery
			}

			report, err := job.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("%s: %w", job.Name(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: claimed=%d processed=%d failed=%d\n",
				job.Name(), report.Claimed, report.Processed, report.Failed)
			return nil
		},
	}
	return cmd
}
