package main

import (
	"context"
	"encoding/json"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"yield-bnpl/internal/app"

	"github.com/spf13/cobra"
)

func crankCmd(c *cli) *cobra.Command {
	var (
		every  time.Duration
		amount int64
	)
	cmd := &cobra.Command{
		Use:   "crank",
		Short: "Sweep open obligations with harvest settlements",
		Long: `Runs SettleHarvest against every open obligation as the configured crank
operator (crank.operator_id). Each obligation is settled for at most
crank.harvest_amount, capped to what it still owes.

Without --every a single sweep runs and its report is printed as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if amount > 0 {
				c.cfg.Crank.HarvestAmount = amount
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, c.cfg, c.log)
			if err != nil {
				return err
			}
			defer a.Close()

			crank, err := a.Crank()
			if err != nil {
				return err
			}
			if every > 0 {
				err := crank.RunEvery(ctx, every)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}

			report, err := crank.Run(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().DurationVar(&every, "every", 0, "sweep repeatedly at this interval")
	cmd.Flags().Int64Var(&amount, "amount", 0, "override crank.harvest_amount")
	return cmd
}
