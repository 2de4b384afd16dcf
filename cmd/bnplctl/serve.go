package main

import (
	"os/signal"
	"syscall"

	"yield-bnpl/internal/app"

	"github.com/spf13/cobra"
)

func serveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API (and the crank when crank.interval is set)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, c.cfg, c.log)
			if err != nil {
				return err
			}
			defer a.Close()
			return app.Serve(ctx, a)
		},
	}
}
