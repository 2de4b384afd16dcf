package main

import (
	"errors"
	"fmt"

	pgStorage "yield-bnpl/internal/adapter/storage/postgres"

	"github.com/spf13/cobra"
)

func migrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending PostgreSQL schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.Storage.Driver != "postgres" {
				return errors.New("migrate requires storage.driver=postgres")
			}
			ctx := cmd.Context()
			pool, err := pgStorage.NewPool(ctx, c.cfg.Database, c.log)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := pgStorage.Migrate(ctx, pool, c.log)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", v)
			}
			return nil
		},
	}
}
