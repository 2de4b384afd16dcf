package main

import (
	"encoding/json"
	"fmt"

	"yield-bnpl/internal/app"
	"yield-bnpl/internal/core/domain"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func bootstrapCmd(c *cli) *cobra.Command {
	var operatorID string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the protocol vault with the given admin operator",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(operatorID)
			if err != nil {
				return fmt.Errorf("--operator: %w", err)
			}
			caller, err := adminCaller(c, id)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := app.New(ctx, c.cfg, c.log)
			if err != nil {
				return err
			}
			defer a.Close()

			v, err := a.Services.Vault.Bootstrap(ctx, caller)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		},
	}
	cmd.Flags().StringVar(&operatorID, "operator", "", "id of a configured admin operator")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}

func adminCaller(c *cli, id uuid.UUID) (domain.Caller, error) {
	creds, err := app.OperatorCredentials(c.cfg.Operators)
	if err != nil {
		return domain.Caller{}, err
	}
	for _, cred := range creds {
		if cred.ID == id {
			if cred.Role != domain.RoleAdmin {
				return domain.Caller{}, fmt.Errorf("operator %s has role %q, want admin", id, cred.Role)
			}
			return domain.Caller{ID: id, Role: domain.RoleAdmin}, nil
		}
	}
	return domain.Caller{}, fmt.Errorf("operator %s is not configured", id)
}
