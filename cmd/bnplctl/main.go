// Command bnplctl operates a yield BNPL deployment: it serves the API, runs
// the harvest crank, applies migrations and issues credentials.
package main

import (
	"fmt"
	"os"

	"yield-bnpl/config"
	"yield-bnpl/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var Version = "dev"

// cli carries state shared by every subcommand once the root has loaded
// configuration.
type cli struct {
	configPath string
	cfg        *config.Config
	log        zerolog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	rootCmd := &cobra.Command{
		Use:           "bnplctl",
		Short:         "Operate the yield-collateralized BNPL protocol",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			c.cfg = cfg
			c.log = logger.New(cfg.Log.Level, cfg.Log.Pretty)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", os.Getenv("BNPL_CONFIG"), "config file (default ./config.yaml)")

	rootCmd.AddCommand(serveCmd(c))
	rootCmd.AddCommand(crankCmd(c))
	rootCmd.AddCommand(migrateCmd(c))
	rootCmd.AddCommand(bootstrapCmd(c))
	rootCmd.AddCommand(tokenCmd(c))
	rootCmd.AddCommand(signCmd(c))

	return rootCmd
}
