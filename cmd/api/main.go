package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"yield-bnpl/config"
	"yield-bnpl/internal/app"
	"yield-bnpl/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("BNPL_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Str("reserve", cfg.Reserve.Driver).
		Msg("Starting Yield BNPL API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.Close()

	if err := app.Serve(ctx, a); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
	}
	log.Info().Msg("Server exited")
}
