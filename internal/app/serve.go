package app

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const shutdownTimeout = 10 * time.Second

// Serve runs the HTTP server until ctx is done, then shuts it down
// gracefully. When crank.interval is set and a crank operator is configured,
// the harvest sweeper runs alongside it.
func Serve(ctx context.Context, a *App) error {
	log := a.Log
	srv := &http.Server{
		Addr:              a.Config.Server.Addr(),
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if a.Config.Crank.OperatorID != "" && a.Config.Crank.Interval > 0 {
		crank, err := a.Crank()
		if err != nil {
			log.Warn().Err(err).Msg("Crank disabled")
		} else {
			go func() {
				_ = crank.RunEvery(ctx, a.Config.Crank.Interval)
			}()
			log.Info().Dur("interval", a.Config.Crank.Interval).Msg("Crank started")
		}
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return err
	}
	return <-errCh
}
