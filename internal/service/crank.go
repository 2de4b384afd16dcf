package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports"
	"yield-bnpl/pkg/apperror"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// CrankConfig controls one harvest sweep.
type CrankConfig struct {
	HarvestAmount  int64   // requested per obligation; settlement caps it to what is owed
	RatePerSecond  float64 // settlement calls per second
	Burst          int
	MaxConcurrency int
	PageSize       int
}

// CrankReport summarizes a sweep.
type CrankReport struct {
	Scanned   int64 `json:"scanned"`
	Settled   int64 `json:"settled"`
	Completed int64 `json:"completed"`
	Paid      int64 `json:"paid"`
	Skipped   int64 `json:"skipped"` // completed by someone else mid-sweep
	Failed    int64 `json:"failed"`
	Contended bool  `json:"contended,omitempty"` // another process held the sweep lock
}

const crankLockName = "crank:harvest"

// Crank periodically drives SettleHarvest over every open obligation.
type Crank struct {
	reporting  ports.ReportingService
	settlement ports.SettlementService
	caller     domain.Caller
	cfg        CrankConfig
	log        zerolog.Logger
	lock       ports.SweepLock
	lockTTL    time.Duration
}

// NewCrank creates a crank acting as caller, which must be a crank operator
// or the vault admin.
func NewCrank(
	reporting ports.ReportingService,
	settlement ports.SettlementService,
	caller domain.Caller,
	cfg CrankConfig,
	log zerolog.Logger,
) *Crank {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Crank{
		reporting:  reporting,
		settlement: settlement,
		caller:     caller,
		cfg:        cfg,
		log:        log,
	}
}

// WithLock makes every sweep hold lock for at most ttl, so only one process
// sweeps at a time.
func (c *Crank) WithLock(lock ports.SweepLock, ttl time.Duration) *Crank {
	c.lock = lock
	c.lockTTL = ttl
	return c
}

// Run performs one sweep. Per-obligation failures are logged and counted;
// only context cancellation or a listing failure aborts the sweep.
func (c *Crank) Run(ctx context.Context) (*CrankReport, error) {
	if c.cfg.HarvestAmount <= 0 {
		return nil, apperror.Validation("crank harvest amount must be positive")
	}

	if c.lock != nil {
		token, ok, err := c.lock.Acquire(ctx, crankLockName, c.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !ok {
			c.log.Info().Msg("crank: sweep lock held elsewhere, skipping")
			return &CrankReport{Contended: true}, nil
		}
		defer func() {
			if err := c.lock.Release(context.WithoutCancel(ctx), crankLockName, token); err != nil {
				c.log.Warn().Err(err).Msg("crank: release sweep lock")
			}
		}()
	}

	keys, err := c.openObligations(ctx)
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if c.cfg.RatePerSecond > 0 {
		limit = rate.Limit(c.cfg.RatePerSecond)
	}
	limiter := rate.NewLimiter(limit, c.cfg.Burst)

	var settled, completed, paid, skipped, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrency)

	for _, key := range keys {
		if err := limiter.Wait(gctx); err != nil {
			break
		}
		g.Go(func() error {
			res, err := c.settlement.SettleHarvest(gctx, ports.SettlementRequest{
				Caller: c.caller,
				Key:    key,
				Amount: c.cfg.HarvestAmount,
			})
			switch {
			case err == nil:
				settled.Add(1)
				paid.Add(res.Paid)
				if res.Completed {
					completed.Add(1)
				}
			case apperror.HasCode(err, apperror.CodeInvalidState):
				skipped.Add(1)
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				return err
			default:
				failed.Add(1)
				c.log.Warn().Err(err).Str("obligation", key.String()).Msg("crank: harvest failed")
			}
			return nil
		})
	}

	waitErr := g.Wait()
	report := &CrankReport{
		Scanned:   int64(len(keys)),
		Settled:   settled.Load(),
		Completed: completed.Load(),
		Paid:      paid.Load(),
		Skipped:   skipped.Load(),
		Failed:    failed.Load(),
	}
	if waitErr == nil {
		waitErr = ctx.Err()
	}

	c.log.Info().
		Int64("scanned", report.Scanned).
		Int64("settled", report.Settled).
		Int64("completed", report.Completed).
		Int64("paid", report.Paid).
		Int64("skipped", report.Skipped).
		Int64("failed", report.Failed).
		Msg("crank sweep finished")

	return report, waitErr
}

// RunEvery sweeps on each tick until ctx is done.
func (c *Crank) RunEvery(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := c.Run(ctx); err != nil && ctx.Err() == nil {
			c.log.Error().Err(err).Msg("crank sweep aborted")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// openObligations snapshots the keys of every OPEN obligation.
func (c *Crank) openObligations(ctx context.Context) ([]domain.ObligationKey, error) {
	status := domain.ObligationStatusOpen
	var keys []domain.ObligationKey
	for page := 1; ; page++ {
		obs, total, err := c.reporting.ListObligations(ctx, ports.ObligationListParams{
			Status:   &status,
			Page:     page,
			PageSize: c.cfg.PageSize,
		})
		if err != nil {
			return nil, err
		}
		for i := range obs {
			keys = append(keys, obs[i].Key())
		}
		if len(obs) == 0 || int64(page*c.cfg.PageSize) >= total {
			return keys, nil
		}
	}
}
