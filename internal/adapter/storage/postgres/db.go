package postgres

import (
	"context"
	"fmt"

	"yield-bnpl/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Pool is the subset of *pgxpool.Pool the repositories use. pgxmock satisfies
// it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// NewPool creates a PostgreSQL connection pool using pgx.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("dbname", cfg.DBName).
		Int32("max_conns", cfg.MaxConns).
		Msg("PostgreSQL connection pool established")

	return pool, nil
}

// Repositories bundles every PostgreSQL-backed port over one pool.
type Repositories struct {
	StakeAccounts *StakeAccountRepo
	Merchants     *MerchantRepo
	Obligations   *ObligationRepo
	Vault         *VaultRepo
	Assets        *AssetLedger
	Transactions  *TransactionRepo
	Idempotency   *IdempotencyRepo
	Audits        *AuditRepo
	Webhooks      *WebhookRepo
	Transactor    *Transactor
	Health        *HealthCheck
}

// NewRepositories wires all repositories to pool.
func NewRepositories(pool Pool) *Repositories {
	return &Repositories{
		StakeAccounts: NewStakeAccountRepo(pool),
		Merchants:     NewMerchantRepo(pool),
		Obligations:   NewObligationRepo(pool),
		Vault:         NewVaultRepo(pool),
		Assets:        NewAssetLedger(pool),
		Transactions:  NewTransactionRepo(pool),
		Idempotency:   NewIdempotencyRepo(pool),
		Audits:        NewAuditRepo(pool),
		Webhooks:      NewWebhookRepo(pool),
		Transactor:    NewTransactor(pool),
		Health:        NewHealthCheck(pool),
	}
}
