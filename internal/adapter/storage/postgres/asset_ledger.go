package postgres

import (
	"context"
	"errors"
	"fmt"

	"yield-bnpl/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AssetLedger implements ports.AssetLedger on the asset_balances table.
type AssetLedger struct {
	pool Pool
}

func NewAssetLedger(pool Pool) *AssetLedger {
	return &AssetLedger{pool: pool}
}

// Balance returns the account's liquid balance, zero if it never held any.
func (l *AssetLedger) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var balance int64
	err := l.pool.QueryRow(ctx, `SELECT balance FROM asset_balances WHERE account_id = $1`, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get asset balance: %w", err)
	}
	return balance, nil
}

// Credit adds amount to the account, creating its row on first use.
func (l *AssetLedger) Credit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64) (int64, error) {
	query := `INSERT INTO asset_balances (account_id, balance, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (account_id) DO UPDATE SET balance = asset_balances.balance + EXCLUDED.balance, updated_at = now()
		RETURNING balance`
	var balance int64
	if err := tx.QueryRow(ctx, query, accountID, amount).Scan(&balance); err != nil {
		return 0, fmt.Errorf("credit asset balance: %w", err)
	}
	return balance, nil
}

// Debit subtracts amount atomically. It returns ports.ErrInsufficientAssets
// when the balance is short, leaving the row untouched.
func (l *AssetLedger) Debit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64) (int64, error) {
	query := `UPDATE asset_balances SET balance = balance - $2, updated_at = now()
		WHERE account_id = $1 AND balance >= $2
		RETURNING balance`
	var balance int64
	err := tx.QueryRow(ctx, query, accountID, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ports.ErrInsufficientAssets
		}
		return 0, fmt.Errorf("debit asset balance: %w", err)
	}
	return balance, nil
}
