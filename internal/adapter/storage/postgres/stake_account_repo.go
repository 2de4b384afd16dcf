package postgres

import (
	"context"
	"errors"
	"fmt"

	"yield-bnpl/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const stakeAccountColumns = `buyer_id, staked_principal, unlockable_balance, locked_collateral, created_at, updated_at`

// StakeAccountRepo implements ports.StakeAccountRepository.
type StakeAccountRepo struct {
	pool Pool
}

func NewStakeAccountRepo(pool Pool) *StakeAccountRepo {
	return &StakeAccountRepo{pool: pool}
}

// Get fetches a buyer's stake account without locking.
func (r *StakeAccountRepo) Get(ctx context.Context, buyerID uuid.UUID) (*domain.StakeAccount, error) {
	query := `SELECT ` + stakeAccountColumns + ` FROM stake_accounts WHERE buyer_id = $1`
	return scanStakeAccount(r.pool.QueryRow(ctx, query, buyerID))
}

// GetForUpdate fetches a stake account with SELECT ... FOR UPDATE.
func (r *StakeAccountRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, buyerID uuid.UUID) (*domain.StakeAccount, error) {
	query := `SELECT ` + stakeAccountColumns + ` FROM stake_accounts WHERE buyer_id = $1 FOR UPDATE`
	return scanStakeAccount(tx.QueryRow(ctx, query, buyerID))
}

func (r *StakeAccountRepo) Create(ctx context.Context, tx pgx.Tx, a *domain.StakeAccount) error {
	query := `INSERT INTO stake_accounts (` + stakeAccountColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := tx.Exec(ctx, query,
		a.BuyerID, a.StakedPrincipal, a.UnlockableBalance, a.LockedCollateral, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert stake account: %w", err)
	}
	return nil
}

func (r *StakeAccountRepo) Update(ctx context.Context, tx pgx.Tx, a *domain.StakeAccount) error {
	query := `UPDATE stake_accounts
		SET staked_principal = $2, unlockable_balance = $3, locked_collateral = $4, updated_at = $5
		WHERE buyer_id = $1`
	tag, err := tx.Exec(ctx, query, a.BuyerID, a.StakedPrincipal, a.UnlockableBalance, a.LockedCollateral, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update stake account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stake account %s not found", a.BuyerID)
	}
	return nil
}

func scanStakeAccount(row pgx.Row) (*domain.StakeAccount, error) {
	a := &domain.StakeAccount{}
	err := row.Scan(&a.BuyerID, &a.StakedPrincipal, &a.UnlockableBalance, &a.LockedCollateral, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan stake account: %w", err)
	}
	return a, nil
}
