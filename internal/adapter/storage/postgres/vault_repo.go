package postgres

import (
	"context"
	"errors"
	"fmt"

	"yield-bnpl/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const vaultColumns = `admin_id, total_staked, total_rewards_harvested, open_obligation_count, created_at, updated_at`

// VaultRepo implements ports.VaultRepository over the single-row
// protocol_vault table (id is pinned to 1).
type VaultRepo struct {
	pool Pool
}

func NewVaultRepo(pool Pool) *VaultRepo {
	return &VaultRepo{pool: pool}
}

func (r *VaultRepo) Get(ctx context.Context) (*domain.ProtocolVault, error) {
	return scanVault(r.pool.QueryRow(ctx, `SELECT `+vaultColumns+` FROM protocol_vault WHERE id = 1`))
}

// GetForUpdate locks the vault row. Every state-changing protocol operation
// takes this lock first.
func (r *VaultRepo) GetForUpdate(ctx context.Context, tx pgx.Tx) (*domain.ProtocolVault, error) {
	return scanVault(tx.QueryRow(ctx, `SELECT `+vaultColumns+` FROM protocol_vault WHERE id = 1 FOR UPDATE`))
}

func (r *VaultRepo) Create(ctx context.Context, tx pgx.Tx, v *domain.ProtocolVault) error {
	query := `INSERT INTO protocol_vault (id, ` + vaultColumns + `) VALUES (1, $1, $2, $3, $4, $5, $6)`
	_, err := tx.Exec(ctx, query,
		v.AdminID, v.TotalStaked, v.TotalRewardsHarvested, v.OpenObligationCount, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert protocol vault: %w", insertErr(err))
	}
	return nil
}

func (r *VaultRepo) Update(ctx context.Context, tx pgx.Tx, v *domain.ProtocolVault) error {
	query := `UPDATE protocol_vault
		SET total_staked = $1, total_rewards_harvested = $2, open_obligation_count = $3, updated_at = $4
		WHERE id = 1`
	tag, err := tx.Exec(ctx, query, v.TotalStaked, v.TotalRewardsHarvested, v.OpenObligationCount, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update protocol vault: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New("protocol vault not found")
	}
	return nil
}

func scanVault(row pgx.Row) (*domain.ProtocolVault, error) {
	v := &domain.ProtocolVault{}
	err := row.Scan(&v.AdminID, &v.TotalStaked, &v.TotalRewardsHarvested, &v.OpenObligationCount, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan protocol vault: %w", err)
	}
	return v, nil
}
