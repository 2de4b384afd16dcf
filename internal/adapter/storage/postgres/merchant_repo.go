package postgres

import (
	"context"
	"errors"
	"fmt"

	"yield-bnpl/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const merchantColumns = `merchant_id, status, next_sequence, total_settled, webhook_url, webhook_secret_enc, created_at, updated_at`

// MerchantRepo implements ports.MerchantAccountRepository.
type MerchantRepo struct {
	pool Pool
}

// NewMerchantRepo creates a new MerchantRepo.
func NewMerchantRepo(pool Pool) *MerchantRepo {
	return &MerchantRepo{pool: pool}
}

// Get fetches a merchant account by the merchant's identity.
func (r *MerchantRepo) Get(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantAccount, error) {
	query := `SELECT ` + merchantColumns + ` FROM merchant_accounts WHERE merchant_id = $1`
	m, err := scanMerchant(r.pool.QueryRow(ctx, query, merchantID))
	if err != nil {
		return nil, fmt.Errorf("get merchant by id: %w", err)
	}
	return m, nil
}

// GetForUpdate locks the merchant row; the sequence counter is read and
// advanced under this lock.
func (r *MerchantRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID) (*domain.MerchantAccount, error) {
	query := `SELECT ` + merchantColumns + ` FROM merchant_accounts WHERE merchant_id = $1 FOR UPDATE`
	m, err := scanMerchant(tx.QueryRow(ctx, query, merchantID))
	if err != nil {
		return nil, fmt.Errorf("get merchant for update: %w", err)
	}
	return m, nil
}

func (r *MerchantRepo) Create(ctx context.Context, tx pgx.Tx, m *domain.MerchantAccount) error {
	query := `INSERT INTO merchant_accounts (` + merchantColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := tx.Exec(ctx, query,
		m.MerchantID, m.Status, m.NextSequence, m.TotalSettled,
		m.WebhookURL, m.WebhookSecretEnc, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert merchant account: %w", insertErr(err))
	}
	return nil
}

func (r *MerchantRepo) Update(ctx context.Context, tx pgx.Tx, m *domain.MerchantAccount) error {
	query := `UPDATE merchant_accounts
		SET status = $2, next_sequence = $3, total_settled = $4, webhook_url = $5, webhook_secret_enc = $6, updated_at = $7
		WHERE merchant_id = $1`
	tag, err := tx.Exec(ctx, query,
		m.MerchantID, m.Status, m.NextSequence, m.TotalSettled,
		m.WebhookURL, m.WebhookSecretEnc, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update merchant account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("merchant account %s not found", m.MerchantID)
	}
	return nil
}

func scanMerchant(row pgx.Row) (*domain.MerchantAccount, error) {
	m := &domain.MerchantAccount{}
	err := row.Scan(
		&m.MerchantID, &m.Status, &m.NextSequence, &m.TotalSettled,
		&m.WebhookURL, &m.WebhookSecretEnc, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}
