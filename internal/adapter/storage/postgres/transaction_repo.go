package postgres

import (
	"context"
	"fmt"
	"strings"

	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `id, transaction_type, account_id, counterparty, amount, reserve_amount,
		obligation_key, reference_id, created_by, created_at`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a journal entry within a database transaction.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := tx.Exec(ctx, query,
		t.ID, t.TransactionType, t.AccountID, t.Counterparty, t.Amount, t.ReserveAmount,
		t.ObligationKey, t.ReferenceID, t.CreatedBy, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// List retrieves an account's journal entries with filters and pagination.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("account_id = $%d", argIdx))
	args = append(args, params.AccountID)
	argIdx++

	if params.Type != nil {
		conditions = append(conditions, fmt.Sprintf("transaction_type = $%d", argIdx))
		args = append(args, string(*params.Type))
		argIdx++
	}
	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= to_timestamp($%d)", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= to_timestamp($%d)", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	// Count total
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM transactions %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	// Fetch page
	page, pageSize := normalizePage(params.Page, params.PageSize)
	dataQuery := fmt.Sprintf(`SELECT %s FROM transactions %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, where, argIdx, argIdx+1)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t := domain.Transaction{}
		err := rows.Scan(
			&t.ID, &t.TransactionType, &t.AccountID, &t.Counterparty, &t.Amount, &t.ReserveAmount,
			&t.ObligationKey, &t.ReferenceID, &t.CreatedBy, &t.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, total, nil
}

// GetStats aggregates an account's journal by entry type.
func (r *TransactionRepo) GetStats(ctx context.Context, accountID uuid.UUID) (*ports.TransactionStats, error) {
	query := `SELECT
		COUNT(*) AS total,
		COALESCE(SUM(amount) FILTER (WHERE transaction_type = 'FUND'), 0) AS funded,
		COALESCE(SUM(amount) FILTER (WHERE transaction_type = 'STAKE'), 0) AS staked,
		COALESCE(SUM(amount) FILTER (WHERE transaction_type = 'UNSTAKE'), 0) AS unstaked,
		COALESCE(SUM(amount) FILTER (WHERE transaction_type = 'SETTLE_HARVEST'), 0) AS harvest,
		COALESCE(SUM(amount) FILTER (WHERE transaction_type = 'SETTLE_DIRECT'), 0) AS direct
		FROM transactions WHERE account_id = $1`

	stats := &ports.TransactionStats{}
	err := r.pool.QueryRow(ctx, query, accountID).Scan(
		&stats.TotalEntries, &stats.TotalFunded, &stats.TotalStaked,
		&stats.TotalUnstaked, &stats.TotalHarvest, &stats.TotalDirect,
	)
	if err != nil {
		return nil, fmt.Errorf("get transaction stats: %w", err)
	}
	return stats, nil
}
