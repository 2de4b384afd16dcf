package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const obligationColumns = `buyer_id, merchant_id, sequence, reference_id, amount_due, locked_collateral,
		amount_fulfilled, status, apy_bps, buffer_bps, created_by, created_at, updated_at, completed_at`

// ObligationRepo implements ports.ObligationRepository.
type ObligationRepo struct {
	pool Pool
}

func NewObligationRepo(pool Pool) *ObligationRepo {
	return &ObligationRepo{pool: pool}
}

// Get fetches an obligation by its composite key.
func (r *ObligationRepo) Get(ctx context.Context, key domain.ObligationKey) (*domain.PaymentObligation, error) {
	query := `SELECT ` + obligationColumns + ` FROM payment_obligations
		WHERE buyer_id = $1 AND merchant_id = $2 AND sequence = $3`
	return scanObligation(r.pool.QueryRow(ctx, query, key.BuyerID, key.MerchantID, key.Sequence))
}

// GetForUpdate fetches an obligation with SELECT ... FOR UPDATE.
func (r *ObligationRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, key domain.ObligationKey) (*domain.PaymentObligation, error) {
	query := `SELECT ` + obligationColumns + ` FROM payment_obligations
		WHERE buyer_id = $1 AND merchant_id = $2 AND sequence = $3 FOR UPDATE`
	return scanObligation(tx.QueryRow(ctx, query, key.BuyerID, key.MerchantID, key.Sequence))
}

func (r *ObligationRepo) Create(ctx context.Context, tx pgx.Tx, o *domain.PaymentObligation) error {
	query := `INSERT INTO payment_obligations (` + obligationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := tx.Exec(ctx, query,
		o.BuyerID, o.MerchantID, o.Sequence, o.ReferenceID, o.AmountDue, o.LockedCollateral,
		o.AmountFulfilled, o.Status, o.APYBps, o.BufferBps, o.CreatedBy, o.CreatedAt, o.UpdatedAt, o.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert obligation: %w", err)
	}
	return nil
}

// Update writes the mutable settlement fields. Key, terms and creator never change.
func (r *ObligationRepo) Update(ctx context.Context, tx pgx.Tx, o *domain.PaymentObligation) error {
	query := `UPDATE payment_obligations
		SET amount_fulfilled = $4, status = $5, updated_at = $6, completed_at = $7
		WHERE buyer_id = $1 AND merchant_id = $2 AND sequence = $3`
	tag, err := tx.Exec(ctx, query,
		o.BuyerID, o.MerchantID, o.Sequence, o.AmountFulfilled, o.Status, o.UpdatedAt, o.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update obligation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("obligation %s not found", o.Key())
	}
	return nil
}

// List returns a filtered page of obligations, newest first, plus the total match count.
func (r *ObligationRepo) List(ctx context.Context, params ports.ObligationListParams) ([]domain.PaymentObligation, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if params.BuyerID != nil {
		conditions = append(conditions, fmt.Sprintf("buyer_id = $%d", argIdx))
		args = append(args, *params.BuyerID)
		argIdx++
	}
	if params.MerchantID != nil {
		conditions = append(conditions, fmt.Sprintf("merchant_id = $%d", argIdx))
		args = append(args, *params.MerchantID)
		argIdx++
	}
	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(*params.Status))
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM payment_obligations %s", where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count obligations: %w", err)
	}

	page, pageSize := normalizePage(params.Page, params.PageSize)
	dataQuery := fmt.Sprintf(`SELECT %s FROM payment_obligations %s
		ORDER BY created_at DESC, buyer_id, merchant_id, sequence LIMIT $%d OFFSET $%d`,
		obligationColumns, where, argIdx, argIdx+1)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list obligations: %w", err)
	}
	defer rows.Close()

	var items []domain.PaymentObligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate obligation rows: %w", err)
	}
	return items, total, nil
}

// CountByStatus groups a merchant's obligations by status.
func (r *ObligationRepo) CountByStatus(ctx context.Context, merchantID uuid.UUID) (map[domain.ObligationStatus]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM payment_obligations WHERE merchant_id = $1 GROUP BY status`, merchantID)
	if err != nil {
		return nil, fmt.Errorf("count obligations by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.ObligationStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan obligation count: %w", err)
		}
		counts[domain.ObligationStatus(status)] = n
	}
	return counts, rows.Err()
}

func scanObligation(row pgx.Row) (*domain.PaymentObligation, error) {
	o := &domain.PaymentObligation{}
	err := row.Scan(
		&o.BuyerID, &o.MerchantID, &o.Sequence, &o.ReferenceID, &o.AmountDue, &o.LockedCollateral,
		&o.AmountFulfilled, &o.Status, &o.APYBps, &o.BufferBps, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt, &o.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan obligation: %w", err)
	}
	return o, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	return page, pageSize
}
