package postgres

import (
	"context"
	"testing"
	"time"

	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestObligation() *domain.PaymentObligation {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.PaymentObligation{
		ObligationKey:    domain.ObligationKey{BuyerID: uuid.New(), MerchantID: uuid.New(), Sequence: 0},
		ReferenceID:      "ORD-001",
		AmountDue:        40,
		LockedCollateral: 525,
		Status:           domain.ObligationStatusOpen,
		APYBps:           800,
		BufferBps:        500,
		CreatedBy:        uuid.New(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func obligationCols() []string {
	return []string{"buyer_id", "merchant_id", "sequence", "reference_id", "amount_due", "locked_collateral",
		"amount_fulfilled", "status", "apy_bps", "buffer_bps", "created_by", "created_at", "updated_at", "completed_at"}
}

func obligationRow(rows *pgxmock.Rows, o *domain.PaymentObligation) *pgxmock.Rows {
	return rows.AddRow(
		o.BuyerID, o.MerchantID, o.Sequence, o.ReferenceID, o.AmountDue, o.LockedCollateral,
		o.AmountFulfilled, o.Status, o.APYBps, o.BufferBps, o.CreatedBy, o.CreatedAt, o.UpdatedAt, o.CompletedAt,
	)
}

func TestObligationRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewObligationRepo(mock)
	o := newTestObligation()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO payment_obligations").
		WithArgs(o.BuyerID, o.MerchantID, o.Sequence, o.ReferenceID, o.AmountDue, o.LockedCollateral,
			o.AmountFulfilled, o.Status, o.APYBps, o.BufferBps, o.CreatedBy, o.CreatedAt, o.UpdatedAt, o.CompletedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.Create(context.Background(), tx, o))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestObligationRepo_GetForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewObligationRepo(mock)
	o := newTestObligation()
	o.AmountFulfilled = 15

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM payment_obligations WHERE buyer_id = \\$1 AND merchant_id = \\$2 AND sequence = \\$3 FOR UPDATE").
		WithArgs(o.BuyerID, o.MerchantID, o.Sequence).
		WillReturnRows(obligationRow(pgxmock.NewRows(obligationCols()), o))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetForUpdate(context.Background(), tx, o.Key())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, o.Key(), result.Key())
	assert.Equal(t, int64(25), result.Remaining())
	assert.Nil(t, result.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestObligationRepo_Get_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewObligationRepo(mock)
	key := domain.ObligationKey{BuyerID: uuid.New(), MerchantID: uuid.New(), Sequence: 9}

	mock.ExpectQuery("SELECT .+ FROM payment_obligations").
		WithArgs(key.BuyerID, key.MerchantID, key.Sequence).
		WillReturnRows(pgxmock.NewRows(obligationCols()))

	result, err := repo.Get(context.Background(), key)
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestObligationRepo_Update(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewObligationRepo(mock)
	o := newTestObligation()
	done := o.UpdatedAt
	o.AmountFulfilled = 40
	o.Status = domain.ObligationStatusCompleted
	o.CompletedAt = &done

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE payment_obligations").
		WithArgs(o.BuyerID, o.MerchantID, o.Sequence, o.AmountFulfilled, o.Status, o.UpdatedAt, o.CompletedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.Update(context.Background(), tx, o))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestObligationRepo_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewObligationRepo(mock)
	o1 := newTestObligation()
	o2 := newTestObligation()
	o2.MerchantID = o1.MerchantID
	o2.Sequence = 1
	open := domain.ObligationStatusOpen

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM payment_obligations WHERE merchant_id = \\$1 AND status = \\$2").
		WithArgs(o1.MerchantID, "OPEN").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))

	rows := pgxmock.NewRows(obligationCols())
	obligationRow(rows, o2)
	obligationRow(rows, o1)
	mock.ExpectQuery("SELECT .+ FROM payment_obligations WHERE merchant_id = \\$1 AND status = \\$2 ORDER BY .+ LIMIT \\$3 OFFSET \\$4").
		WithArgs(o1.MerchantID, "OPEN", 10, 0).
		WillReturnRows(rows)

	items, total, err := repo.List(context.Background(), ports.ObligationListParams{
		MerchantID: &o1.MerchantID,
		Status:     &open,
		Page:       1,
		PageSize:   10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, items, 2)
	assert.Equal(t, int64(1), items[0].Sequence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestObligationRepo_List_NoFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewObligationRepo(mock)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM payment_obligations").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery("SELECT .+ FROM payment_obligations ORDER BY .+ LIMIT \\$1 OFFSET \\$2").
		WithArgs(20, 40).
		WillReturnRows(pgxmock.NewRows(obligationCols()))

	items, total, err := repo.List(context.Background(), ports.ObligationListParams{Page: 3})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestObligationRepo_CountByStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewObligationRepo(mock)
	merchant := uuid.New()

	mock.ExpectQuery("SELECT status, COUNT\\(\\*\\) FROM payment_obligations WHERE merchant_id = \\$1 GROUP BY status").
		WithArgs(merchant).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("OPEN", int64(3)).
			AddRow("COMPLETED", int64(7)))

	counts, err := repo.CountByStatus(context.Background(), merchant)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts[domain.ObligationStatusOpen])
	assert.Equal(t, int64(7), counts[domain.ObligationStatusCompleted])
	assert.NoError(t, mock.ExpectationsWereMet())
}
