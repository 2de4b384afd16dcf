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

func newTestTransaction(accountID uuid.UUID) *domain.Transaction {
	now := time.Now().UTC().Truncate(time.Microsecond)
	merchant := uuid.New()
	key := domain.ObligationKey{BuyerID: accountID, MerchantID: merchant, Sequence: 0}.String()
	return &domain.Transaction{
		ID:              uuid.New(),
		TransactionType: domain.TransactionTypeSettleHarvest,
		AccountID:       accountID,
		Counterparty:    &merchant,
		Amount:          15,
		ReserveAmount:   15,
		ObligationKey:   &key,
		ReferenceID:     "ORD-001",
		CreatedBy:       uuid.New(),
		CreatedAt:       now,
	}
}

func txColumns() []string {
	return []string{"id", "transaction_type", "account_id", "counterparty", "amount", "reserve_amount",
		"obligation_key", "reference_id", "created_by", "created_at"}
}

func txRow(rows *pgxmock.Rows, t *domain.Transaction) *pgxmock.Rows {
	return rows.AddRow(
		t.ID, t.TransactionType, t.AccountID, t.Counterparty, t.Amount, t.ReserveAmount,
		t.ObligationKey, t.ReferenceID, t.CreatedBy, t.CreatedAt,
	)
}

func TestTransactionRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction(uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(
			txn.ID, txn.TransactionType, txn.AccountID, txn.Counterparty, txn.Amount, txn.ReserveAmount,
			txn.ObligationKey, txn.ReferenceID, txn.CreatedBy, txn.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), dbTx, txn)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	account := uuid.New()
	txn := newTestTransaction(account)
	typ := domain.TransactionTypeSettleHarvest
	from, to := int64(1708000000), int64(1709000000)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM transactions WHERE account_id = \\$1 AND transaction_type = \\$2 AND created_at >= to_timestamp\\(\\$3\\) AND created_at <= to_timestamp\\(\\$4\\)").
		WithArgs(account, "SETTLE_HARVEST", from, to).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT .+ FROM transactions WHERE .+ ORDER BY created_at DESC LIMIT \\$5 OFFSET \\$6").
		WithArgs(account, "SETTLE_HARVEST", from, to, 50, 50).
		WillReturnRows(txRow(pgxmock.NewRows(txColumns()), txn))

	items, total, err := repo.List(context.Background(), ports.TransactionListParams{
		AccountID: account,
		Type:      &typ,
		From:      &from,
		To:        &to,
		Page:      2,
		PageSize:  50,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, txn.ID, items[0].ID)
	assert.Equal(t, *txn.ObligationKey, *items[0].ObligationKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetStats(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	account := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE account_id").
		WithArgs(account).
		WillReturnRows(pgxmock.NewRows(
			[]string{"total", "funded", "staked", "unstaked", "harvest", "direct"},
		).AddRow(int64(6), int64(2000), int64(1000), int64(300), int64(40), int64(10)))

	stats, err := repo.GetStats(context.Background(), account)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, int64(6), stats.TotalEntries)
	assert.Equal(t, int64(2000), stats.TotalFunded)
	assert.Equal(t, int64(1000), stats.TotalStaked)
	assert.Equal(t, int64(300), stats.TotalUnstaked)
	assert.Equal(t, int64(40), stats.TotalHarvest)
	assert.Equal(t, int64(10), stats.TotalDirect)
	assert.NoError(t, mock.ExpectationsWereMet())
}
