package ports

import (
	"context"
	"errors"

	"yield-bnpl/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

// ErrInsufficientAssets is returned by AssetLedger.Debit when the account
// holds less than the requested amount.
var ErrInsufficientAssets = errors.New("insufficient asset balance")

// ErrDuplicate is returned by Create when a record with the same key already
// exists, including when a concurrent transaction inserted it first.
var ErrDuplicate = errors.New("record already exists")

// Get methods return (nil, nil) when the record does not exist. Methods
// accepting pgx.Tx are used inside transaction blocks; ForUpdate variants take
// a row lock held until the transaction ends.

// StakeAccountRepository persists buyers' stake accounts keyed by buyer.
type StakeAccountRepository interface {
	Get(ctx context.Context, buyerID uuid.UUID) (*domain.StakeAccount, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, buyerID uuid.UUID) (*domain.StakeAccount, error)
	Create(ctx context.Context, tx pgx.Tx, account *domain.StakeAccount) error
	Update(ctx context.Context, tx pgx.Tx, account *domain.StakeAccount) error
}

// MerchantAccountRepository persists merchant accounts keyed by merchant.
type MerchantAccountRepository interface {
	Get(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantAccount, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID) (*domain.MerchantAccount, error)
	Create(ctx context.Context, tx pgx.Tx, account *domain.MerchantAccount) error
	Update(ctx context.Context, tx pgx.Tx, account *domain.MerchantAccount) error
}

// ObligationRepository persists payment obligations keyed by
// (buyer, merchant, sequence).
type ObligationRepository interface {
	Get(ctx context.Context, key domain.ObligationKey) (*domain.PaymentObligation, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, key domain.ObligationKey) (*domain.PaymentObligation, error)
	Create(ctx context.Context, tx pgx.Tx, obligation *domain.PaymentObligation) error
	Update(ctx context.Context, tx pgx.Tx, obligation *domain.PaymentObligation) error
	List(ctx context.Context, params ObligationListParams) ([]domain.PaymentObligation, int64, error)
	CountByStatus(ctx context.Context, merchantID uuid.UUID) (map[domain.ObligationStatus]int64, error)
}

// ObligationListParams holds filter + pagination for listing obligations.
type ObligationListParams struct {
	BuyerID    *uuid.UUID
	MerchantID *uuid.UUID
	Status     *domain.ObligationStatus
	Page       int
	PageSize   int
}

// VaultRepository persists the single protocol vault row.
type VaultRepository interface {
	Get(ctx context.Context) (*domain.ProtocolVault, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx) (*domain.ProtocolVault, error)
	Create(ctx context.Context, tx pgx.Tx, vault *domain.ProtocolVault) error
	Update(ctx context.Context, tx pgx.Tx, vault *domain.ProtocolVault) error
}

// AssetLedger is the fungible-asset transfer primitive: liquid balances per
// account, moved inside the caller's transaction.
type AssetLedger interface {
	Balance(ctx context.Context, accountID uuid.UUID) (int64, error)
	Credit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64) (int64, error)
	Debit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64) (int64, error)
}

// TransactionRepository persists the asset movement journal.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	GetStats(ctx context.Context, accountID uuid.UUID) (*TransactionStats, error)
}

// TransactionListParams holds filter + pagination for listing journal entries.
type TransactionListParams struct {
	AccountID uuid.UUID
	Type      *domain.TransactionType
	From      *int64 // Unix timestamp
	To        *int64 // Unix timestamp
	Page      int
	PageSize  int
}

// TransactionStats holds per-account journal totals.
type TransactionStats struct {
	TotalEntries  int64 `json:"total_entries"`
	TotalFunded   int64 `json:"total_funded"`
	TotalStaked   int64 `json:"total_staked"`
	TotalUnstaked int64 `json:"total_unstaked"`
	TotalHarvest  int64 `json:"total_settled_harvest"`
	TotalDirect   int64 `json:"total_settled_direct"`
}

// IdempotencyRepository defines persistence for idempotency logs (DB backup).
type IdempotencyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error
	Get(ctx context.Context, key string) (*domain.IdempotencyLog, error)
}

// AuditRepository persists audit log entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// WebhookRepository persists webhook delivery attempts.
type WebhookRepository interface {
	Create(ctx context.Context, log *domain.WebhookDeliveryLog) error
	Update(ctx context.Context, log *domain.WebhookDeliveryLog) error
	ListByObligation(ctx context.Context, obligationKey string) ([]domain.WebhookDeliveryLog, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
