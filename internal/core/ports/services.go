package ports

import (
	"context"
	"time"

	"yield-bnpl/internal/core/domain"

	"github.com/google/uuid"
)

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

// YieldReserve is the external yield-bearing reserve. Amounts are in the
// asset's smallest unit; receipts are the reserve's yield-bearing token.
type YieldReserve interface {
	// Deposit moves amount of underlying into the reserve and returns the
	// receipts minted for it.
	Deposit(ctx context.Context, amount int64) (int64, error)
	// Redeem burns receipts and returns the underlying released at the
	// reserve's current exchange rate.
	Redeem(ctx context.Context, receipts int64) (int64, error)
	// Rates reports the reserve's current borrow rate, utilization, take rate
	// and liquidity.
	Rates(ctx context.Context) (domain.ReserveRates, error)
}

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
	BuildCanonicalString(method, path string, timestamp int64, nonce string, body string) string
}

// TokenService handles JWT token operations for buyers and merchants.
type TokenService interface {
	Generate(subject uuid.UUID, role domain.Role) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject uuid.UUID
	Role    domain.Role
}

// OperatorDirectory resolves HMAC access keys to operator identities.
type OperatorDirectory interface {
	GetByAccessKey(ctx context.Context, accessKey string) (*domain.Operator, error) // nil if unknown
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NonceStore manages nonce uniqueness for replay attack prevention.
type NonceStore interface {
	// CheckAndSet atomically checks if nonce exists, sets it if not.
	// Returns true if nonce is new (valid), false if already used.
	CheckAndSet(ctx context.Context, operatorID string, nonce string, ttl time.Duration) (bool, error)
}

// SweepLock is an expiring, token-guarded lock that keeps concurrent crank
// processes from sweeping at the same time.
type SweepLock interface {
	// Acquire returns ok=false without error when another holder owns name.
	Acquire(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error)
	// Release frees name only if token still owns it.
	Release(ctx context.Context, name string, token string) error
}

// ProtocolMetrics records protocol-level counters and gauges.
type ProtocolMetrics interface {
	ObserveOperation(operation string, err error)
	ObserveSettlement(mode domain.SettlementMode, paid int64, completed bool)
	SetOpenObligations(n int64)
	SetTotalStaked(n int64)
}

// --- Service Ports (Business Logic) ---

// StakeService manages buyers' staked principal.
type StakeService interface {
	Stake(ctx context.Context, req StakeRequest) (*domain.StakeAccount, error)
	Unstake(ctx context.Context, req StakeRequest) (*domain.StakeAccount, error)
	GetAccount(ctx context.Context, buyerID uuid.UUID) (*domain.StakeAccount, error)
}

// StakeRequest holds validated input for stake and unstake.
type StakeRequest struct {
	Caller domain.Caller
	Amount int64
}

// MerchantService manages merchant registration and approval.
type MerchantService interface {
	Register(ctx context.Context, req RegisterMerchantRequest) (*RegisterMerchantResponse, error)
	SetStatus(ctx context.Context, req SetMerchantStatusRequest) (*domain.MerchantAccount, error)
	GetAccount(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantAccount, error)
}

// RegisterMerchantRequest holds input for merchant registration.
type RegisterMerchantRequest struct {
	Caller     domain.Caller
	MerchantID uuid.UUID
	WebhookURL *string
}

// RegisterMerchantResponse holds the registration result. The webhook secret
// is shown only once.
type RegisterMerchantResponse struct {
	Account       *domain.MerchantAccount
	WebhookSecret string
}

// SetMerchantStatusRequest holds input for an approval change.
type SetMerchantStatusRequest struct {
	Caller     domain.Caller
	MerchantID uuid.UUID
	Status     domain.MerchantStatus
}

// PurchaseService converts purchases into collateralized obligations.
type PurchaseService interface {
	AuthorizePurchase(ctx context.Context, req PurchaseRequest) (*domain.PaymentObligation, error)
}

// PurchaseRequest holds validated input for purchase authorization.
type PurchaseRequest struct {
	Caller         domain.Caller
	BuyerID        uuid.UUID
	MerchantID     uuid.UUID
	ReferenceID    string
	PurchaseAmount int64
	BufferBps      *int64 // nil = configured default
}

// SettlementService advances obligations toward completion.
type SettlementService interface {
	SettleHarvest(ctx context.Context, req SettlementRequest) (*SettlementResult, error)
	ClaimDirect(ctx context.Context, req SettlementRequest) (*SettlementResult, error)
}

// SettlementRequest holds validated input for a settlement.
type SettlementRequest struct {
	Caller domain.Caller
	Key    domain.ObligationKey
	Amount int64
}

// SettlementResult describes what one settlement did.
type SettlementResult struct {
	Obligation *domain.PaymentObligation `json:"obligation"`
	Mode       domain.SettlementMode     `json:"mode"`
	Paid       int64                     `json:"paid"`
	Redeemed   int64                     `json:"redeemed"` // underlying received from the reserve
	Completed  bool                      `json:"completed"`
}

// VaultService manages the protocol vault and asset funding.
type VaultService interface {
	Bootstrap(ctx context.Context, caller domain.Caller) (*domain.ProtocolVault, error)
	FundWallet(ctx context.Context, req FundRequest) (int64, error) // new balance
	GetVault(ctx context.Context) (*domain.ProtocolVault, error)
}

// FundRequest holds input for crediting an account's liquid balance.
type FundRequest struct {
	Caller    domain.Caller
	AccountID uuid.UUID
	Amount    int64
}

// ReportingService defines read-side queries.
type ReportingService interface {
	GetObligation(ctx context.Context, key domain.ObligationKey) (*domain.PaymentObligation, error)
	ListObligations(ctx context.Context, params ObligationListParams) ([]domain.PaymentObligation, int64, error)
	ListTransactions(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	GetWalletBalance(ctx context.Context, accountID uuid.UUID) (int64, error)
	GetMerchantStats(ctx context.Context, merchantID uuid.UUID) (*MerchantStats, error)
}

// MerchantStats aggregates a merchant's settlement picture.
type MerchantStats struct {
	Account         *domain.MerchantAccount `json:"account"`
	OpenObligations int64                   `json:"open_obligations"`
	Completed       int64                   `json:"completed_obligations"`
	Journal         *TransactionStats       `json:"journal"`
	WalletBalance   int64                   `json:"wallet_balance"`
}

// WebhookService defines async webhook delivery.
type WebhookService interface {
	EnqueueSettlement(ctx context.Context, result *SettlementResult) error
}

// AuditService records audit entries asynchronously.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
