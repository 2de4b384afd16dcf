package dto

import (
	"time"

	"yield-bnpl/internal/core/domain"
)

// Amount fields are not range-checked here; the protocol rejects
// non-positive amounts with its own error.

// StakeRequest is the request body for stake and unstake.
type StakeRequest struct {
	Amount int64 `json:"amount"`
}

// StakeAccountResponse is a buyer's principal split.
type StakeAccountResponse struct {
	BuyerID           string `json:"buyer_id"`
	StakedPrincipal   int64  `json:"staked_principal"`
	UnlockableBalance int64  `json:"unlockable_balance"`
	LockedCollateral  int64  `json:"locked_collateral"`
	UpdatedAt         string `json:"updated_at"`
}

// RegisterMerchantRequest is the request body for merchant registration.
// MerchantID is required when an operator registers on a merchant's behalf
// and ignored when a merchant registers itself.
type RegisterMerchantRequest struct {
	MerchantID string  `json:"merchant_id" binding:"omitempty,uuid"`
	WebhookURL *string `json:"webhook_url,omitempty" binding:"omitempty,max=512,safe_url"`
}

// RegisterMerchantResponse returns the webhook signing secret once.
type RegisterMerchantResponse struct {
	MerchantID    string `json:"merchant_id"`
	Status        string `json:"status"`
	WebhookSecret string `json:"webhook_secret"`
}

// SetMerchantStatusRequest is the request body for an approval change.
type SetMerchantStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=PENDING APPROVED"`
}

// MerchantResponse is a merchant account as seen over the API.
type MerchantResponse struct {
	MerchantID   string  `json:"merchant_id"`
	Status       string  `json:"status"`
	NextSequence int64   `json:"next_sequence"`
	TotalSettled int64   `json:"total_settled"`
	WebhookURL   *string `json:"webhook_url,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

// MerchantStatsResponse is a merchant's settlement picture.
type MerchantStatsResponse struct {
	Merchant        MerchantResponse `json:"merchant"`
	OpenObligations int64            `json:"open_obligations"`
	Completed       int64            `json:"completed_obligations"`
	TotalHarvest    int64            `json:"total_settled_harvest"`
	TotalDirect     int64            `json:"total_settled_direct"`
	WalletBalance   int64            `json:"wallet_balance"`
}

// PurchaseRequest is the request body for purchase authorization.
type PurchaseRequest struct {
	BuyerID        string `json:"buyer_id" binding:"required,uuid"`
	MerchantID     string `json:"merchant_id" binding:"required,uuid"`
	ReferenceID    string `json:"reference_id" binding:"required,max=100,safe_id"`
	PurchaseAmount int64  `json:"purchase_amount"`
	BufferBps      *int64 `json:"buffer_bps,omitempty" binding:"omitempty,gte=0"`
}

// SettlementRequest is the request body for harvest and direct claims.
type SettlementRequest struct {
	BuyerID    string `json:"buyer_id" binding:"required,uuid"`
	MerchantID string `json:"merchant_id" binding:"required,uuid"`
	Sequence   *int64 `json:"sequence" binding:"required,gte=0"`
	Amount     int64  `json:"amount"`
}

// ObligationResponse is a payment obligation as seen over the API.
type ObligationResponse struct {
	Key              string  `json:"key"`
	BuyerID          string  `json:"buyer_id"`
	MerchantID       string  `json:"merchant_id"`
	Sequence         int64   `json:"sequence"`
	ReferenceID      string  `json:"reference_id"`
	AmountDue        int64   `json:"amount_due"`
	LockedCollateral int64   `json:"locked_collateral"`
	AmountFulfilled  int64   `json:"amount_fulfilled"`
	Remaining        int64   `json:"remaining"`
	Status           string  `json:"status"`
	APYBps           int64   `json:"apy_bps"`
	BufferBps        int64   `json:"buffer_bps"`
	CreatedAt        string  `json:"created_at"`
	CompletedAt      *string `json:"completed_at,omitempty"`
}

// SettlementResponse describes one settlement.
type SettlementResponse struct {
	Obligation ObligationResponse `json:"obligation"`
	Mode       string             `json:"mode"`
	Paid       int64              `json:"paid"`
	Redeemed   int64              `json:"redeemed"`
	Completed  bool               `json:"completed"`
}

// FundRequest is the request body for crediting an account.
type FundRequest struct {
	AccountID string `json:"account_id" binding:"required,uuid"`
	Amount    int64  `json:"amount"`
}

// BalanceResponse is an account's liquid asset balance.
type BalanceResponse struct {
	AccountID string `json:"account_id"`
	Balance   int64  `json:"balance"`
}

// TransactionResponse is a journal entry as seen over the API.
type TransactionResponse struct {
	ID              string  `json:"id"`
	TransactionType string  `json:"transaction_type"`
	AccountID       string  `json:"account_id"`
	Counterparty    *string `json:"counterparty,omitempty"`
	Amount          int64   `json:"amount"`
	ReserveAmount   int64   `json:"reserve_amount"`
	ObligationKey   *string `json:"obligation_key,omitempty"`
	ReferenceID     string  `json:"reference_id,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

// VaultResponse is the protocol vault rollup.
type VaultResponse struct {
	AdminID               string `json:"admin_id"`
	TotalStaked           int64  `json:"total_staked"`
	TotalRewardsHarvested int64  `json:"total_rewards_harvested"`
	OpenObligationCount   int64  `json:"open_obligation_count"`
	UpdatedAt             string `json:"updated_at"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// NewStakeAccountResponse converts a stake account.
func NewStakeAccountResponse(a *domain.StakeAccount) StakeAccountResponse {
	return StakeAccountResponse{
		BuyerID:           a.BuyerID.String(),
		StakedPrincipal:   a.StakedPrincipal,
		UnlockableBalance: a.UnlockableBalance,
		LockedCollateral:  a.LockedCollateral,
		UpdatedAt:         formatTime(a.UpdatedAt),
	}
}

// NewMerchantResponse converts a merchant account. The webhook secret is
// never included.
func NewMerchantResponse(m *domain.MerchantAccount) MerchantResponse {
	return MerchantResponse{
		MerchantID:   m.MerchantID.String(),
		Status:       string(m.Status),
		NextSequence: m.NextSequence,
		TotalSettled: m.TotalSettled,
		WebhookURL:   m.WebhookURL,
		CreatedAt:    formatTime(m.CreatedAt),
	}
}

// NewObligationResponse converts a payment obligation.
func NewObligationResponse(o *domain.PaymentObligation) ObligationResponse {
	resp := ObligationResponse{
		Key:              o.Key().String(),
		BuyerID:          o.BuyerID.String(),
		MerchantID:       o.MerchantID.String(),
		Sequence:         o.Sequence,
		ReferenceID:      o.ReferenceID,
		AmountDue:        o.AmountDue,
		LockedCollateral: o.LockedCollateral,
		AmountFulfilled:  o.AmountFulfilled,
		Remaining:        o.Remaining(),
		Status:           string(o.Status),
		APYBps:           o.APYBps,
		BufferBps:        o.BufferBps,
		CreatedAt:        formatTime(o.CreatedAt),
	}
	if o.CompletedAt != nil {
		s := formatTime(*o.CompletedAt)
		resp.CompletedAt = &s
	}
	return resp
}

// NewTransactionResponse converts a journal entry.
func NewTransactionResponse(t *domain.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:              t.ID.String(),
		TransactionType: string(t.TransactionType),
		AccountID:       t.AccountID.String(),
		Amount:          t.Amount,
		ReserveAmount:   t.ReserveAmount,
		ObligationKey:   t.ObligationKey,
		ReferenceID:     t.ReferenceID,
		CreatedAt:       formatTime(t.CreatedAt),
	}
	if t.Counterparty != nil {
		s := t.Counterparty.String()
		resp.Counterparty = &s
	}
	return resp
}

// NewVaultResponse converts the protocol vault.
func NewVaultResponse(v *domain.ProtocolVault) VaultResponse {
	return VaultResponse{
		AdminID:               v.AdminID.String(),
		TotalStaked:           v.TotalStaked,
		TotalRewardsHarvested: v.TotalRewardsHarvested,
		OpenObligationCount:   v.OpenObligationCount,
		UpdatedAt:             formatTime(v.UpdatedAt),
	}
}
