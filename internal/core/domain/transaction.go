package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType represents the kind of asset movement.
type TransactionType string

const (
	TransactionTypeFund          TransactionType = "FUND"
	TransactionTypeStake         TransactionType = "STAKE"
	TransactionTypeUnstake       TransactionType = "UNSTAKE"
	TransactionTypeSettleHarvest TransactionType = "SETTLE_HARVEST"
	TransactionTypeSettleDirect  TransactionType = "SETTLE_DIRECT"
)

// Transaction is an immutable journal entry for one asset movement. It is
// written in the same database transaction as the balances it describes.
type Transaction struct {
	ID              uuid.UUID       `json:"id"`
	TransactionType TransactionType `json:"transaction_type"`
	AccountID       uuid.UUID       `json:"account_id"`   // buyer or merchant the entry belongs to
	Counterparty    *uuid.UUID      `json:"counterparty,omitempty"`
	Amount          int64           `json:"amount"`
	ReserveAmount   int64           `json:"reserve_amount"` // receipts deposited or underlying redeemed
	ObligationKey   *string         `json:"obligation_key,omitempty"`
	ReferenceID     string          `json:"reference_id,omitempty"`
	CreatedBy       uuid.UUID       `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
}

// IsSettlement returns true for entries that paid a merchant.
func (t *Transaction) IsSettlement() bool {
	return t.TransactionType == TransactionTypeSettleHarvest ||
		t.TransactionType == TransactionTypeSettleDirect
}

// SettlementMode selects how an obligation settlement is funded.
type SettlementMode string

const (
	SettlementModeHarvest SettlementMode = "HARVEST"
	SettlementModeDirect  SettlementMode = "DIRECT"
)

// TransactionType returns the journal entry type for the mode.
func (m SettlementMode) TransactionType() TransactionType {
	if m == SettlementModeHarvest {
		return TransactionTypeSettleHarvest
	}
	return TransactionTypeSettleDirect
}
