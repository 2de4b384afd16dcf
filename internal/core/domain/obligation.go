package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ObligationStatus represents the lifecycle of a payment obligation.
type ObligationStatus string

const (
	ObligationStatusOpen      ObligationStatus = "OPEN"
	ObligationStatusCompleted ObligationStatus = "COMPLETED"
)

// ObligationKey is the composite identity of a payment obligation.
type ObligationKey struct {
	BuyerID    uuid.UUID `json:"buyer_id"`
	MerchantID uuid.UUID `json:"merchant_id"`
	Sequence   int64     `json:"sequence"`
}

func (k ObligationKey) String() string {
	return fmt.Sprintf("%s:%s:%d", k.BuyerID, k.MerchantID, k.Sequence)
}

// PaymentObligation is a merchant-bound promise to pay AmountDue, backed by
// LockedCollateral of the buyer's stake and fulfilled incrementally.
type PaymentObligation struct {
	ObligationKey
	ReferenceID      string           `json:"reference_id"`
	AmountDue        int64            `json:"amount_due"`
	LockedCollateral int64            `json:"locked_collateral"`
	AmountFulfilled  int64            `json:"amount_fulfilled"`
	Status           ObligationStatus `json:"status"`
	APYBps           int64            `json:"apy_bps"`
	BufferBps        int64            `json:"buffer_bps"`
	CreatedBy        uuid.UUID        `json:"created_by"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
}

// Key returns the obligation's composite identity.
func (o *PaymentObligation) Key() ObligationKey {
	return o.ObligationKey
}

// IsCompleted returns true once the obligation has been fully paid.
func (o *PaymentObligation) IsCompleted() bool {
	return o.Status == ObligationStatusCompleted
}

// Remaining returns the amount still owed to the merchant.
func (o *PaymentObligation) Remaining() int64 {
	if o.AmountFulfilled >= o.AmountDue {
		return 0
	}
	return o.AmountDue - o.AmountFulfilled
}
