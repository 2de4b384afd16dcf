package domain

import (
	"time"

	"github.com/google/uuid"
)

// StakeAccount tracks a buyer's principal held in the yield reserve.
// StakedPrincipal always equals UnlockableBalance + LockedCollateral between
// transactions.
type StakeAccount struct {
	BuyerID           uuid.UUID `json:"buyer_id"`
	StakedPrincipal   int64     `json:"staked_principal"`
	UnlockableBalance int64     `json:"unlockable_balance"`
	LockedCollateral  int64     `json:"locked_collateral"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NewStakeAccount returns an empty account for a buyer's first stake.
func NewStakeAccount(buyerID uuid.UUID, now time.Time) *StakeAccount {
	return &StakeAccount{
		BuyerID:   buyerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Balanced reports whether the principal split invariant holds.
func (a *StakeAccount) Balanced() bool {
	return a.StakedPrincipal >= 0 &&
		a.UnlockableBalance >= 0 &&
		a.LockedCollateral >= 0 &&
		a.StakedPrincipal-a.UnlockableBalance == a.LockedCollateral
}
