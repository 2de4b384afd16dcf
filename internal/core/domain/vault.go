package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProtocolHoldingID is the asset ledger account that receives redeemed
// underlying and pays merchants.
var ProtocolHoldingID = uuid.MustParse("00000000-0000-0000-0000-000000000b0a")

// ProtocolVault is the global rollup of staked principal, harvested rewards
// and open obligations. A single row, created once at bootstrap.
type ProtocolVault struct {
	AdminID               uuid.UUID `json:"admin_id"`
	TotalStaked           int64     `json:"total_staked"`
	TotalRewardsHarvested int64     `json:"total_rewards_harvested"`
	OpenObligationCount   int64     `json:"open_obligation_count"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// IsAdmin reports whether id is the vault's administrator.
func (v *ProtocolVault) IsAdmin(id uuid.UUID) bool {
	return v.AdminID == id
}
