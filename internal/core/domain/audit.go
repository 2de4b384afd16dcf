package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionBootstrap         AuditAction = "BOOTSTRAP"
	AuditActionFund              AuditAction = "FUND"
	AuditActionStake             AuditAction = "STAKE"
	AuditActionUnstake           AuditAction = "UNSTAKE"
	AuditActionRegisterMerchant  AuditAction = "REGISTER_MERCHANT"
	AuditActionSetMerchantStatus AuditAction = "SET_MERCHANT_STATUS"
	AuditActionAuthorizePurchase AuditAction = "AUTHORIZE_PURCHASE"
	AuditActionSettleHarvest     AuditAction = "SETTLE_HARVEST"
	AuditActionClaimDirect       AuditAction = "CLAIM_DIRECT"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	ActorID      *uuid.UUID  `json:"actor_id,omitempty"`
	ActorRole    Role        `json:"actor_role,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
