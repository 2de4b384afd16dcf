package domain

import (
	"time"

	"github.com/google/uuid"
)

// MerchantStatus represents the approval state of a merchant account.
type MerchantStatus string

const (
	MerchantStatusPending  MerchantStatus = "PENDING"
	MerchantStatusApproved MerchantStatus = "APPROVED"
)

// Valid reports whether s is a known merchant status.
func (s MerchantStatus) Valid() bool {
	return s == MerchantStatusPending || s == MerchantStatusApproved
}

// MerchantAccount holds a merchant's settlement totals and its obligation
// sequence counter. Keyed by the merchant's identity.
type MerchantAccount struct {
	MerchantID       uuid.UUID      `json:"merchant_id"`
	Status           MerchantStatus `json:"status"`
	NextSequence     int64          `json:"next_sequence"`
	TotalSettled     int64          `json:"total_settled"`
	WebhookURL       *string        `json:"webhook_url,omitempty"`
	WebhookSecretEnc string         `json:"-"` // Encrypted, never expose
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// IsApproved returns true if the merchant may receive new obligations.
func (m *MerchantAccount) IsApproved() bool {
	return m.Status == MerchantStatusApproved
}

// NewMerchantAccount returns a freshly registered, approved merchant account.
func NewMerchantAccount(merchantID uuid.UUID, now time.Time) *MerchantAccount {
	return &MerchantAccount{
		MerchantID:   merchantID,
		Status:       MerchantStatusApproved,
		NextSequence: 0,
		TotalSettled: 0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
