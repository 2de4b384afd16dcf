package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyLog is the durable record of a processed purchase authorization,
// used to replay the original response on retries.
type IdempotencyLog struct {
	Key          string    `json:"key"` // Format: "merchant_id:reference_id"
	ResourceID   string    `json:"resource_id"`
	ResponseJSON []byte    `json:"response_json"`
	CreatedAt    time.Time `json:"created_at"`
}

// BuildIdempotencyKey constructs the purchase idempotency key.
func BuildIdempotencyKey(merchantID uuid.UUID, referenceID string) string {
	return merchantID.String() + ":" + referenceID
}
