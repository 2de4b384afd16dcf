package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookStatus represents the delivery state of a webhook.
type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "PENDING"
	WebhookStatusDelivered WebhookStatus = "DELIVERED"
	WebhookStatusFailed    WebhookStatus = "FAILED"
)

// WebhookEvent names the settlement event a merchant is notified of.
type WebhookEvent string

const (
	WebhookEventObligationSettled   WebhookEvent = "OBLIGATION_SETTLED"
	WebhookEventObligationCompleted WebhookEvent = "OBLIGATION_COMPLETED"
)

// WebhookDeliveryLog records each webhook delivery attempt.
type WebhookDeliveryLog struct {
	ID            uuid.UUID     `json:"id"`
	ObligationKey string        `json:"obligation_key"`
	MerchantID    uuid.UUID     `json:"merchant_id"`
	Event         WebhookEvent  `json:"event"`
	WebhookURL    string        `json:"webhook_url"`
	Payload       string        `json:"payload"` // JSON string
	HTTPStatus    *int          `json:"http_status"`
	Attempt       int           `json:"attempt"`
	Status        WebhookStatus `json:"status"`
	NextRetryAt   *time.Time    `json:"next_retry_at"`
	LastError     *string       `json:"last_error"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
