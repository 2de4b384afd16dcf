package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultWebhookRetryIntervals is the delay before each redelivery attempt.
var DefaultWebhookRetryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

// WebhookSignatureHeader carries the HMAC-SHA256 of the request body.
const WebhookSignatureHeader = "X-Webhook-Signature"

// WebhookPayload is the JSON structure sent to a merchant's webhook_url.
type WebhookPayload struct {
	EventType domain.WebhookEvent `json:"event_type"`
	Data      WebhookPayloadData  `json:"data"`
}

// WebhookPayloadData holds the settlement details in the webhook.
type WebhookPayloadData struct {
	BuyerID         string `json:"buyer_id"`
	MerchantID      string `json:"merchant_id"`
	Sequence        int64  `json:"sequence"`
	ReferenceID     string `json:"reference_id"`
	Mode            string `json:"mode"`
	Paid            int64  `json:"paid"`
	AmountFulfilled int64  `json:"amount_fulfilled"`
	AmountDue       int64  `json:"amount_due"`
	Status          string `json:"status"`
	Timestamp       int64  `json:"timestamp"`
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// webhookService implements ports.WebhookService.
type webhookService struct {
	merchantRepo ports.MerchantAccountRepository
	webhookRepo  ports.WebhookRepository
	encSvc       ports.EncryptionService
	sigSvc       ports.SignatureService
	httpClient   HTTPClient
	retries      []time.Duration
	log          zerolog.Logger
}

// NewWebhookService creates a new webhook service. webhookRepo may be nil;
// retries nil uses DefaultWebhookRetryIntervals.
func NewWebhookService(
	merchantRepo ports.MerchantAccountRepository,
	webhookRepo ports.WebhookRepository,
	encSvc ports.EncryptionService,
	sigSvc ports.SignatureService,
	httpClient HTTPClient,
	retries []time.Duration,
	log zerolog.Logger,
) ports.WebhookService {
	if retries == nil {
		retries = DefaultWebhookRetryIntervals
	}
	return &webhookService{
		merchantRepo: merchantRepo,
		webhookRepo:  webhookRepo,
		encSvc:       encSvc,
		sigSvc:       sigSvc,
		httpClient:   httpClient,
		retries:      retries,
		log:          log,
	}
}

// EnqueueSettlement notifies the obligation's merchant asynchronously with retries.
func (s *webhookService) EnqueueSettlement(ctx context.Context, result *ports.SettlementResult) error {
	ob := result.Obligation
	merchant, err := s.merchantRepo.Get(ctx, ob.MerchantID)
	if err != nil {
		s.log.Error().Err(err).Str("merchant", ob.MerchantID.String()).Msg("webhook: failed to fetch merchant")
		return err
	}
	if merchant == nil || merchant.WebhookURL == nil || *merchant.WebhookURL == "" {
		s.log.Debug().Str("merchant", ob.MerchantID.String()).Msg("webhook: no webhook URL configured, skipping")
		return nil
	}

	event := domain.WebhookEventObligationSettled
	if result.Completed {
		event = domain.WebhookEventObligationCompleted
	}

	payload := WebhookPayload{
		EventType: event,
		Data: WebhookPayloadData{
			BuyerID:         ob.BuyerID.String(),
			MerchantID:      ob.MerchantID.String(),
			Sequence:        ob.Sequence,
			ReferenceID:     ob.ReferenceID,
			Mode:            string(result.Mode),
			Paid:            result.Paid,
			AmountFulfilled: ob.AmountFulfilled,
			AmountDue:       ob.AmountDue,
			Status:          string(ob.Status),
			Timestamp:       time.Now().Unix(),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	secret, err := s.encSvc.Decrypt(merchant.WebhookSecretEnc)
	if err != nil {
		s.log.Error().Err(err).Msg("webhook: failed to decrypt merchant webhook secret")
		return err
	}
	signature := s.sigSvc.Sign(secret, string(body))

	now := time.Now().UTC()
	delivery := &domain.WebhookDeliveryLog{
		ID:            uuid.New(),
		ObligationKey: ob.Key().String(),
		MerchantID:    ob.MerchantID,
		Event:         event,
		WebhookURL:    *merchant.WebhookURL,
		Payload:       string(body),
		Status:        domain.WebhookStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if s.webhookRepo != nil {
		if err := s.webhookRepo.Create(ctx, delivery); err != nil {
			s.log.Warn().Err(err).Msg("webhook: failed to persist delivery log")
		}
	}

	go s.deliverWithRetries(delivery, body, signature)

	return nil
}

// deliverWithRetries attempts delivery, waiting s.retries[i] before retry i+1.
func (s *webhookService) deliverWithRetries(delivery *domain.WebhookDeliveryLog, body []byte, signature string) {
	log := s.log.With().Str("obligation", delivery.ObligationKey).Str("event", string(delivery.Event)).Logger()

	for attempt := 0; attempt <= len(s.retries); attempt++ {
		if attempt > 0 {
			time.Sleep(s.retries[attempt-1])
		}
		delivery.Attempt = attempt + 1

		status, err := s.post(delivery.WebhookURL, body, signature)
		if err == nil && status >= 200 && status < 300 {
			delivery.Status = domain.WebhookStatusDelivered
			delivery.HTTPStatus = &status
			delivery.LastError = nil
			delivery.NextRetryAt = nil
			s.record(delivery)
			log.Info().Int("attempt", delivery.Attempt).Int("status", status).Msg("webhook: delivered successfully")
			return
		}

		msg := fmt.Sprintf("non-2xx response: %d", status)
		if err != nil {
			msg = err.Error()
		} else {
			delivery.HTTPStatus = &status
		}
		delivery.LastError = &msg
		if attempt < len(s.retries) {
			next := time.Now().Add(s.retries[attempt])
			delivery.NextRetryAt = &next
		}
		s.record(delivery)
		log.Warn().Int("attempt", delivery.Attempt).Str("error", msg).Msg("webhook: delivery failed, retrying")
	}

	delivery.Status = domain.WebhookStatusFailed
	delivery.NextRetryAt = nil
	s.record(delivery)
	log.Error().Msg("webhook: all retry attempts exhausted")
}

func (s *webhookService) post(url string, body []byte, signature string) (int, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(WebhookSignatureHeader, signature)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (s *webhookService) record(delivery *domain.WebhookDeliveryLog) {
	if s.webhookRepo == nil {
		return
	}
	delivery.UpdatedAt = time.Now().UTC()
	if err := s.webhookRepo.Update(context.Background(), delivery); err != nil {
		s.log.Warn().Err(err).Msg("webhook: failed to update delivery log")
	}
}
