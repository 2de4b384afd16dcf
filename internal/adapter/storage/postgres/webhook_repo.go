package postgres

import (
	"context"
	"time"

	"yield-bnpl/internal/core/domain"
)

// WebhookRepo implements ports.WebhookRepository.
type WebhookRepo struct {
	pool Pool
}

func NewWebhookRepo(pool Pool) *WebhookRepo {
	return &WebhookRepo{pool: pool}
}

func (r *WebhookRepo) Create(ctx context.Context, log *domain.WebhookDeliveryLog) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO webhook_delivery_logs
		(id, obligation_key, merchant_id, event, webhook_url, payload, http_status, attempt, status, next_retry_at, last_error, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		log.ID, log.ObligationKey, log.MerchantID, string(log.Event), log.WebhookURL,
		log.Payload, log.HTTPStatus, log.Attempt, string(log.Status),
		log.NextRetryAt, log.LastError, log.CreatedAt, log.UpdatedAt,
	)
	return err
}

func (r *WebhookRepo) Update(ctx context.Context, log *domain.WebhookDeliveryLog) error {
	log.UpdatedAt = time.Now()
	_, err := r.pool.Exec(ctx,
		`UPDATE webhook_delivery_logs
		 SET http_status=$1, attempt=$2, status=$3, next_retry_at=$4, last_error=$5, updated_at=$6
		 WHERE id=$7`,
		log.HTTPStatus, log.Attempt, string(log.Status),
		log.NextRetryAt, log.LastError, log.UpdatedAt, log.ID,
	)
	return err
}

func (r *WebhookRepo) ListByObligation(ctx context.Context, obligationKey string) ([]domain.WebhookDeliveryLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, obligation_key, merchant_id, event, webhook_url, payload,
		http_status, attempt, status, next_retry_at, last_error,
		created_at, updated_at
		 FROM webhook_delivery_logs
		 WHERE obligation_key=$1
		 ORDER BY created_at DESC`, obligationKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.WebhookDeliveryLog
	for rows.Next() {
		var l domain.WebhookDeliveryLog
		var event, status string
		if err := rows.Scan(
			&l.ID, &l.ObligationKey, &l.MerchantID, &event, &l.WebhookURL, &l.Payload,
			&l.HTTPStatus, &l.Attempt, &status, &l.NextRetryAt, &l.LastError,
			&l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, err
		}
		l.Event = domain.WebhookEvent(event)
		l.Status = domain.WebhookStatus(status)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
