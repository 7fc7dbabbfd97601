package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rwaswift/compliance-api/internal/model"
	"github.com/rwaswift/compliance-api/internal/repository"
)

type webhookDeliveryRepository struct {
	db *sqlx.DB
}

func NewWebhookDeliveryRepository(db *sqlx.DB) repository.WebhookDeliveryRepository {
	return &webhookDeliveryRepository{db: db}
}

func (r *webhookDeliveryRepository) Create(ctx context.Context, d *model.WebhookDelivery) error {
	if d.Payload == nil {
		return fmt.Errorf("delivery payload cannot be nil")
	}

	query := `
		INSERT INTO webhook_deliveries (
			id, webhook_id, verification_id, event_type, payload, http_status,
			response_body, response_time_ms, success, error_message,
			attempt_number, next_retry_at, created_at, delivered_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`
	d.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		d.ID,
		d.WebhookID,
		d.VerificationID,
		d.EventType,
		d.Payload,
		d.HTTPStatus,
		d.ResponseBody,
		d.ResponseTimeMs,
		d.Success,
		d.ErrorMessage,
		d.AttemptNumber,
		d.NextRetryAt,
		d.CreatedAt,
		d.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create webhook delivery: %w", err)
	}
	return nil
}

func (r *webhookDeliveryRepository) ListByWebhook(ctx context.Context, webhookID uuid.UUID, p model.Pagination) ([]*model.WebhookDelivery, error) {
	query := `
		SELECT * FROM webhook_deliveries
		WHERE webhook_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	var deliveries []*model.WebhookDelivery
	err := r.db.SelectContext(ctx, &deliveries, query, webhookID, p.Limit, p.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook deliveries: %w", err)
	}
	return deliveries, nil
}

func (r *webhookDeliveryRepository) ListDueRetries(ctx context.Context, before time.Time, limit int) ([]*model.WebhookDelivery, error) {
	query := `
		SELECT * FROM webhook_deliveries
		WHERE success = FALSE AND next_retry_at IS NOT NULL AND next_retry_at <= $1
		ORDER BY next_retry_at ASC
		LIMIT $2
	`
	var deliveries []*model.WebhookDelivery
	err := r.db.SelectContext(ctx, &deliveries, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due retries: %w", err)
	}
	return deliveries, nil
}

// ClaimRetry clears next_retry_at only when it is still set, so exactly one
// of several concurrent claimants wins the row.
func (r *webhookDeliveryRepository) ClaimRetry(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `UPDATE webhook_deliveries SET next_retry_at = NULL WHERE id = $1 AND next_retry_at IS NOT NULL`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim retry: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *webhookDeliveryRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM webhook_deliveries WHERE created_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old deliveries: %w", err)
	}
	return res.RowsAffected()
}
