package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rwaswift/compliance-api/internal/model"
	"github.com/rwaswift/compliance-api/internal/repository"
)

type webhookRepository struct {
	db *sqlx.DB
}

func NewWebhookRepository(db *sqlx.DB) repository.WebhookRepository {
	return &webhookRepository{db: db}
}

func (r *webhookRepository) Create(ctx context.Context, w *model.Webhook) error {
	query := `
		INSERT INTO webhooks (
			id, organization_id, url, secret, events, is_active,
			retry_count, timeout_seconds, description, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`
	w.CreatedAt = time.Now()
	w.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		w.ID,
		w.OrganizationID,
		w.URL,
		w.Secret,
		w.Events,
		w.IsActive,
		w.RetryCount,
		w.TimeoutSeconds,
		w.Description,
		w.CreatedAt,
		w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	return nil
}

func (r *webhookRepository) Get(ctx context.Context, id, orgID uuid.UUID) (*model.Webhook, error) {
	query := `SELECT * FROM webhooks WHERE id = $1 AND organization_id = $2`
	var w model.Webhook
	err := r.db.GetContext(ctx, &w, query, id, orgID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}
	return &w, nil
}

func (r *webhookRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Webhook, error) {
	query := `SELECT * FROM webhooks WHERE id = $1`
	var w model.Webhook
	err := r.db.GetContext(ctx, &w, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}
	return &w, nil
}

func (r *webhookRepository) Update(ctx context.Context, w *model.Webhook) error {
	query := `
		UPDATE webhooks SET
			url = $1, events = $2, is_active = $3, retry_count = $4,
			timeout_seconds = $5, description = $6, updated_at = $7
		WHERE id = $8 AND organization_id = $9
	`
	w.UpdatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, query,
		w.URL,
		w.Events,
		w.IsActive,
		w.RetryCount,
		w.TimeoutSeconds,
		w.Description,
		w.UpdatedAt,
		w.ID,
		w.OrganizationID,
	)
	if err != nil {
		return fmt.Errorf("failed to update webhook: %w", err)
	}
	return nil
}

func (r *webhookRepository) Delete(ctx context.Context, id, orgID uuid.UUID) error {
	query := `DELETE FROM webhooks WHERE id = $1 AND organization_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *webhookRepository) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*model.Webhook, error) {
	query := `SELECT * FROM webhooks WHERE organization_id = $1 ORDER BY created_at DESC`
	var webhooks []*model.Webhook
	err := r.db.SelectContext(ctx, &webhooks, query, orgID)
	return webhooks, err
}

func (r *webhookRepository) ListActiveByOrg(ctx context.Context, orgID uuid.UUID) ([]*model.Webhook, error) {
	query := `SELECT * FROM webhooks WHERE organization_id = $1 AND is_active = TRUE`
	var webhooks []*model.Webhook
	err := r.db.SelectContext(ctx, &webhooks, query, orgID)
	return webhooks, err
}

func (r *webhookRepository) TouchLastTriggered(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE webhooks SET last_triggered_at = $1, updated_at = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, at, id)
	return err
}
