package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rwaswift/compliance-api/internal/model"
)

// All repository interfaces in one file
type (
	// VerificationRepository persists verification records. The processing
	// pipeline only touches storage through this boundary.
	VerificationRepository interface {
		Create(ctx context.Context, v *model.Verification) error
		Get(ctx context.Context, id, orgID uuid.UUID) (*model.Verification, error)
		Update(ctx context.Context, v *model.Verification) error
		List(ctx context.Context, orgID uuid.UUID, filter *model.VerificationFilter) ([]*model.Verification, int64, error)
		ListRecentByOrg(ctx context.Context, orgID uuid.UUID, since time.Time) ([]*model.Verification, error)
		Stats(ctx context.Context, orgID uuid.UUID) (*model.VerificationStats, error)
	}

	// WebhookRepository is consumed read-mostly by the delivery subsystem;
	// registration CRUD writes through it.
	WebhookRepository interface {
		Create(ctx context.Context, w *model.Webhook) error
		Get(ctx context.Context, id, orgID uuid.UUID) (*model.Webhook, error)
		GetByID(ctx context.Context, id uuid.UUID) (*model.Webhook, error)
		Update(ctx context.Context, w *model.Webhook) error
		Delete(ctx context.Context, id, orgID uuid.UUID) error
		ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*model.Webhook, error)
		ListActiveByOrg(ctx context.Context, orgID uuid.UUID) ([]*model.Webhook, error)
		TouchLastTriggered(ctx context.Context, id uuid.UUID, at time.Time) error
	}

	// WebhookDeliveryRepository records delivery attempts, append-only.
	WebhookDeliveryRepository interface {
		Create(ctx context.Context, d *model.WebhookDelivery) error
		ListByWebhook(ctx context.Context, webhookID uuid.UUID, p model.Pagination) ([]*model.WebhookDelivery, error)
		ListDueRetries(ctx context.Context, before time.Time, limit int) ([]*model.WebhookDelivery, error)
		// ClaimRetry takes ownership of a pending retry. It reports false
		// when another claimant already cleared the row.
		ClaimRetry(ctx context.Context, id uuid.UUID) (bool, error)
		DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}

	// OrganizationRepository is the tenant lookup used by authentication
	// and the usage accounting behind the monthly quota.
	OrganizationRepository interface {
		GetByAPIKeyPrefix(ctx context.Context, prefix string) (*model.Organization, error)
		Get(ctx context.Context, id uuid.UUID) (*model.Organization, error)
		TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
		// IncrementUsage counts one verification against the monthly quota.
		IncrementUsage(ctx context.Context, id uuid.UUID) error
	}
)
