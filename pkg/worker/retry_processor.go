package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rwaswift/compliance-api/internal/model"
	"github.com/rwaswift/compliance-api/internal/repository"
	"github.com/rwaswift/compliance-api/internal/service/webhook"
	"github.com/rwaswift/compliance-api/pkg/logger"
	"github.com/rwaswift/compliance-api/pkg/metrics"
)

type RetryProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration

	// Grace keeps the worker from racing the API process's own timers:
	// only retries overdue by more than this are considered orphaned.
	Grace time.Duration
}

// RetryProcessor re-issues webhook deliveries whose scheduled retry was
// lost to a process restart. The API process retries in-memory; rows with
// a stale next_retry_at are picked up here.
type RetryProcessor struct {
	deliveries repository.WebhookDeliveryRepository
	webhooks   repository.WebhookRepository
	deliverer  *webhook.Deliverer
	config     RetryProcessorConfig
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

func NewRetryProcessor(
	deliveries repository.WebhookDeliveryRepository,
	webhooks repository.WebhookRepository,
	deliverer *webhook.Deliverer,
	config RetryProcessorConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) *RetryProcessor {
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.Grace <= 0 {
		panic("Grace must be greater than 0")
	}

	return &RetryProcessor{
		deliveries: deliveries,
		webhooks:   webhooks,
		deliverer:  deliverer,
		config:     config,
		logger:     log,
		metrics:    m,
	}
}

func (p *RetryProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting webhook retry processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down webhook retry processor")
			return
		case <-ticker.C:
			if err := p.processDue(ctx); err != nil {
				p.logger.Error(err, "Failed to process due retries")
			}
		}
	}
}

func (p *RetryProcessor) processDue(ctx context.Context) error {
	cutoff := time.Now().Add(-p.config.Grace)

	due, err := p.deliveries.ListDueRetries(ctx, cutoff, p.config.BatchSize)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("list_due_retries", "error").Inc()
		return fmt.Errorf("failed to list due retries: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("list_due_retries", "success").Inc()
	p.metrics.RetryQueueDepth.Set(float64(len(due)))

	for _, delivery := range due {
		if err := p.reissue(ctx, delivery); err != nil {
			p.logger.Error(err, "Failed to reissue delivery",
				"delivery_id", delivery.ID.String(),
				"webhook_id", delivery.WebhookID.String())
		}
	}
	return nil
}

func (p *RetryProcessor) reissue(ctx context.Context, delivery *model.WebhookDelivery) error {
	// Claim the row first so neither the next poll nor a sibling replica
	// picks it up again.
	claimed, err := p.deliveries.ClaimRetry(ctx, delivery.ID)
	if err != nil {
		return fmt.Errorf("failed to claim retry: %w", err)
	}
	if !claimed {
		p.logger.Info("retry already claimed",
			"delivery_id", delivery.ID.String())
		return nil
	}

	wh, err := p.webhooks.GetByID(ctx, delivery.WebhookID)
	if err != nil {
		p.logger.Info("skipping retry for missing webhook",
			"webhook_id", delivery.WebhookID.String())
		return nil
	}
	if !wh.IsActive {
		p.logger.Info("skipping retry for inactive webhook",
			"webhook_id", wh.ID.String())
		return nil
	}

	event, err := eventFromPayload(delivery)
	if err != nil {
		return err
	}

	p.metrics.DeliveryRetries.WithLabelValues(delivery.EventType).Inc()
	p.deliverer.Deliver(ctx, wh, event, delivery.AttemptNumber+1)
	return nil
}

// eventFromPayload recovers the logical event from the stored wire body.
func eventFromPayload(delivery *model.WebhookDelivery) (model.WebhookEvent, error) {
	var body struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(delivery.Payload, &body); err != nil {
		return model.WebhookEvent{}, fmt.Errorf("failed to decode stored payload: %w", err)
	}
	return model.WebhookEvent{Type: body.Type, Data: body.Data}, nil
}
