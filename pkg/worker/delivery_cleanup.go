package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rwaswift/compliance-api/internal/repository"
	"github.com/rwaswift/compliance-api/pkg/logger"
)

// DeliveryCleanupWorker prunes old webhook delivery logs.
type DeliveryCleanupWorker struct {
	deliveries repository.WebhookDeliveryRepository
	retention  time.Duration
	interval   time.Duration
	logger     *logger.Logger
}

func NewDeliveryCleanupWorker(
	deliveries repository.WebhookDeliveryRepository,
	retention time.Duration,
	interval time.Duration,
	log *logger.Logger,
) *DeliveryCleanupWorker {
	return &DeliveryCleanupWorker{
		deliveries: deliveries,
		retention:  retention,
		interval:   interval,
		logger:     log,
	}
}

func (w *DeliveryCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.cleanup(ctx); err != nil {
				w.logger.Error(err, "Failed to clean up delivery logs")
			}
		}
	}
}

func (w *DeliveryCleanupWorker) cleanup(ctx context.Context) error {
	cutoff := time.Now().Add(-w.retention)

	rows, err := w.deliveries.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to delete old delivery logs: %w", err)
	}
	if rows > 0 {
		w.logger.Info("Cleaned up delivery logs", "deleted", rows, "cutoff", cutoff.Format(time.RFC3339))
	}
	return nil
}
