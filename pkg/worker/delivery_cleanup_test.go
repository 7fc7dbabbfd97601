package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rwaswift/compliance-api/internal/model"
)

func TestCleanupDeletesOnlyExpiredLogs(t *testing.T) {
	deliveries := &fakeDeliveryRepo{}
	now := time.Now()

	expired := &model.WebhookDelivery{
		ID:        uuid.New(),
		WebhookID: uuid.New(),
		EventType: model.EventVerificationCompleted,
		Payload:   []byte(`{}`),
		Success:   true,
		CreatedAt: now.Add(-40 * 24 * time.Hour),
	}
	recent := &model.WebhookDelivery{
		ID:        uuid.New(),
		WebhookID: uuid.New(),
		EventType: model.EventVerificationCompleted,
		Payload:   []byte(`{}`),
		Success:   true,
		CreatedAt: now.Add(-time.Hour),
	}
	require.NoError(t, deliveries.Create(context.Background(), expired))
	require.NoError(t, deliveries.Create(context.Background(), recent))

	w := NewDeliveryCleanupWorker(deliveries, 30*24*time.Hour, time.Hour, newTestLogger())
	require.NoError(t, w.cleanup(context.Background()))

	records := deliveries.all()
	require.Len(t, records, 1)
	assert.Equal(t, recent.ID, records[0].ID)
}

func TestCleanupKeepsEverythingWithinRetention(t *testing.T) {
	deliveries := &fakeDeliveryRepo{}
	require.NoError(t, deliveries.Create(context.Background(), &model.WebhookDelivery{
		ID:        uuid.New(),
		WebhookID: uuid.New(),
		EventType: model.EventVerificationCompleted,
		Payload:   []byte(`{}`),
		CreatedAt: time.Now().Add(-time.Hour),
	}))

	w := NewDeliveryCleanupWorker(deliveries, 30*24*time.Hour, time.Hour, newTestLogger())
	require.NoError(t, w.cleanup(context.Background()))

	assert.Len(t, deliveries.all(), 1)
}
