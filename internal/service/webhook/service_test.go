package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rwaswift/compliance-api/internal/model"
)

func newTestService(webhooks *fakeWebhookRepo, deliveries *fakeDeliveryRepo) *Service {
	d := newTestDeliverer(webhooks, deliveries, &syncScheduler{})
	return NewService(webhooks, deliveries, d, newTestLogger())
}

func TestRegisterDefaultsToAllEvents(t *testing.T) {
	webhooks := newFakeWebhookRepo()
	svc := newTestService(webhooks, &fakeDeliveryRepo{})
	orgID := uuid.New()

	created, err := svc.Register(context.Background(), orgID, &model.CreateWebhookRequest{
		URL: "https://example.com/hooks",
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, model.ValidWebhookEvents, []string(created.Events))
	assert.True(t, created.IsActive)
	assert.Equal(t, model.DefaultWebhookRetryCount, created.RetryCount)
	assert.Equal(t, model.DefaultWebhookTimeoutSeconds, created.TimeoutSeconds)
	assert.True(t, strings.HasPrefix(created.Secret, "whsec_"))
	assert.Len(t, created.Secret, len("whsec_")+32)
	assert.NotEmpty(t, created.Notes)

	stored, err := webhooks.Get(context.Background(), created.ID, orgID)
	require.NoError(t, err)
	assert.Equal(t, created.Secret, stored.Secret)
}

func TestRegisterRejectsUnknownEvents(t *testing.T) {
	svc := newTestService(newFakeWebhookRepo(), &fakeDeliveryRepo{})

	_, err := svc.Register(context.Background(), uuid.New(), &model.CreateWebhookRequest{
		URL:    "https://example.com/hooks",
		Events: []string{model.EventVerificationCompleted, "verification.exploded"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verification.exploded")
}

func TestUpdatePartial(t *testing.T) {
	webhooks := newFakeWebhookRepo()
	svc := newTestService(webhooks, &fakeDeliveryRepo{})
	orgID := uuid.New()

	created, err := svc.Register(context.Background(), orgID, &model.CreateWebhookRequest{
		URL: "https://example.com/hooks",
	})
	require.NoError(t, err)

	inactive := false
	retries := 5
	updated, err := svc.Update(context.Background(), created.ID, orgID, &model.UpdateWebhookRequest{
		IsActive:   &inactive,
		RetryCount: &retries,
		Events:     []string{model.EventVerificationApproved},
	})
	require.NoError(t, err)

	assert.False(t, updated.IsActive)
	assert.Equal(t, 5, updated.RetryCount)
	assert.Equal(t, model.StringList{model.EventVerificationApproved}, updated.Events)
	assert.Equal(t, "https://example.com/hooks", updated.URL)
	assert.Equal(t, created.Webhook.Secret, updated.Secret)
}

func TestGetScopedToOrganization(t *testing.T) {
	webhooks := newFakeWebhookRepo()
	svc := newTestService(webhooks, &fakeDeliveryRepo{})
	orgID := uuid.New()

	created, err := svc.Register(context.Background(), orgID, &model.CreateWebhookRequest{
		URL: "https://example.com/hooks",
	})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), created.ID, uuid.New())
	assert.Error(t, err)

	wh, err := svc.Get(context.Background(), created.ID, orgID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, wh.ID)
}

func TestSendTest(t *testing.T) {
	var gotEvent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEvent = r.Header.Get(HeaderEvent)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	orgID := uuid.New()
	wh := testWebhook(orgID, srv.URL)
	// Subscriptions do not apply to test deliveries.
	wh.Events = model.StringList{model.EventVerificationFailed}
	webhooks := newFakeWebhookRepo(wh)
	svc := newTestService(webhooks, &fakeDeliveryRepo{})

	res, err := svc.SendTest(context.Background(), wh.ID, orgID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, model.EventWebhookTest, gotEvent)
}

func TestSendTestInactive(t *testing.T) {
	orgID := uuid.New()
	wh := testWebhook(orgID, "https://example.com/hooks")
	wh.IsActive = false
	svc := newTestService(newFakeWebhookRepo(wh), &fakeDeliveryRepo{})

	_, err := svc.SendTest(context.Background(), wh.ID, orgID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not active")
}
