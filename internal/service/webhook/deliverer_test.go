package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rwaswift/compliance-api/internal/model"
	"github.com/rwaswift/compliance-api/pkg/errors"
	"github.com/rwaswift/compliance-api/pkg/logger"
	"github.com/rwaswift/compliance-api/pkg/metrics"
)

// promauto registers against the default registry, so the test metrics are
// created once and shared.
var (
	testMetricsOnce sync.Once
	testMetrics     *metrics.Metrics
)

func newTestMetrics() *metrics.Metrics {
	testMetricsOnce.Do(func() {
		testMetrics = metrics.NewMetrics("rwaswift_test", "webhook")
	})
	return testMetrics
}

func newTestLogger() *logger.Logger {
	return logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
}

type fakeWebhookRepo struct {
	mu       sync.Mutex
	webhooks map[uuid.UUID]*model.Webhook
	touched  map[uuid.UUID]time.Time
}

func newFakeWebhookRepo(webhooks ...*model.Webhook) *fakeWebhookRepo {
	r := &fakeWebhookRepo{
		webhooks: make(map[uuid.UUID]*model.Webhook),
		touched:  make(map[uuid.UUID]time.Time),
	}
	for _, wh := range webhooks {
		r.webhooks[wh.ID] = wh
	}
	return r
}

func (r *fakeWebhookRepo) Create(_ context.Context, w *model.Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.webhooks[w.ID] = w
	return nil
}

func (r *fakeWebhookRepo) Get(_ context.Context, id, orgID uuid.UUID) (*model.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wh, ok := r.webhooks[id]
	if !ok || wh.OrganizationID != orgID {
		return nil, errors.NotFound("webhook", nil)
	}
	cp := *wh
	return &cp, nil
}

func (r *fakeWebhookRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wh, ok := r.webhooks[id]
	if !ok {
		return nil, errors.NotFound("webhook", nil)
	}
	cp := *wh
	return &cp, nil
}

func (r *fakeWebhookRepo) Update(_ context.Context, w *model.Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.webhooks[w.ID] = w
	return nil
}

func (r *fakeWebhookRepo) Delete(_ context.Context, id, _ uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.webhooks, id)
	return nil
}

func (r *fakeWebhookRepo) ListByOrg(_ context.Context, orgID uuid.UUID) ([]*model.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Webhook
	for _, wh := range r.webhooks {
		if wh.OrganizationID == orgID {
			cp := *wh
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeWebhookRepo) ListActiveByOrg(_ context.Context, orgID uuid.UUID) ([]*model.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Webhook
	for _, wh := range r.webhooks {
		if wh.OrganizationID == orgID && wh.IsActive {
			cp := *wh
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeWebhookRepo) TouchLastTriggered(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touched[id] = at
	return nil
}

func (r *fakeWebhookRepo) setActive(id uuid.UUID, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.webhooks[id].IsActive = active
}

type fakeDeliveryRepo struct {
	mu      sync.Mutex
	records []*model.WebhookDelivery
	claimed []uuid.UUID
}

func (r *fakeDeliveryRepo) Create(_ context.Context, d *model.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.records = append(r.records, &cp)
	return nil
}

func (r *fakeDeliveryRepo) ListByWebhook(_ context.Context, webhookID uuid.UUID, _ model.Pagination) ([]*model.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.WebhookDelivery
	for _, d := range r.records {
		if d.WebhookID == webhookID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *fakeDeliveryRepo) ListDueRetries(_ context.Context, _ time.Time, _ int) ([]*model.WebhookDelivery, error) {
	return nil, nil
}

func (r *fakeDeliveryRepo) ClaimRetry(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.records {
		if d.ID == id && d.NextRetryAt != nil {
			d.NextRetryAt = nil
			r.claimed = append(r.claimed, id)
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeDeliveryRepo) DeleteBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeDeliveryRepo) all() []*model.WebhookDelivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.WebhookDelivery, len(r.records))
	copy(out, r.records)
	return out
}

func (r *fakeDeliveryRepo) claims() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uuid.UUID, len(r.claimed))
	copy(out, r.claimed)
	return out
}

// syncScheduler runs retries immediately on the calling goroutine and
// records the requested delays.
type syncScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
	paused bool
	queued []func()
}

func (s *syncScheduler) schedule(delay time.Duration, fn func()) {
	s.mu.Lock()
	s.delays = append(s.delays, delay)
	if s.paused {
		s.queued = append(s.queued, fn)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	fn()
}

func (s *syncScheduler) runQueued() {
	s.mu.Lock()
	queued := s.queued
	s.queued = nil
	s.mu.Unlock()
	for _, fn := range queued {
		fn()
	}
}

func testWebhook(orgID uuid.UUID, url string) *model.Webhook {
	return &model.Webhook{
		ID:             uuid.New(),
		OrganizationID: orgID,
		URL:            url,
		Secret:         "whsec_00112233445566778899aabbccddeeff",
		Events:         model.StringList{model.EventVerificationCompleted},
		IsActive:       true,
		RetryCount:     model.DefaultWebhookRetryCount,
		TimeoutSeconds: model.DefaultWebhookTimeoutSeconds,
	}
}

func newTestDeliverer(webhooks *fakeWebhookRepo, deliveries *fakeDeliveryRepo, sched *syncScheduler) *Deliverer {
	return NewDeliverer(webhooks, deliveries, newTestLogger(), newTestMetrics(),
		WithScheduler(sched.schedule))
}

func TestDeliverSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"received":true}`))
	}))
	defer srv.Close()

	orgID := uuid.New()
	wh := testWebhook(orgID, srv.URL)
	webhooks := newFakeWebhookRepo(wh)
	deliveries := &fakeDeliveryRepo{}
	d := newTestDeliverer(webhooks, deliveries, &syncScheduler{})

	res := d.Deliver(context.Background(), wh, model.WebhookEvent{
		Type: model.EventVerificationCompleted,
		Data: map[string]string{"hello": "world"},
	}, 1)

	require.True(t, res.Success)
	require.NotNil(t, res.HTTPStatus)
	assert.Equal(t, http.StatusOK, *res.HTTPStatus)
	assert.False(t, res.WillRetry)

	records := deliveries.all()
	require.Len(t, records, 1)
	rec := records[0]
	assert.True(t, rec.Success)
	assert.Equal(t, 1, rec.AttemptNumber)
	assert.Nil(t, rec.NextRetryAt)
	require.NotNil(t, rec.ResponseBody)
	assert.Equal(t, `{"received":true}`, *rec.ResponseBody)
	assert.NotNil(t, rec.DeliveredAt)

	webhooks.mu.Lock()
	_, touched := webhooks.touched[wh.ID]
	webhooks.mu.Unlock()
	assert.True(t, touched)
}

func TestDeliverHeaders(t *testing.T) {
	var (
		gotHeaders http.Header
		gotBody    []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	orgID := uuid.New()
	wh := testWebhook(orgID, srv.URL)
	deliveries := &fakeDeliveryRepo{}
	d := newTestDeliverer(newFakeWebhookRepo(wh), deliveries, &syncScheduler{})

	res := d.Deliver(context.Background(), wh, model.WebhookEvent{
		Type: model.EventVerificationCompleted,
		Data: map[string]string{"k": "v"},
	}, 1)
	require.True(t, res.Success)

	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "RWAswift-Webhook/1.0", gotHeaders.Get("User-Agent"))
	assert.Equal(t, model.EventVerificationCompleted, gotHeaders.Get(HeaderEvent))
	assert.Equal(t, res.DeliveryID.String(), gotHeaders.Get(HeaderDeliveryID))

	sig := gotHeaders.Get(HeaderSignature)
	require.NotEmpty(t, sig)
	assert.Equal(t, SignatureHeader(gotBody, wh.Secret), sig)
	assert.True(t, VerifySignature(gotBody, sig[len("sha256="):], wh.Secret))

	var body struct {
		ID      string          `json:"id"`
		Type    string          `json:"type"`
		Created string          `json:"created"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &body))
	assert.Equal(t, res.DeliveryID.String(), body.ID)
	assert.Equal(t, model.EventVerificationCompleted, body.Type)
	_, err := time.Parse(time.RFC3339, body.Created)
	assert.NoError(t, err)
}

func TestDeliverRetriesUntilExhausted(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	orgID := uuid.New()
	wh := testWebhook(orgID, srv.URL)
	deliveries := &fakeDeliveryRepo{}
	sched := &syncScheduler{}
	d := newTestDeliverer(newFakeWebhookRepo(wh), deliveries, sched)

	res := d.Deliver(context.Background(), wh, model.WebhookEvent{
		Type: model.EventVerificationCompleted,
	}, 1)

	assert.False(t, res.Success)
	assert.True(t, res.WillRetry)
	assert.Equal(t, model.DefaultWebhookRetryCount, hits)

	records := deliveries.all()
	require.Len(t, records, model.DefaultWebhookRetryCount)
	sort.Slice(records, func(i, j int) bool {
		return records[i].AttemptNumber < records[j].AttemptNumber
	})
	for i, rec := range records {
		assert.Equal(t, i+1, rec.AttemptNumber)
		assert.False(t, rec.Success)
		require.NotNil(t, rec.HTTPStatus)
		assert.Equal(t, http.StatusInternalServerError, *rec.HTTPStatus)
	}
	// Each follow-up attempt claims its predecessor; only the final record
	// was never scheduled for retry.
	assert.Equal(t, []uuid.UUID{records[0].ID, records[1].ID}, deliveries.claims())
	assert.Nil(t, records[0].NextRetryAt)
	assert.Nil(t, records[1].NextRetryAt)
	assert.Nil(t, records[2].NextRetryAt)

	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sched.delays)
}

func TestRetryChainTerminatesOnSuccess(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	orgID := uuid.New()
	wh := testWebhook(orgID, srv.URL)
	deliveries := &fakeDeliveryRepo{}
	d := newTestDeliverer(newFakeWebhookRepo(wh), deliveries, &syncScheduler{})

	d.Deliver(context.Background(), wh, model.WebhookEvent{
		Type: model.EventVerificationCompleted,
	}, 1)

	assert.Equal(t, 2, hits)
	records := deliveries.all()
	require.Len(t, records, 2)
	sort.Slice(records, func(i, j int) bool {
		return records[i].AttemptNumber < records[j].AttemptNumber
	})
	assert.Equal(t, 1, records[0].AttemptNumber)
	assert.False(t, records[0].Success)
	assert.Equal(t, 2, records[1].AttemptNumber)
	assert.True(t, records[1].Success)

	// The failed attempt was claimed when its retry fired; nothing is left
	// for the database poller to pick up.
	for _, rec := range records {
		assert.Nil(t, rec.NextRetryAt)
	}
	claimed, err := deliveries.ClaimRetry(context.Background(), records[0].ID)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestBackoffCapped(t *testing.T) {
	d := NewDeliverer(newFakeWebhookRepo(), &fakeDeliveryRepo{}, newTestLogger(), newTestMetrics())

	assert.Equal(t, 2*time.Second, d.Backoff(1))
	assert.Equal(t, 4*time.Second, d.Backoff(2))
	assert.Equal(t, 8*time.Second, d.Backoff(3))
	assert.Equal(t, 32*time.Second, d.Backoff(5))
	assert.Equal(t, 60*time.Second, d.Backoff(6))
	assert.Equal(t, 60*time.Second, d.Backoff(20))
}

func TestRetrySkipsDeactivatedWebhook(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	orgID := uuid.New()
	wh := testWebhook(orgID, srv.URL)
	webhooks := newFakeWebhookRepo(wh)
	deliveries := &fakeDeliveryRepo{}
	sched := &syncScheduler{paused: true}
	d := newTestDeliverer(webhooks, deliveries, sched)

	d.Deliver(context.Background(), wh, model.WebhookEvent{Type: model.EventVerificationCompleted}, 1)
	require.Equal(t, 1, hits)

	webhooks.setActive(wh.ID, false)
	sched.runQueued()

	assert.Equal(t, 1, hits)
	assert.Len(t, deliveries.all(), 1)
}

func TestRetrySkipsDeletedWebhook(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	orgID := uuid.New()
	wh := testWebhook(orgID, srv.URL)
	webhooks := newFakeWebhookRepo(wh)
	deliveries := &fakeDeliveryRepo{}
	sched := &syncScheduler{paused: true}
	d := newTestDeliverer(webhooks, deliveries, sched)

	d.Deliver(context.Background(), wh, model.WebhookEvent{Type: model.EventVerificationCompleted}, 1)
	require.Equal(t, 1, hits)

	require.NoError(t, webhooks.Delete(context.Background(), wh.ID, orgID))
	sched.runQueued()

	assert.Equal(t, 1, hits)
	assert.Len(t, deliveries.all(), 1)
}

func TestDispatchVerificationEvent(t *testing.T) {
	var mu sync.Mutex
	hitsByPath := map[string]int{}
	handler := func(path string, status int) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			hitsByPath[path]++
			mu.Unlock()
			w.WriteHeader(status)
		}
	}
	mux := http.NewServeMux()
	mux.Handle("/ok", handler("/ok", http.StatusOK))
	mux.Handle("/fail", handler("/fail", http.StatusBadGateway))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	orgID := uuid.New()
	okHook := testWebhook(orgID, srv.URL+"/ok")
	failHook := testWebhook(orgID, srv.URL+"/fail")
	failHook.RetryCount = 1
	unsubscribed := testWebhook(orgID, srv.URL+"/ok")
	unsubscribed.Events = model.StringList{model.EventVerificationFailed}
	inactive := testWebhook(orgID, srv.URL+"/ok")
	inactive.IsActive = false
	otherOrg := testWebhook(uuid.New(), srv.URL+"/ok")

	webhooks := newFakeWebhookRepo(okHook, failHook, unsubscribed, inactive, otherOrg)
	deliveries := &fakeDeliveryRepo{}
	d := newTestDeliverer(webhooks, deliveries, &syncScheduler{})

	summary, err := d.DispatchVerificationEvent(context.Background(), orgID, model.WebhookEvent{
		Type: model.EventVerificationCompleted,
		Data: map[string]string{"k": "v"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Attempted)
	assert.Equal(t, 1, summary.Delivered)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, hitsByPath["/ok"])
	assert.Equal(t, 1, hitsByPath["/fail"])
}

func TestNewVerificationCompletedEvent(t *testing.T) {
	score := 42
	level := model.RiskLevelMedium
	decision := model.DecisionApproved
	now := time.Now()
	elapsed := int64(1200)

	v := &model.Verification{
		ID:                    uuid.New(),
		InvestorEmail:         "investor@example.com",
		Status:                model.VerificationStatusApproved,
		Decision:              &decision,
		RiskScore:             &score,
		RiskLevel:             &level,
		ProcessingTimeMs:      &elapsed,
		ProcessingCompletedAt: &now,
	}

	event := NewVerificationCompletedEvent(v)
	assert.Equal(t, model.EventVerificationCompleted, event.Type)

	data, ok := event.Data.(VerificationEventData)
	require.True(t, ok)
	assert.Equal(t, v.ID, data.VerificationID)
	assert.Equal(t, model.VerificationStatusApproved, data.Status)
	assert.Equal(t, &decision, data.Decision)
	assert.Equal(t, "investor@example.com", data.InvestorEmail)
	assert.Equal(t, &score, data.RiskScore)
}
