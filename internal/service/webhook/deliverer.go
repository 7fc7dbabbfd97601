package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rwaswift/compliance-api/internal/model"
	"github.com/rwaswift/compliance-api/internal/repository"
	"github.com/rwaswift/compliance-api/pkg/logger"
	"github.com/rwaswift/compliance-api/pkg/metrics"
)

const (
	// Response bodies are truncated before logging.
	maxLoggedResponseBytes = 1000

	baseBackoff       = time.Second
	defaultMaxBackoff = 60 * time.Second
)

// payload is the wire body. Field order matters: the signature is computed
// over these exact serialized bytes.
type payload struct {
	ID      string      `json:"id"`
	Type    string      `json:"type"`
	Created string      `json:"created"`
	Data    interface{} `json:"data"`
}

// DeliveryResult reports the outcome of one delivery attempt.
type DeliveryResult struct {
	Success    bool       `json:"success"`
	DeliveryID uuid.UUID  `json:"delivery_id"`
	HTTPStatus *int       `json:"http_status,omitempty"`
	Error      string     `json:"error,omitempty"`
	WillRetry  bool       `json:"will_retry"`
	NextRetry  *time.Time `json:"next_retry,omitempty"`
}

// DispatchSummary reports the fan-out outcome of one event across an
// organization's endpoints, based on first attempts only.
type DispatchSummary struct {
	Attempted int
	Delivered int
}

// VerificationEventData is the decision summary carried by verification
// lifecycle events.
type VerificationEventData struct {
	VerificationID   uuid.UUID                `json:"verification_id"`
	Status           model.VerificationStatus `json:"status"`
	Decision         *model.Decision          `json:"decision"`
	InvestorEmail    string                   `json:"investor_email"`
	RiskScore        *int                     `json:"risk_score"`
	RiskLevel        *model.RiskLevel         `json:"risk_level"`
	ProcessingTimeMs *int64                   `json:"processing_time_ms"`
	CompletedAt      *time.Time               `json:"completed_at"`
	CreatedAt        time.Time                `json:"created_at"`
}

// NewVerificationCompletedEvent builds the completion event for a
// terminal verification.
func NewVerificationCompletedEvent(v *model.Verification) model.WebhookEvent {
	return model.WebhookEvent{
		Type: model.EventVerificationCompleted,
		Data: VerificationEventData{
			VerificationID:   v.ID,
			Status:           v.Status,
			Decision:         v.Decision,
			InvestorEmail:    v.InvestorEmail,
			RiskScore:        v.RiskScore,
			RiskLevel:        v.RiskLevel,
			ProcessingTimeMs: v.ProcessingTimeMs,
			CompletedAt:      v.ProcessingCompletedAt,
			CreatedAt:        v.CreatedAt,
		},
	}
}

// Deliverer signs and posts webhook events with per-endpoint retry and
// backoff. Attempts for a single endpoint are strictly sequential; different
// endpoints are independent.
type Deliverer struct {
	webhooks   repository.WebhookRepository
	deliveries repository.WebhookDeliveryRepository
	client     *http.Client
	logger     *logger.Logger
	metrics    *metrics.Metrics
	maxBackoff time.Duration

	// schedule defers a retry; replaced in tests to avoid real timers.
	schedule func(delay time.Duration, fn func())
	now      func() time.Time
}

type DelivererOption func(*Deliverer)

// WithScheduler overrides retry scheduling.
func WithScheduler(schedule func(delay time.Duration, fn func())) DelivererOption {
	return func(d *Deliverer) { d.schedule = schedule }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) DelivererOption {
	return func(d *Deliverer) { d.now = now }
}

// WithMaxBackoff caps the retry delay.
func WithMaxBackoff(max time.Duration) DelivererOption {
	return func(d *Deliverer) { d.maxBackoff = max }
}

func NewDeliverer(
	webhooks repository.WebhookRepository,
	deliveries repository.WebhookDeliveryRepository,
	log *logger.Logger,
	m *metrics.Metrics,
	opts ...DelivererOption,
) *Deliverer {
	d := &Deliverer{
		webhooks:   webhooks,
		deliveries: deliveries,
		client:     &http.Client{},
		logger:     log,
		metrics:    m,
		maxBackoff: defaultMaxBackoff,
		schedule: func(delay time.Duration, fn func()) {
			time.AfterFunc(delay, fn)
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Backoff computes the delay before the retry following the given attempt:
// 1s * 2^attempt, capped.
func (d *Deliverer) Backoff(attempt int) time.Duration {
	delay := baseBackoff
	for i := 0; i < attempt && delay < d.maxBackoff; i++ {
		delay *= 2
	}
	if delay > d.maxBackoff {
		delay = d.maxBackoff
	}
	return delay
}

// Deliver performs one delivery attempt and schedules the next one on
// failure. The returned result reflects this attempt only.
func (d *Deliverer) Deliver(ctx context.Context, wh *model.Webhook, event model.WebhookEvent, attempt int) *DeliveryResult {
	deliveryID := uuid.New()
	start := d.now()

	var verificationID *uuid.UUID
	if data, ok := event.Data.(VerificationEventData); ok {
		id := data.VerificationID
		verificationID = &id
	}

	body, err := json.Marshal(payload{
		ID:      deliveryID.String(),
		Type:    event.Type,
		Created: start.UTC().Format(time.RFC3339),
		Data:    event.Data,
	})
	if err != nil {
		d.logger.Error(err, "failed to marshal webhook payload", "webhook_id", wh.ID.String())
		return &DeliveryResult{DeliveryID: deliveryID, Error: err.Error()}
	}

	record := &model.WebhookDelivery{
		ID:             deliveryID,
		WebhookID:      wh.ID,
		VerificationID: verificationID,
		EventType:      event.Type,
		Payload:        body,
		AttemptNumber:  attempt,
	}

	status, responseBody, postErr := d.post(ctx, wh, body, deliveryID, event.Type)
	elapsed := d.now().Sub(start)
	record.ResponseTimeMs = elapsed.Milliseconds()
	d.metrics.DeliveryLatency.Observe(elapsed.Seconds())

	if postErr == nil {
		deliveredAt := d.now()
		record.Success = true
		record.HTTPStatus = &status
		record.ResponseBody = &responseBody
		record.DeliveredAt = &deliveredAt
		d.record(record)
		d.metrics.DeliveriesTotal.WithLabelValues("success").Inc()

		if err := d.webhooks.TouchLastTriggered(context.WithoutCancel(ctx), wh.ID, deliveredAt); err != nil {
			d.logger.Warn("failed to update last_triggered_at", "webhook_id", wh.ID.String())
		}

		d.logger.Debug("webhook delivered",
			"webhook_id", wh.ID.String(),
			"delivery_id", deliveryID.String(),
			"attempt", attempt,
			"status", status,
		)
		return &DeliveryResult{Success: true, DeliveryID: deliveryID, HTTPStatus: &status}
	}

	errMsg := postErr.Error()
	record.ErrorMessage = &errMsg
	if status != 0 {
		record.HTTPStatus = &status
		if responseBody != "" {
			record.ResponseBody = &responseBody
		}
	}
	d.metrics.DeliveriesTotal.WithLabelValues("failure").Inc()

	result := &DeliveryResult{DeliveryID: deliveryID, Error: errMsg}
	if status != 0 {
		result.HTTPStatus = &status
	}

	retryCount := wh.RetryCount
	if retryCount <= 0 {
		retryCount = model.DefaultWebhookRetryCount
	}

	if attempt < retryCount {
		delay := d.Backoff(attempt)
		nextRetry := d.now().Add(delay)
		record.NextRetryAt = &nextRetry
		result.WillRetry = true
		result.NextRetry = &nextRetry
		d.record(record)
		d.metrics.DeliveryRetries.WithLabelValues(event.Type).Inc()

		d.logger.Info("scheduling webhook retry",
			"webhook_id", wh.ID.String(),
			"delivery_id", deliveryID.String(),
			"next_attempt", attempt+1,
			"delay", delay.String(),
		)
		d.scheduleRetry(deliveryID, wh.ID, event, attempt+1, delay)
		return result
	}

	d.record(record)
	d.logger.Warn("webhook retries exhausted",
		"webhook_id", wh.ID.String(),
		"delivery_id", deliveryID.String(),
		"attempts", attempt,
	)
	return result
}

// scheduleRetry defers the next attempt. At fire time the predecessor
// delivery is claimed first, so the database poller and the in-process
// timer cannot both issue the same attempt. The webhook is then reloaded:
// endpoints deleted or deactivated in the meantime are skipped.
func (d *Deliverer) scheduleRetry(prevDeliveryID, webhookID uuid.UUID, event model.WebhookEvent, attempt int, delay time.Duration) {
	d.schedule(delay, func() {
		ctx := context.Background()

		claimed, err := d.deliveries.ClaimRetry(ctx, prevDeliveryID)
		if err != nil {
			// The row keeps its next_retry_at; the poller picks it up.
			d.logger.Error(err, "failed to claim retry", "delivery_id", prevDeliveryID.String())
			return
		}
		if !claimed {
			d.logger.Info("retry already claimed", "delivery_id", prevDeliveryID.String())
			return
		}

		wh, err := d.webhooks.GetByID(ctx, webhookID)
		if err != nil {
			d.logger.Info("skipping retry for missing webhook", "webhook_id", webhookID.String())
			return
		}
		if !wh.IsActive {
			d.logger.Info("skipping retry for inactive webhook", "webhook_id", webhookID.String())
			return
		}
		d.Deliver(ctx, wh, event, attempt)
	})
}

func (d *Deliverer) post(ctx context.Context, wh *model.Webhook, body []byte, deliveryID uuid.UUID, eventType string) (int, string, error) {
	timeoutSec := wh.TimeoutSeconds
	if timeoutSec <= 0 {
		timeoutSec = model.DefaultWebhookTimeoutSeconds
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, SignatureHeader(body, wh.Secret))
	req.Header.Set(HeaderDeliveryID, deliveryID.String())
	req.Header.Set(HeaderEvent, eventType)
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	truncated, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedResponseBytes))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, string(truncated), fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, string(truncated), nil
}

func (d *Deliverer) record(delivery *model.WebhookDelivery) {
	// The delivery log must survive request cancellation.
	if err := d.deliveries.Create(context.Background(), delivery); err != nil {
		d.logger.Error(err, "failed to record webhook delivery",
			"delivery_id", delivery.ID.String(),
			"webhook_id", delivery.WebhookID.String(),
		)
	}
}

// DispatchVerificationEvent fans an event out to every active, subscribed
// endpoint of the organization. Endpoints are delivered concurrently; the
// call returns once every first attempt has completed, without waiting for
// scheduled retries.
func (d *Deliverer) DispatchVerificationEvent(ctx context.Context, orgID uuid.UUID, event model.WebhookEvent) (*DispatchSummary, error) {
	webhooks, err := d.webhooks.ListActiveByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load webhooks: %w", err)
	}

	summary := &DispatchSummary{}
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, wh := range webhooks {
		if !wh.SubscribedTo(event.Type) {
			continue
		}
		summary.Attempted++

		wg.Add(1)
		go func(wh *model.Webhook) {
			defer wg.Done()
			res := d.Deliver(context.WithoutCancel(ctx), wh, event, 1)
			if res.Success {
				mu.Lock()
				summary.Delivered++
				mu.Unlock()
			}
		}(wh)
	}

	wg.Wait()
	return summary, nil
}
