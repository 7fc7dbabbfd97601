package webhook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rwaswift/compliance-api/internal/model"
	"github.com/rwaswift/compliance-api/internal/repository"
	apperrors "github.com/rwaswift/compliance-api/pkg/errors"
	"github.com/rwaswift/compliance-api/pkg/logger"
	"github.com/rwaswift/compliance-api/pkg/security"
	"github.com/rwaswift/compliance-api/pkg/validator"
)

// RegisteredWebhook is the create response. It is the only place the
// signing secret ever appears in plaintext output.
type RegisteredWebhook struct {
	*model.Webhook
	Secret string `json:"secret"`
	Notes  string `json:"notes"`
}

const secretNotes = "Save this secret securely. It will not be shown again and is required to verify webhook signatures."

// Service manages webhook endpoint registration and test deliveries.
type Service struct {
	webhooks   repository.WebhookRepository
	deliveries repository.WebhookDeliveryRepository
	deliverer  *Deliverer
	logger     *logger.Logger
}

func NewService(
	webhooks repository.WebhookRepository,
	deliveries repository.WebhookDeliveryRepository,
	deliverer *Deliverer,
	log *logger.Logger,
) *Service {
	return &Service{
		webhooks:   webhooks,
		deliveries: deliveries,
		deliverer:  deliverer,
		logger:     log,
	}
}

// Register creates an endpoint with a fresh signing secret. An empty event
// list subscribes the endpoint to every verification event.
func (s *Service) Register(ctx context.Context, orgID uuid.UUID, req *model.CreateWebhookRequest) (*RegisteredWebhook, error) {
	events := req.Events
	if len(events) == 0 {
		events = append([]string{}, model.ValidWebhookEvents...)
	}
	if invalid := validator.ValidateEventTypes(events, model.ValidWebhookEvents); len(invalid) > 0 {
		return nil, apperrors.BadRequest(
			fmt.Sprintf("invalid event types: %s (valid: %s)",
				strings.Join(invalid, ", "),
				strings.Join(model.ValidWebhookEvents, ", ")),
			nil,
		)
	}

	secret, err := security.GenerateWebhookSecret()
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	wh := &model.Webhook{
		ID:             uuid.New(),
		OrganizationID: orgID,
		URL:            req.URL,
		Secret:         secret,
		Events:         events,
		IsActive:       true,
		RetryCount:     model.DefaultWebhookRetryCount,
		TimeoutSeconds: model.DefaultWebhookTimeoutSeconds,
		Description:    req.Description,
	}
	if err := s.webhooks.Create(ctx, wh); err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to create webhook: %w", err))
	}

	s.logger.Info("webhook registered",
		"webhook_id", wh.ID.String(),
		"organization_id", orgID.String(),
		"url", wh.URL,
	)
	return &RegisteredWebhook{Webhook: wh, Secret: secret, Notes: secretNotes}, nil
}

// Get returns an endpoint, org-scoped.
func (s *Service) Get(ctx context.Context, id, orgID uuid.UUID) (*model.Webhook, error) {
	wh, err := s.webhooks.Get(ctx, id, orgID)
	if err != nil {
		return nil, apperrors.NotFound("webhook", err)
	}
	return wh, nil
}

// List returns all endpoints registered by the organization.
func (s *Service) List(ctx context.Context, orgID uuid.UUID) ([]*model.Webhook, error) {
	webhooks, err := s.webhooks.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to list webhooks: %w", err))
	}
	return webhooks, nil
}

// Update applies partial endpoint settings. The secret is immutable.
func (s *Service) Update(ctx context.Context, id, orgID uuid.UUID, req *model.UpdateWebhookRequest) (*model.Webhook, error) {
	wh, err := s.webhooks.Get(ctx, id, orgID)
	if err != nil {
		return nil, apperrors.NotFound("webhook", err)
	}

	if req.URL != nil {
		wh.URL = *req.URL
	}
	if req.Events != nil {
		if invalid := validator.ValidateEventTypes(req.Events, model.ValidWebhookEvents); len(invalid) > 0 {
			return nil, apperrors.BadRequest(
				fmt.Sprintf("invalid event types: %s", strings.Join(invalid, ", ")), nil)
		}
		wh.Events = req.Events
	}
	if req.IsActive != nil {
		wh.IsActive = *req.IsActive
	}
	if req.RetryCount != nil {
		wh.RetryCount = *req.RetryCount
	}
	if req.TimeoutSeconds != nil {
		wh.TimeoutSeconds = *req.TimeoutSeconds
	}
	if req.Description != nil {
		wh.Description = req.Description
	}

	if err := s.webhooks.Update(ctx, wh); err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to update webhook: %w", err))
	}
	return wh, nil
}

// Delete removes an endpoint. In-flight retries observe the deletion and
// stop on their next scheduled attempt.
func (s *Service) Delete(ctx context.Context, id, orgID uuid.UUID) error {
	if err := s.webhooks.Delete(ctx, id, orgID); err != nil {
		return apperrors.NotFound("webhook", err)
	}
	s.logger.Info("webhook deleted", "webhook_id", id.String(), "organization_id", orgID.String())
	return nil
}

// SendTest fires a webhook.test event at a single endpoint, bypassing
// subscription filtering, and returns the attempt outcome synchronously.
func (s *Service) SendTest(ctx context.Context, id, orgID uuid.UUID) (*DeliveryResult, error) {
	wh, err := s.webhooks.Get(ctx, id, orgID)
	if err != nil {
		return nil, apperrors.NotFound("webhook", err)
	}
	if !wh.IsActive {
		return nil, apperrors.BadRequest("webhook is not active", nil)
	}

	event := model.WebhookEvent{
		Type: model.EventWebhookTest,
		Data: map[string]interface{}{
			"message":    "Test webhook delivery",
			"webhook_id": wh.ID.String(),
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		},
	}
	return s.deliverer.Deliver(ctx, wh, event, 1), nil
}

// DeliveryLogs returns an endpoint's delivery attempts, newest first.
func (s *Service) DeliveryLogs(ctx context.Context, id, orgID uuid.UUID, p model.Pagination) ([]*model.WebhookDelivery, error) {
	if _, err := s.webhooks.Get(ctx, id, orgID); err != nil {
		return nil, apperrors.NotFound("webhook", err)
	}
	p.Normalize()
	logs, err := s.deliveries.ListByWebhook(ctx, id, p)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to list deliveries: %w", err))
	}
	return logs, nil
}
