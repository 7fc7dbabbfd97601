package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventVerificationCompleted = "verification.completed"
	EventVerificationApproved  = "verification.approved"
	EventVerificationRejected  = "verification.rejected"
	EventVerificationFailed    = "verification.failed"

	// EventWebhookTest is reserved for test deliveries and is never
	// subject to subscription filtering.
	EventWebhookTest = "webhook.test"
)

// ValidWebhookEvents lists the event types an endpoint may subscribe to.
var ValidWebhookEvents = []string{
	EventVerificationCompleted,
	EventVerificationApproved,
	EventVerificationRejected,
	EventVerificationFailed,
}

const (
	DefaultWebhookRetryCount     = 3
	DefaultWebhookTimeoutSeconds = 10
)

// Webhook is one organization-registered endpoint. The secret is immutable
// after creation and only returned in the create response.
type Webhook struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	OrganizationID  uuid.UUID  `json:"organization_id" db:"organization_id"`
	URL             string     `json:"url" db:"url"`
	Secret          string     `json:"-" db:"secret"`
	Events          StringList `json:"events" db:"events"`
	IsActive        bool       `json:"is_active" db:"is_active"`
	RetryCount      int        `json:"retry_count" db:"retry_count"`
	TimeoutSeconds  int        `json:"timeout_seconds" db:"timeout_seconds"`
	Description     *string    `json:"description" db:"description"`
	LastTriggeredAt *time.Time `json:"last_triggered_at" db:"last_triggered_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// SubscribedTo reports whether the endpoint receives the given event type.
func (w *Webhook) SubscribedTo(eventType string) bool {
	for _, e := range w.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// WebhookEvent is the logical event handed to the delivery subsystem.
type WebhookEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// WebhookDelivery records a single delivery attempt. Retries create new
// records; the log is append-only.
type WebhookDelivery struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	WebhookID      uuid.UUID       `json:"webhook_id" db:"webhook_id"`
	VerificationID *uuid.UUID      `json:"verification_id" db:"verification_id"`
	EventType      string          `json:"event_type" db:"event_type"`
	Payload        json.RawMessage `json:"payload" db:"payload"`
	HTTPStatus     *int            `json:"http_status" db:"http_status"`
	ResponseBody   *string         `json:"response_body" db:"response_body"`
	ResponseTimeMs int64           `json:"response_time_ms" db:"response_time_ms"`
	Success        bool            `json:"success" db:"success"`
	ErrorMessage   *string         `json:"error_message" db:"error_message"`
	AttemptNumber  int             `json:"attempt_number" db:"attempt_number"`
	NextRetryAt    *time.Time      `json:"next_retry_at" db:"next_retry_at"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	DeliveredAt    *time.Time      `json:"delivered_at" db:"delivered_at"`
}

// CreateWebhookRequest registers a new endpoint.
type CreateWebhookRequest struct {
	URL         string   `json:"url" binding:"required,url"`
	Events      []string `json:"events"`
	Description *string  `json:"description"`
}

// UpdateWebhookRequest mutates endpoint settings. The secret cannot be changed.
type UpdateWebhookRequest struct {
	URL            *string  `json:"url" binding:"omitempty,url"`
	Events         []string `json:"events"`
	IsActive       *bool    `json:"is_active"`
	RetryCount     *int     `json:"retry_count" binding:"omitempty,min=1,max=10"`
	TimeoutSeconds *int     `json:"timeout_seconds" binding:"omitempty,min=1,max=60"`
	Description    *string  `json:"description"`
}
