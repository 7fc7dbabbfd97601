package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type VerificationStatus string

const (
	VerificationStatusPending    VerificationStatus = "pending"
	VerificationStatusProcessing VerificationStatus = "processing"
	VerificationStatusApproved   VerificationStatus = "approved"
	VerificationStatusRejected   VerificationStatus = "rejected"
	VerificationStatusFailed     VerificationStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s VerificationStatus) Terminal() bool {
	switch s {
	case VerificationStatusApproved, VerificationStatusRejected, VerificationStatusFailed:
		return true
	}
	return false
}

type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// StringList stores an ordered list of strings as a JSON column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	}
	return fmt.Errorf("cannot scan %T into StringList", src)
}

// Verification is one KYC check for a single investor, owned by one organization.
type Verification struct {
	ID                    uuid.UUID          `json:"id" db:"id"`
	OrganizationID        uuid.UUID          `json:"organization_id" db:"organization_id"`
	InvestorEmail         string             `json:"investor_email" db:"investor_email"`
	InvestorFirstName     *string            `json:"investor_first_name,omitempty" db:"investor_first_name"`
	InvestorLastName      *string            `json:"investor_last_name,omitempty" db:"investor_last_name"`
	InvestorCountry       *string            `json:"investor_country,omitempty" db:"investor_country"`
	InvestorIPAddress     *string            `json:"investor_ip_address,omitempty" db:"investor_ip_address"`
	Status                VerificationStatus `json:"status" db:"status"`
	Decision              *Decision          `json:"decision" db:"decision"`
	DecisionReason        *string            `json:"decision_reason" db:"decision_reason"`
	DecisionMadeAt        *time.Time         `json:"decision_made_at" db:"decision_made_at"`
	DecisionMadeBy        string             `json:"decision_made_by" db:"decision_made_by"`
	RiskScore             *int               `json:"risk_score" db:"risk_score"`
	RiskLevel             *RiskLevel         `json:"risk_level" db:"risk_level"`
	RiskReasons           StringList         `json:"risk_reasons" db:"risk_reasons"`
	ProviderInquiryID     *string            `json:"provider_inquiry_id,omitempty" db:"provider_inquiry_id"`
	ProviderStatus        *string            `json:"provider_status,omitempty" db:"provider_status"`
	ProcessingStartedAt   *time.Time         `json:"processing_started_at" db:"processing_started_at"`
	ProcessingCompletedAt *time.Time         `json:"processing_completed_at" db:"processing_completed_at"`
	ProcessingTimeMs      *int64             `json:"processing_time_ms" db:"processing_time_ms"`
	WebhookDelivered      bool               `json:"webhook_delivered" db:"webhook_delivered"`
	WebhookAttempts       int                `json:"webhook_attempts" db:"webhook_attempts"`
	CreatedAt             time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at" db:"updated_at"`
}

// CreateVerificationRequest is the intake payload for a new verification.
type CreateVerificationRequest struct {
	Email       string  `json:"email" binding:"required,email"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Country     *string `json:"country" binding:"omitempty,len=3"`
	DateOfBirth *string `json:"date_of_birth"`
}

// VerificationFilter narrows org-scoped verification listings.
type VerificationFilter struct {
	Status   string `form:"status"`
	Email    string `form:"email"`
	Country  string `form:"country"`
	Decision string `form:"decision"`
	Pagination
}

// VerificationStats aggregates an organization's verification history.
type VerificationStats struct {
	Total            int64          `json:"total"`
	Approved         int64          `json:"approved"`
	Rejected         int64          `json:"rejected"`
	Pending          int64          `json:"pending"`
	ApprovalRate     *int           `json:"approval_rate"`
	AvgProcessingMs  *int64         `json:"avg_processing_time_ms"`
	RiskDistribution map[string]int `json:"risk_distribution"`
}
