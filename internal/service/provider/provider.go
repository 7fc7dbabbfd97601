package provider

import (
	"context"
)

// VerdictStatus is the provider's summary outcome for an identity check.
type VerdictStatus string

const (
	VerdictPassed        VerdictStatus = "passed"
	VerdictFailed        VerdictStatus = "failed"
	VerdictPendingReview VerdictStatus = "pending_review"
)

// Request carries the investor fields submitted to the provider.
type Request struct {
	Email       string
	FirstName   string
	LastName    string
	Country     string
	DateOfBirth string
}

// Result is the provider's verdict. Reasons explain failed and
// pending_review outcomes.
type Result struct {
	Status    VerdictStatus
	Reasons   []string
	InquiryID string
}

// Passed reports whether the identity check succeeded outright.
func (r *Result) Passed() bool {
	return r.Status == VerdictPassed
}

// Provider abstracts the external identity-verification service
// (document OCR, liveness, face match, PEP and adverse-media screening).
type Provider interface {
	Verify(ctx context.Context, req Request) (*Result, error)
}
