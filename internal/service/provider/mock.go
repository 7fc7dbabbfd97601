package provider

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// DefaultMockLatency approximates a real provider round trip.
const DefaultMockLatency = 500 * time.Millisecond

// MockProvider simulates an external KYC provider. Outcomes are driven by
// email and name patterns so integration flows can exercise every verdict
// without a real provider account.
type MockProvider struct {
	// Latency is added per call to approximate provider response times.
	// Zero means no delay.
	Latency time.Duration
}

func NewMockProvider(latency time.Duration) *MockProvider {
	return &MockProvider{Latency: latency}
}

func (p *MockProvider) Verify(ctx context.Context, req Request) (*Result, error) {
	if p.Latency > 0 {
		select {
		case <-time.After(p.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	inquiryID, err := newInquiryID()
	if err != nil {
		return nil, err
	}

	email := strings.ToLower(req.Email)

	if strings.Contains(email, "fail") || strings.Contains(email, "reject") {
		return &Result{
			Status:    VerdictFailed,
			Reasons:   []string{"Document verification failed"},
			InquiryID: inquiryID,
		}, nil
	}

	if strings.Contains(email, "review") || strings.Contains(email, "pending") {
		return &Result{
			Status:    VerdictPendingReview,
			Reasons:   []string{"Manual review required"},
			InquiryID: inquiryID,
		}, nil
	}

	// PEP and adverse-media screening on the applicant's name.
	var reasons []string
	fullName := strings.ToLower(strings.TrimSpace(req.FirstName + " " + req.LastName))
	if containsAny(fullName, "president", "minister", "politician") {
		reasons = append(reasons, "PEP status detected")
	}
	if containsAny(fullName, "criminal", "fraud", "scandal") {
		reasons = append(reasons, "Adverse media found")
	}
	if len(reasons) > 0 {
		return &Result{
			Status:    VerdictPendingReview,
			Reasons:   reasons,
			InquiryID: inquiryID,
		}, nil
	}

	return &Result{
		Status:    VerdictPassed,
		InquiryID: inquiryID,
	}, nil
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func newInquiryID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate inquiry id: %w", err)
	}
	return "inq_" + hex.EncodeToString(b), nil
}
