package provider

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProviderVerdicts(t *testing.T) {
	p := NewMockProvider(0)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     Request
		status  VerdictStatus
		reasons []string
	}{
		{
			name:   "clean identity passes",
			req:    Request{Email: "investor@example.com", FirstName: "Jane", LastName: "Doe"},
			status: VerdictPassed,
		},
		{
			name:    "fail pattern",
			req:     Request{Email: "will.fail@example.com"},
			status:  VerdictFailed,
			reasons: []string{"Document verification failed"},
		},
		{
			name:    "reject pattern",
			req:     Request{Email: "reject.me@example.com"},
			status:  VerdictFailed,
			reasons: []string{"Document verification failed"},
		},
		{
			name:    "review pattern",
			req:     Request{Email: "needs.review@example.com"},
			status:  VerdictPendingReview,
			reasons: []string{"Manual review required"},
		},
		{
			name:    "pep name",
			req:     Request{Email: "investor@example.com", FirstName: "Prime", LastName: "Minister"},
			status:  VerdictPendingReview,
			reasons: []string{"PEP status detected"},
		},
		{
			name:    "adverse media name",
			req:     Request{Email: "investor@example.com", FirstName: "Known", LastName: "Fraudster"},
			status:  VerdictPendingReview,
			reasons: []string{"Adverse media found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := p.Verify(ctx, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.reasons, res.Reasons)
			assert.True(t, strings.HasPrefix(res.InquiryID, "inq_"))
			assert.Len(t, res.InquiryID, len("inq_")+32)
		})
	}
}

func TestMockProviderCancelledContext(t *testing.T) {
	p := NewMockProvider(DefaultMockLatency)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Verify(ctx, Request{Email: "investor@example.com"})
	assert.ErrorIs(t, err, context.Canceled)
}
