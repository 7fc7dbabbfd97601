package email

import (
	"context"

	"github.com/rwaswift/compliance-api/internal/model"
)

type noopService struct{}

// NewNoopService is used when email delivery is disabled.
func NewNoopService() Service {
	return noopService{}
}

func (noopService) SendVerificationStarted(context.Context, *model.Verification) error { return nil }

func (noopService) SendVerificationCompleted(context.Context, *model.Verification) error {
	return nil
}

func (noopService) SendCustom(context.Context, string, string, string) error { return nil }
