package email

import (
	"context"

	"github.com/rwaswift/compliance-api/internal/model"
)

type Service interface {
	SendVerificationStarted(ctx context.Context, v *model.Verification) error
	SendVerificationCompleted(ctx context.Context, v *model.Verification) error
	SendCustom(ctx context.Context, to string, subject string, content string) error
}
