package worker

import (
	"context"
	"encoding/json"

	"github.com/rwaswift/compliance-api/internal/email"
	"github.com/rwaswift/compliance-api/internal/model"
	"github.com/rwaswift/compliance-api/pkg/logger"
	"github.com/rwaswift/compliance-api/pkg/messaging"
)

// EmailNotifier consumes the verification event stream and sends investor
// completion emails.
type EmailNotifier struct {
	broker messaging.Broker
	emails email.Service
	logger *logger.Logger
}

func NewEmailNotifier(broker messaging.Broker, emails email.Service, log *logger.Logger) *EmailNotifier {
	return &EmailNotifier{
		broker: broker,
		emails: emails,
		logger: log,
	}
}

func (n *EmailNotifier) Start(ctx context.Context) error {
	messages, err := n.broker.Subscribe(ctx, messaging.ChannelVerificationEvents)
	if err != nil {
		return err
	}

	n.logger.Info("Starting email notifier")

	for {
		select {
		case <-ctx.Done():
			n.logger.Info("Shutting down email notifier")
			return nil
		case raw, ok := <-messages:
			if !ok {
				return nil
			}
			n.handle(ctx, raw)
		}
	}
}

func (n *EmailNotifier) handle(ctx context.Context, raw []byte) {
	var msg struct {
		Type    string             `json:"type"`
		Payload model.Verification `json:"payload"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		n.logger.Error(err, "failed to decode verification event")
		return
	}
	if msg.Type != model.EventVerificationCompleted {
		return
	}

	if err := n.emails.SendVerificationCompleted(ctx, &msg.Payload); err != nil {
		n.logger.Warn("failed to send completion email",
			"verification_id", msg.Payload.ID.String())
	}
}
