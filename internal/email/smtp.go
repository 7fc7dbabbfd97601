package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/rwaswift/compliance-api/internal/config"
	"github.com/rwaswift/compliance-api/internal/model"
	"github.com/rwaswift/compliance-api/pkg/logger"
)

type smtpService struct {
	dialer *gomail.Dialer
	from   string
	logger *logger.Logger
}

// NewSMTPService sends investor notifications over SMTP.
func NewSMTPService(cfg config.SMTPConfig, log *logger.Logger) Service {
	return &smtpService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: log,
	}
}

func (s *smtpService) SendVerificationStarted(ctx context.Context, v *model.Verification) error {
	body := fmt.Sprintf(
		"<p>Hello,</p><p>Your identity verification with reference <b>%s</b> has been received and is being processed. "+
			"You will be notified once a decision has been made.</p>",
		v.ID)
	return s.send(ctx, v.InvestorEmail, "Verification received", body)
}

func (s *smtpService) SendVerificationCompleted(ctx context.Context, v *model.Verification) error {
	outcome := "could not be completed"
	switch v.Status {
	case model.VerificationStatusApproved:
		outcome = "has been approved"
	case model.VerificationStatusRejected:
		outcome = "has been declined"
	}
	body := fmt.Sprintf(
		"<p>Hello,</p><p>Your identity verification with reference <b>%s</b> %s.</p>",
		v.ID, outcome)
	return s.send(ctx, v.InvestorEmail, "Verification update", body)
}

func (s *smtpService) SendCustom(ctx context.Context, to, subject, content string) error {
	return s.send(ctx, to, subject, content)
}

func (s *smtpService) send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	s.logger.Debug("email sent", "to", to, "subject", subject)
	return nil
}
