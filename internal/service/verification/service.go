package verification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rwaswift/compliance-api/internal/email"
	"github.com/rwaswift/compliance-api/internal/model"
	"github.com/rwaswift/compliance-api/internal/repository"
	"github.com/rwaswift/compliance-api/internal/service/provider"
	"github.com/rwaswift/compliance-api/internal/service/risk"
	"github.com/rwaswift/compliance-api/internal/service/webhook"
	apperrors "github.com/rwaswift/compliance-api/pkg/errors"
	"github.com/rwaswift/compliance-api/pkg/logger"
	"github.com/rwaswift/compliance-api/pkg/messaging"
	"github.com/rwaswift/compliance-api/pkg/metrics"
)

const (
	reasonApproved        = "All verification checks passed"
	reasonHighRisk        = "High risk indicators detected"
	reasonProcessingError = "Processing error"

	decisionMadeBySystem = "system"

	velocityWindow        = 24 * time.Hour
	providerTimeout       = 30 * time.Second
	defaultProcessTimeout = 2 * time.Minute
)

// Options toggles optional pipeline stages.
type Options struct {
	ProviderEnabled bool
	WebhooksEnabled bool
	EmailEnabled    bool
}

// Service orchestrates the verification lifecycle from intake to decision.
type Service struct {
	verifications repository.VerificationRepository
	orgs          repository.OrganizationRepository
	provider      provider.Provider
	riskEngine    *risk.Engine
	deliverer     *webhook.Deliverer
	emails        email.Service
	publisher     messaging.Publisher
	logger        *logger.Logger
	metrics       *metrics.Metrics
	opts          Options

	processTimeout time.Duration
}

func NewService(
	verifications repository.VerificationRepository,
	orgs repository.OrganizationRepository,
	idProvider provider.Provider,
	riskEngine *risk.Engine,
	deliverer *webhook.Deliverer,
	emails email.Service,
	publisher messaging.Publisher,
	log *logger.Logger,
	m *metrics.Metrics,
	opts Options,
) *Service {
	return &Service{
		verifications:  verifications,
		orgs:           orgs,
		provider:       idProvider,
		riskEngine:     riskEngine,
		deliverer:      deliverer,
		emails:         emails,
		publisher:      publisher,
		logger:         log,
		metrics:        m,
		opts:           opts,
		processTimeout: defaultProcessTimeout,
	}
}

// Create persists a pending verification and kicks off processing in the
// background. The caller gets the pending record immediately and polls for
// the decision.
func (s *Service) Create(ctx context.Context, orgID uuid.UUID, req *model.CreateVerificationRequest) (*model.Verification, error) {
	v := &model.Verification{
		ID:                uuid.New(),
		OrganizationID:    orgID,
		InvestorEmail:     strings.ToLower(strings.TrimSpace(req.Email)),
		InvestorFirstName: req.FirstName,
		InvestorLastName:  req.LastName,
		Status:            model.VerificationStatusPending,
		DecisionMadeBy:    decisionMadeBySystem,
		RiskReasons:       model.StringList{},
	}
	if req.Country != nil {
		country := strings.ToUpper(*req.Country)
		v.InvestorCountry = &country
	}
	if ip := clientIP(ctx); ip != "" {
		v.InvestorIPAddress = &ip
	}

	if err := s.verifications.Create(ctx, v); err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to create verification: %w", err))
	}
	s.metrics.VerificationsCreated.Inc()

	// Usage is counted per verification, not per API call; the quota check
	// itself happens in the auth middleware.
	if s.orgs != nil {
		if err := s.orgs.IncrementUsage(ctx, orgID); err != nil {
			s.logger.Warn("failed to record monthly usage", "organization_id", orgID.String())
		}
	}

	if s.opts.EmailEnabled {
		if err := s.emails.SendVerificationStarted(ctx, v); err != nil {
			s.logger.Warn("failed to send started email", "verification_id", v.ID.String())
		}
	}

	go s.process(v.ID, v.OrganizationID, req.DateOfBirth)

	s.logger.Info("verification created",
		"verification_id", v.ID.String(),
		"organization_id", orgID.String(),
	)
	return v, nil
}

// process runs the decision pipeline for one verification. Detached from
// the request: it owns its context and never touches the same record as
// another run.
func (s *Service) process(id, orgID uuid.UUID, dateOfBirth *string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.processTimeout)
	defer cancel()

	// The failure marker is written without the pipeline deadline: when the
	// run died on that deadline, the record must still reach a terminal
	// state.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(fmt.Errorf("panic: %v", r), "verification processing panicked",
				"verification_id", id.String())
			s.markFailed(context.WithoutCancel(ctx), id, orgID)
		}
	}()

	if err := s.run(ctx, id, orgID, dateOfBirth); err != nil {
		s.logger.Error(err, "verification processing failed", "verification_id", id.String())
		s.markFailed(context.WithoutCancel(ctx), id, orgID)
	}
}

func (s *Service) run(ctx context.Context, id, orgID uuid.UUID, dateOfBirth *string) error {
	v, err := s.verifications.Get(ctx, id, orgID)
	if err != nil {
		// The record vanished between creation and processing; the client
		// already has its response, nothing to do.
		s.logger.Warn("verification not found for processing", "verification_id", id.String())
		return nil
	}

	started := time.Now()
	v.Status = model.VerificationStatusProcessing
	v.ProcessingStartedAt = &started
	if err := s.verifications.Update(ctx, v); err != nil {
		return fmt.Errorf("failed to mark processing: %w", err)
	}

	identityPassed := true
	var providerReasons []string
	if s.opts.ProviderEnabled {
		result, err := s.callProvider(ctx, v, dateOfBirth)
		if err != nil {
			return fmt.Errorf("provider call failed: %w", err)
		}
		identityPassed = result.Passed()
		providerReasons = result.Reasons
		status := string(result.Status)
		v.ProviderStatus = &status
		if result.InquiryID != "" {
			v.ProviderInquiryID = &result.InquiryID
		}
	}

	recent, err := s.verifications.ListRecentByOrg(ctx, orgID, started.Add(-velocityWindow))
	if err != nil {
		return fmt.Errorf("failed to load velocity context: %w", err)
	}
	// The record under decision does not count against itself.
	recent = excludeID(recent, v.ID)

	assessment := s.riskEngine.Score(risk.Input{
		Email:               v.InvestorEmail,
		Country:             deref(v.InvestorCountry),
		IPAddress:           deref(v.InvestorIPAddress),
		Now:                 started,
		RecentVerifications: recent,
	})
	s.metrics.RiskScores.Observe(float64(assessment.Score))

	isApproved := identityPassed && assessment.ShouldApprove

	now := time.Now()
	elapsed := now.Sub(started).Milliseconds()
	score := assessment.Score
	level := assessment.Level

	v.RiskScore = &score
	v.RiskLevel = &level
	v.RiskReasons = model.StringList(assessment.Factors)
	v.DecisionMadeAt = &now
	v.ProcessingCompletedAt = &now
	v.ProcessingTimeMs = &elapsed

	if isApproved {
		v.Status = model.VerificationStatusApproved
		decision := model.DecisionApproved
		v.Decision = &decision
		reason := reasonApproved
		v.DecisionReason = &reason
	} else {
		v.Status = model.VerificationStatusRejected
		decision := model.DecisionRejected
		v.Decision = &decision
		reason := rejectionReason(providerReasons, assessment.Factors)
		v.DecisionReason = &reason
	}

	if err := s.verifications.Update(ctx, v); err != nil {
		return fmt.Errorf("failed to persist decision: %w", err)
	}
	s.metrics.VerificationsCompleted.WithLabelValues(string(v.Status)).Inc()
	s.metrics.ProcessingDuration.Observe(now.Sub(started).Seconds())

	s.notify(ctx, v)

	s.logger.Info("verification decided",
		"verification_id", v.ID.String(),
		"status", string(v.Status),
		"risk_score", score,
		"risk_level", string(level),
		"processing_ms", elapsed,
	)
	return nil
}

func (s *Service) callProvider(ctx context.Context, v *model.Verification, dateOfBirth *string) (*provider.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	return s.provider.Verify(ctx, provider.Request{
		Email:       v.InvestorEmail,
		FirstName:   deref(v.InvestorFirstName),
		LastName:    deref(v.InvestorLastName),
		Country:     deref(v.InvestorCountry),
		DateOfBirth: deref(dateOfBirth),
	})
}

// notify fans the completion out to webhooks and the event channel. The
// completion email is sent by the worker consuming the event stream. All
// of it is best-effort; failures are logged and never change the decision.
func (s *Service) notify(ctx context.Context, v *model.Verification) {
	if s.opts.WebhooksEnabled {
		event := webhook.NewVerificationCompletedEvent(v)
		summary, err := s.deliverer.DispatchVerificationEvent(ctx, v.OrganizationID, event)
		if err != nil {
			s.logger.Error(err, "webhook dispatch failed", "verification_id", v.ID.String())
		} else if summary.Attempted > 0 {
			v.WebhookDelivered = summary.Delivered > 0
			v.WebhookAttempts = summary.Attempted
			if err := s.verifications.Update(ctx, v); err != nil {
				s.logger.Warn("failed to record webhook bookkeeping", "verification_id", v.ID.String())
			}
		}
	}

	if s.publisher != nil {
		msg := messaging.Message{Type: model.EventVerificationCompleted, Payload: v}
		if err := s.publisher.Publish(ctx, messaging.ChannelVerificationEvents, msg); err != nil {
			s.logger.Warn("failed to publish verification event", "verification_id", v.ID.String())
		}
	}
}

func (s *Service) markFailed(ctx context.Context, id, orgID uuid.UUID) {
	v, err := s.verifications.Get(ctx, id, orgID)
	if err != nil {
		return
	}
	if v.Status.Terminal() {
		return
	}

	now := time.Now()
	reason := reasonProcessingError
	v.Status = model.VerificationStatusFailed
	v.DecisionReason = &reason
	v.ProcessingCompletedAt = &now
	if v.ProcessingStartedAt != nil {
		elapsed := now.Sub(*v.ProcessingStartedAt).Milliseconds()
		v.ProcessingTimeMs = &elapsed
	}
	if err := s.verifications.Update(ctx, v); err != nil {
		s.logger.Error(err, "failed to mark verification failed", "verification_id", id.String())
		return
	}
	s.metrics.VerificationsCompleted.WithLabelValues(string(model.VerificationStatusFailed)).Inc()
}

// Get returns one verification, org-scoped.
func (s *Service) Get(ctx context.Context, id, orgID uuid.UUID) (*model.Verification, error) {
	v, err := s.verifications.Get(ctx, id, orgID)
	if err != nil {
		return nil, apperrors.NotFound("verification", err)
	}
	return v, nil
}

// List returns the organization's verifications, filtered and paginated.
func (s *Service) List(ctx context.Context, orgID uuid.UUID, filter *model.VerificationFilter) ([]*model.Verification, int64, error) {
	filter.Normalize()
	verifications, total, err := s.verifications.List(ctx, orgID, filter)
	if err != nil {
		return nil, 0, apperrors.Internal(fmt.Errorf("failed to list verifications: %w", err))
	}
	return verifications, total, nil
}

// Stats aggregates the organization's verification history.
func (s *Service) Stats(ctx context.Context, orgID uuid.UUID) (*model.VerificationStats, error) {
	stats, err := s.verifications.Stats(ctx, orgID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to get stats: %w", err))
	}
	return stats, nil
}

// rejectionReason joins provider failure reasons with risk factors;
// both empty falls back to a generic message.
func rejectionReason(providerReasons, riskFactors []string) string {
	parts := make([]string, 0, len(providerReasons)+len(riskFactors))
	parts = append(parts, providerReasons...)
	parts = append(parts, riskFactors...)
	if len(parts) == 0 {
		return reasonHighRisk
	}
	return strings.Join(parts, "; ")
}

func excludeID(list []*model.Verification, id uuid.UUID) []*model.Verification {
	out := list[:0]
	for _, v := range list {
		if v.ID != id {
			out = append(out, v)
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type contextKey string

const clientIPKey contextKey = "client_ip"

// WithClientIP stashes the request's source address for the intake record.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

func clientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
