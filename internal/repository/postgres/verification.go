package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rwaswift/compliance-api/internal/model"
	"github.com/rwaswift/compliance-api/internal/repository"
)

// ErrNotFound is returned when an org-scoped lookup matches no row.
var ErrNotFound = errors.New("record not found")

type verificationRepository struct {
	db *sqlx.DB
}

func NewVerificationRepository(db *sqlx.DB) repository.VerificationRepository {
	return &verificationRepository{db: db}
}

func (r *verificationRepository) Create(ctx context.Context, v *model.Verification) error {
	query := `
		INSERT INTO verifications (
			id, organization_id, investor_email, investor_first_name, investor_last_name,
			investor_country, investor_ip_address, status, decision_made_by, risk_reasons,
			webhook_delivered, webhook_attempts, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`
	v.CreatedAt = time.Now()
	v.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		v.ID,
		v.OrganizationID,
		v.InvestorEmail,
		v.InvestorFirstName,
		v.InvestorLastName,
		v.InvestorCountry,
		v.InvestorIPAddress,
		v.Status,
		v.DecisionMadeBy,
		v.RiskReasons,
		v.WebhookDelivered,
		v.WebhookAttempts,
		v.CreatedAt,
		v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create verification: %w", err)
	}
	return nil
}

func (r *verificationRepository) Get(ctx context.Context, id, orgID uuid.UUID) (*model.Verification, error) {
	query := `SELECT * FROM verifications WHERE id = $1 AND organization_id = $2`
	var v model.Verification
	err := r.db.GetContext(ctx, &v, query, id, orgID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get verification: %w", err)
	}
	return &v, nil
}

func (r *verificationRepository) Update(ctx context.Context, v *model.Verification) error {
	query := `
		UPDATE verifications SET
			status = $1, decision = $2, decision_reason = $3, decision_made_at = $4,
			risk_score = $5, risk_level = $6, risk_reasons = $7,
			provider_inquiry_id = $8, provider_status = $9,
			processing_started_at = $10, processing_completed_at = $11, processing_time_ms = $12,
			webhook_delivered = $13, webhook_attempts = $14, updated_at = $15
		WHERE id = $16
	`
	v.UpdatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, query,
		v.Status,
		v.Decision,
		v.DecisionReason,
		v.DecisionMadeAt,
		v.RiskScore,
		v.RiskLevel,
		v.RiskReasons,
		v.ProviderInquiryID,
		v.ProviderStatus,
		v.ProcessingStartedAt,
		v.ProcessingCompletedAt,
		v.ProcessingTimeMs,
		v.WebhookDelivered,
		v.WebhookAttempts,
		v.UpdatedAt,
		v.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update verification: %w", err)
	}
	return nil
}

func (r *verificationRepository) List(ctx context.Context, orgID uuid.UUID, filter *model.VerificationFilter) ([]*model.Verification, int64, error) {
	where := []string{"organization_id = $1"}
	args := []interface{}{orgID}

	add := func(clause string, value interface{}) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Email != "" {
		add("investor_email ILIKE '%%' || $%d || '%%'", strings.ToLower(filter.Email))
	}
	if filter.Country != "" {
		add("investor_country = $%d", filter.Country)
	}
	if filter.Decision != "" {
		add("decision = $%d", filter.Decision)
	}

	whereSQL := strings.Join(where, " AND ")

	var total int64
	countQuery := "SELECT COUNT(*) FROM verifications WHERE " + whereSQL
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count verifications: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(
		"SELECT * FROM verifications WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		whereSQL, len(args)-1, len(args),
	)

	var verifications []*model.Verification
	if err := r.db.SelectContext(ctx, &verifications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list verifications: %w", err)
	}
	return verifications, total, nil
}

func (r *verificationRepository) ListRecentByOrg(ctx context.Context, orgID uuid.UUID, since time.Time) ([]*model.Verification, error) {
	query := `
		SELECT * FROM verifications
		WHERE organization_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`
	var verifications []*model.Verification
	err := r.db.SelectContext(ctx, &verifications, query, orgID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent verifications: %w", err)
	}
	return verifications, nil
}

func (r *verificationRepository) Stats(ctx context.Context, orgID uuid.UUID) (*model.VerificationStats, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE decision = 'approved') AS approved,
			COUNT(*) FILTER (WHERE decision = 'rejected') AS rejected,
			COUNT(*) FILTER (WHERE status IN ('pending', 'processing')) AS pending,
			COUNT(*) FILTER (WHERE risk_level = 'low') AS risk_low,
			COUNT(*) FILTER (WHERE risk_level = 'medium') AS risk_medium,
			COUNT(*) FILTER (WHERE risk_level = 'high') AS risk_high,
			AVG(processing_time_ms) FILTER (WHERE processing_time_ms IS NOT NULL) AS avg_processing_ms
		FROM verifications
		WHERE organization_id = $1
	`
	var row struct {
		Total           int64    `db:"total"`
		Approved        int64    `db:"approved"`
		Rejected        int64    `db:"rejected"`
		Pending         int64    `db:"pending"`
		RiskLow         int      `db:"risk_low"`
		RiskMedium      int      `db:"risk_medium"`
		RiskHigh        int      `db:"risk_high"`
		AvgProcessingMs *float64 `db:"avg_processing_ms"`
	}
	if err := r.db.GetContext(ctx, &row, query, orgID); err != nil {
		return nil, fmt.Errorf("failed to get verification stats: %w", err)
	}

	stats := &model.VerificationStats{
		Total:    row.Total,
		Approved: row.Approved,
		Rejected: row.Rejected,
		Pending:  row.Pending,
		RiskDistribution: map[string]int{
			"low":    row.RiskLow,
			"medium": row.RiskMedium,
			"high":   row.RiskHigh,
		},
	}
	if decided := row.Approved + row.Rejected; decided > 0 {
		rate := int(row.Approved * 100 / decided)
		stats.ApprovalRate = &rate
	}
	if row.AvgProcessingMs != nil {
		avg := int64(*row.AvgProcessingMs)
		stats.AvgProcessingMs = &avg
	}
	return stats, nil
}
