package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rwaswift/compliance-api/internal/model"
	"github.com/rwaswift/compliance-api/internal/repository"
)

type organizationRepository struct {
	db *sqlx.DB
}

func NewOrganizationRepository(db *sqlx.DB) repository.OrganizationRepository {
	return &organizationRepository{db: db}
}

func (r *organizationRepository) GetByAPIKeyPrefix(ctx context.Context, prefix string) (*model.Organization, error) {
	query := `SELECT * FROM organizations WHERE api_key_prefix = $1`
	var org model.Organization
	err := r.db.GetContext(ctx, &org, query, prefix)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return &org, nil
}

func (r *organizationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Organization, error) {
	query := `SELECT * FROM organizations WHERE id = $1`
	var org model.Organization
	err := r.db.GetContext(ctx, &org, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return &org, nil
}

func (r *organizationRepository) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE organizations SET last_used_at = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, at, id)
	return err
}

func (r *organizationRepository) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE organizations SET monthly_usage = monthly_usage + 1 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}
