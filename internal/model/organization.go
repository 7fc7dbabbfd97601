package model

import (
	"time"

	"github.com/google/uuid"
)

// Organization is the API tenant. Credential management lives outside this
// service; the record is consumed read-only for authentication and scoping.
type Organization struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	Name          string     `json:"name" db:"name"`
	APIKeyPrefix  string     `json:"api_key_prefix" db:"api_key_prefix"`
	APISecretHash string     `json:"-" db:"api_secret_hash"`
	IsActive      bool       `json:"is_active" db:"is_active"`
	MonthlyUsage  int        `json:"monthly_usage" db:"monthly_usage"`
	MonthlyLimit  int        `json:"monthly_limit" db:"monthly_limit"`
	LastUsedAt    *time.Time `json:"last_used_at" db:"last_used_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}
