package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/rwaswift/compliance-api/internal/handler"
	"github.com/rwaswift/compliance-api/internal/model"
	"github.com/rwaswift/compliance-api/internal/repository"
	"github.com/rwaswift/compliance-api/pkg/auth"
	apperrors "github.com/rwaswift/compliance-api/pkg/errors"
	"github.com/rwaswift/compliance-api/pkg/security"
)

const (
	HeaderAPIKey = "X-API-Key"

	ContextOrganizationID = "organization_id"
	ContextOrganization   = "organization"

	orgCacheTTL     = 30 * time.Second
	orgCacheCleanup = time.Minute
)

type AuthMiddleware struct {
	orgs   repository.OrganizationRepository
	hasher security.SecretHasher
	jwt    auth.JWTService

	// Caches verified API keys so the bcrypt compare and org lookup are
	// not paid on every request.
	cache *gocache.Cache
}

func NewAuthMiddleware(orgs repository.OrganizationRepository, hasher security.SecretHasher, jwtSvc auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{
		orgs:   orgs,
		hasher: hasher,
		jwt:    jwtSvc,
		cache:  gocache.New(orgCacheTTL, orgCacheCleanup),
	}
}

// AuthenticateAPIKey resolves the X-API-Key header to an organization and
// stores it in the request context.
func (m *AuthMiddleware) AuthenticateAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(HeaderAPIKey)
		if apiKey == "" {
			abort(c, apperrors.Unauthorized("missing API key"))
			return
		}

		org, err := m.resolve(c, apiKey)
		if err != nil {
			abort(c, apperrors.Unauthorized("invalid API key"))
			return
		}
		if !org.IsActive {
			abort(c, apperrors.Forbidden("organization is deactivated"))
			return
		}
		if org.MonthlyLimit > 0 && org.MonthlyUsage >= org.MonthlyLimit {
			abort(c, apperrors.UsageLimitExceeded(org.MonthlyLimit))
			return
		}

		go m.orgs.TouchLastUsed(context.Background(), org.ID, time.Now())

		c.Set(ContextOrganizationID, org.ID.String())
		c.Set(ContextOrganization, org)
		c.Next()
	}
}

func (m *AuthMiddleware) resolve(c *gin.Context, apiKey string) (*model.Organization, error) {
	if cached, ok := m.cache.Get(apiKey); ok {
		return cached.(*model.Organization), nil
	}

	prefix := security.APIKeyPrefix(apiKey)
	org, err := m.orgs.GetByAPIKeyPrefix(c.Request.Context(), prefix)
	if err != nil {
		return nil, err
	}
	if err := m.hasher.Compare(org.APISecretHash, apiKey); err != nil {
		return nil, err
	}

	m.cache.Set(apiKey, org, orgCacheTTL)
	return org, nil
}

// AuthenticateJWT accepts a Bearer token issued for dashboard sessions.
func (m *AuthMiddleware) AuthenticateJWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abort(c, apperrors.Unauthorized("missing authorization header"))
			return
		}

		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abort(c, apperrors.Unauthorized("invalid authorization format"))
			return
		}

		claims, err := m.jwt.ValidateToken(parts[1])
		if err != nil {
			abort(c, apperrors.Unauthorized("invalid token"))
			return
		}

		c.Set(ContextOrganizationID, claims.OrganizationID.String())
		c.Next()
	}
}

func abort(c *gin.Context, err *apperrors.AppError) {
	handler.Error(c, err)
	c.Abort()
}

// OrganizationID extracts the authenticated tenant from the gin context.
func OrganizationID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.GetString(ContextOrganizationID))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
