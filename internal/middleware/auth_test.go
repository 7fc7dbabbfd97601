package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rwaswift/compliance-api/internal/model"
	"github.com/rwaswift/compliance-api/pkg/auth"
)

type fakeOrgRepo struct {
	mu         sync.Mutex
	byPrefix   map[string]*model.Organization
	touched    int
	increments int
}

func newFakeOrgRepo(orgs ...*model.Organization) *fakeOrgRepo {
	r := &fakeOrgRepo{byPrefix: make(map[string]*model.Organization)}
	for _, org := range orgs {
		r.byPrefix[org.APIKeyPrefix] = org
	}
	return r
}

func (r *fakeOrgRepo) GetByAPIKeyPrefix(_ context.Context, prefix string) (*model.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	org, ok := r.byPrefix[prefix]
	if !ok {
		return nil, errors.New("organization not found")
	}
	cp := *org
	return &cp, nil
}

func (r *fakeOrgRepo) Get(context.Context, uuid.UUID) (*model.Organization, error) {
	return nil, errors.New("organization not found")
}

func (r *fakeOrgRepo) TouchLastUsed(_ context.Context, _ uuid.UUID, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touched++
	return nil
}

func (r *fakeOrgRepo) IncrementUsage(_ context.Context, _ uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.increments++
	return nil
}

func (r *fakeOrgRepo) counts() (touched, increments int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.touched, r.increments
}

// plainHasher compares secrets verbatim so tests skip the bcrypt cost.
type plainHasher struct{}

func (plainHasher) Hash(secret string) (string, error) { return secret, nil }

func (plainHasher) Compare(hashed, secret string) error {
	if hashed != secret {
		return errors.New("secret mismatch")
	}
	return nil
}

func testOrg(apiKey string) *model.Organization {
	return &model.Organization{
		ID:            uuid.New(),
		Name:          "Test Fund",
		APIKeyPrefix:  apiKey[:13],
		APISecretHash: apiKey,
		IsActive:      true,
		MonthlyLimit:  1000,
	}
}

func authRouter(orgs *fakeOrgRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	m := NewAuthMiddleware(orgs, plainHasher{}, auth.NewJWTService("test-secret", time.Hour))
	r := gin.New()
	r.GET("/protected", m.AuthenticateAPIKey(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func doRequest(r *gin.Engine, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if apiKey != "" {
		req.Header.Set(HeaderAPIKey, apiKey)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "error", body.Status)
	return body.Message
}

func TestAuthenticateAPIKeyMissing(t *testing.T) {
	r := authRouter(newFakeOrgRepo())

	w := doRequest(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "missing API key", errorMessage(t, w))
}

func TestAuthenticateAPIKeyInvalid(t *testing.T) {
	apiKey := "rwas_00112233445566778899aabbccddeeff"
	r := authRouter(newFakeOrgRepo(testOrg(apiKey)))

	w := doRequest(r, "rwas_99887766554433221100ffeeddccbbaa")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid API key", errorMessage(t, w))
}

func TestAuthenticateAPIKeyInactiveOrganization(t *testing.T) {
	apiKey := "rwas_00112233445566778899aabbccddeeff"
	org := testOrg(apiKey)
	org.IsActive = false
	r := authRouter(newFakeOrgRepo(org))

	w := doRequest(r, apiKey)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "organization is deactivated", errorMessage(t, w))
}

func TestAuthenticateAPIKeyOverLimit(t *testing.T) {
	apiKey := "rwas_00112233445566778899aabbccddeeff"
	org := testOrg(apiKey)
	org.MonthlyLimit = 100
	org.MonthlyUsage = 100
	r := authRouter(newFakeOrgRepo(org))

	w := doRequest(r, apiKey)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "monthly verification limit of 100 reached", errorMessage(t, w))
}

func TestAuthenticateAPIKeyDoesNotConsumeQuota(t *testing.T) {
	apiKey := "rwas_00112233445566778899aabbccddeeff"
	orgs := newFakeOrgRepo(testOrg(apiKey))
	r := authRouter(orgs)

	for i := 0; i < 3; i++ {
		w := doRequest(r, apiKey)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	// last_used_at bookkeeping is async; quota stays untouched no matter
	// how many requests authenticate.
	require.Eventually(t, func() bool {
		touched, _ := orgs.counts()
		return touched == 3
	}, 5*time.Second, 10*time.Millisecond)
	_, increments := orgs.counts()
	assert.Equal(t, 0, increments)
}
