package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// GenerateAPIKey returns a new API key of the form <prefix><64 hex chars>.
func GenerateAPIKey(prefix string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return prefix + hex.EncodeToString(b), nil
}

// APIKeyPrefix extracts the lookup prefix (scheme plus first 8 hex chars)
// from a full API key.
func APIKeyPrefix(apiKey string) string {
	i := strings.Index(apiKey, "_")
	if i < 0 || len(apiKey) < i+9 {
		return apiKey
	}
	return apiKey[:i+9]
}

// GenerateWebhookSecret returns a signing secret of the form whsec_<32 hex chars>.
// The secret is shown to the organization exactly once, at creation.
func GenerateWebhookSecret() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate webhook secret: %w", err)
	}
	return "whsec_" + hex.EncodeToString(b), nil
}
