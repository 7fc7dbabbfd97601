package webhook

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignDeterministic(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"verification.completed"}`)
	secret := "whsec_00112233445566778899aabbccddeeff"

	first := Sign(payload, secret)
	second := Sign(payload, secret)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
	assert.Equal(t, strings.ToLower(first), first)
}

func TestSignSensitivity(t *testing.T) {
	payload := []byte(`{"amount":100}`)
	secret := "whsec_00112233445566778899aabbccddeeff"
	base := Sign(payload, secret)

	t.Run("payload byte change", func(t *testing.T) {
		tampered := []byte(`{"amount":101}`)
		assert.NotEqual(t, base, Sign(tampered, secret))
	})

	t.Run("different secret", func(t *testing.T) {
		assert.NotEqual(t, base, Sign(payload, "whsec_ffeeddccbbaa99887766554433221100"))
	})
}

func TestSignatureHeader(t *testing.T) {
	payload := []byte(`{}`)
	secret := "whsec_abc"

	header := SignatureHeader(payload, secret)
	require.True(t, strings.HasPrefix(header, "sha256="))
	assert.Equal(t, "sha256="+Sign(payload, secret), header)
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	secret := "whsec_00112233445566778899aabbccddeeff"
	sig := Sign(payload, secret)

	assert.True(t, VerifySignature(payload, sig, secret))
	assert.False(t, VerifySignature(payload, sig, "whsec_other"))
	assert.False(t, VerifySignature([]byte(`{"id":"evt_2"}`), sig, secret))
	assert.False(t, VerifySignature(payload, "", secret))
}
