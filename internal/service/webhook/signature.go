package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Wire headers. These are part of the published integration contract and
// must not change without a version bump.
const (
	HeaderSignature  = "X-RWAswift-Signature"
	HeaderDeliveryID = "X-RWAswift-Delivery-ID"
	HeaderEvent      = "X-RWAswift-Event"

	userAgent = "RWAswift-Webhook/1.0"

	signaturePrefix = "sha256="
)

// Sign computes the hex HMAC-SHA256 of the exact payload bytes that go on
// the wire. Subscribers recompute it over the raw request body.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader renders the header value for a signed payload.
func SignatureHeader(payload []byte, secret string) string {
	return signaturePrefix + Sign(payload, secret)
}

// VerifySignature checks a received hex signature in constant time.
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
