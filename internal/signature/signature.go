// Package signature implements the webhook payload MAC: hex-encoded
// HMAC-SHA256 over the exact bytes of the request body.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the signature carried in X-Webhook-Signature. The body must
// be the exact bytes that go on the wire; any re-serialization between
// signing and sending invalidates the signature.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature against the body in constant time.
// Receivers should verify before trusting X-Webhook-ID for idempotency.
func Verify(secret string, body []byte, signatureHex string) bool {
	want := Sign(secret, body)
	return hmac.Equal([]byte(signatureHex), []byte(want))
}
