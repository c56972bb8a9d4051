package worker

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Webhook request headers.
const (
	HeaderSignature = "X-LK-Signature"
	HeaderEvent     = "X-LK-Event"
	HeaderTimestamp = "X-LK-Timestamp"
)

// Sign returns the hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the signature over the exact raw body and
// compares in constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}
