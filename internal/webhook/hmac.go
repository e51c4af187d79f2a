package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// verifySignature verifies a lowercase-hex HMAC-SHA256 signature against the
// raw request body.
//
// The HMAC key is the UTF-8 encoded secret exactly as the provider embeds it
// in the hook configuration: the full "<external_id>#<webhook_secret>"
// composite, not just the secret half.
//
// Comparison is constant-time (crypto/subtle) to prevent timing attacks.
// Returns false on any mismatch, including empty or malformed input; it
// never fails any other way.
func verifySignature(body []byte, secret, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}

	actualMAC, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expectedMAC := mac.Sum(nil)

	return subtle.ConstantTimeCompare(expectedMAC, actualMAC) == 1
}

// computeSignature returns the lowercase-hex HMAC-SHA256 of body keyed by
// secret. Used when registering hooks and by tests.
func computeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// constantTimeEquals compares two strings without leaking where they differ.
func constantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
