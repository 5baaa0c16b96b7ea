// Package signature implements HMAC-SHA256 signing of webhook payloads.
//
// Every delivery attempt carries an X-Webhook-Signature header of the form
// "sha256=<hex digest>" computed over the exact request body bytes with the
// subscription's secret. Subscribers recompute the digest and compare in
// constant time to authenticate the sender.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Prefix identifies the signature scheme in the header value.
const Prefix = "sha256="

// Sign computes the signature header value for a payload.
// The same secret and payload always produce the same signature.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return Prefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether the header value matches the payload signature.
// The comparison is constant time.
func Verify(secret string, payload []byte, header string) bool {
	digest, ok := strings.CutPrefix(header, Prefix)
	if !ok {
		return false
	}
	expected, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(expected, mac.Sum(nil))
}
