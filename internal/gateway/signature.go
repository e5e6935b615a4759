package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrUnauthorized covers a bad or missing event signature and approval
// attempts by non-collaborators. Rejections carry no side effects.
var ErrUnauthorized = errors.New("unauthorized")

// SignatureHeader is the header carrying the event MAC, GitHub-webhook style.
const SignatureHeader = "X-Hub-Signature-256"

// Sign computes the signature value for a raw payload. Exposed for tests and
// for local tooling that replays events.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an HMAC-SHA256 over the raw body. The comparison is
// constant time; any mismatch, bad encoding or missing header is
// ErrUnauthorized.
func VerifySignature(secret, body []byte, header string) error {
	value, found := strings.CutPrefix(header, "sha256=")
	if !found {
		return ErrUnauthorized
	}
	got, err := hex.DecodeString(value)
	if err != nil {
		return ErrUnauthorized
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrUnauthorized
	}
	return nil
}
