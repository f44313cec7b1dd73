package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// HMACAuth holds the credentials for HMAC-authenticated venue REST requests.
type HMACAuth struct {
	Key    string // API key
	Secret string // API secret (raw or base64-encoded)
}

// RequestHeaders returns the HTTP headers for a signed venue request. The
// signature is HMAC-SHA256(secret, timestamp+method+path+body) encoded as
// base64. Venues that issue base64 secrets get the decoded bytes as the
// HMAC key.
//
// Returned header keys:
//   - X-CA-API-KEY
//   - X-CA-TIMESTAMP
//   - X-CA-SIGNATURE
func (h *HMACAuth) RequestHeaders(method, path, body string) map[string]string {
	return h.RequestHeadersAt(method, path, body, time.Now().Unix())
}

// RequestHeadersAt is like RequestHeaders but lets the caller supply the
// Unix timestamp (useful for deterministic testing).
func (h *HMACAuth) RequestHeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)

	secretBytes, err := base64.StdEncoding.DecodeString(h.Secret)
	if err != nil {
		// Not base64: use the raw bytes.
		secretBytes = []byte(h.Secret)
	}

	message := ts + method + path + body
	sig := hmacSHA256Base64(secretBytes, message)

	return map[string]string{
		"X-CA-API-KEY":   h.Key,
		"X-CA-TIMESTAMP": ts,
		"X-CA-SIGNATURE": sig,
	}
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
