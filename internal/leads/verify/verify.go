// Package verify authenticates inbound provider callbacks.
package verify

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance bounds clock skew for timestamped signatures.
const DefaultTolerance = 5 * time.Minute

// ErrInvalidSignature is returned for every verification failure. Callers
// must not tell the sender which part failed.
var ErrInvalidSignature = errors.New("invalid signature")

// Sign returns the lowercase hex HMAC-SHA256 of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignTimestamped signs timestamp + "." + body.
func SignTimestamped(secret, timestamp string, body []byte) string {
	return Sign(secret, timestampedMessage(timestamp, body))
}

// HMACSHA256 checks a hex signature, optionally prefixed "sha256=".
func HMACSHA256(secret string, body []byte, signature string) error {
	if secret == "" {
		return ErrInvalidSignature
	}
	provided, err := decodeSignature(signature)
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), provided) {
		return ErrInvalidSignature
	}
	return nil
}

// TimestampedHMAC checks a signature over timestamp + "." + body where
// timestamp is unix seconds within tolerance of now.
func TimestampedHMAC(secret, timestamp string, body []byte, signature string, now time.Time, tolerance time.Duration) error {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	sec, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	skew := now.Sub(time.Unix(sec, 0))
	if skew > tolerance || skew < -tolerance {
		return ErrInvalidSignature
	}
	return HMACSHA256(secret, timestampedMessage(timestamp, body), signature)
}

// SharedSecret compares a static secret in constant time.
func SharedSecret(expected, provided string) error {
	if expected == "" || provided == "" {
		return ErrInvalidSignature
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

func timestampedMessage(timestamp string, body []byte) []byte {
	msg := make([]byte, 0, len(timestamp)+1+len(body))
	msg = append(msg, strings.TrimSpace(timestamp)...)
	msg = append(msg, '.')
	return append(msg, body...)
}

func decodeSignature(signature string) ([]byte, error) {
	signature = strings.TrimSpace(signature)
	if len(signature) > 7 && strings.EqualFold(signature[:7], "sha256=") {
		signature = signature[7:]
	}
	if signature == "" {
		return nil, ErrInvalidSignature
	}
	return hex.DecodeString(strings.ToLower(signature))
}
