package verify

import (
	"net/http"
	"time"
)

// Header names used by the supported providers.
const (
	HeaderWebhookSignature = "X-Webhook-Signature"
	HeaderWebhookTimestamp = "X-Webhook-Timestamp"
	HeaderTelegramSecret   = "X-Telegram-Bot-Api-Secret-Token"
	HeaderHubSignature     = "X-Hub-Signature-256"
	HeaderYandexSecret     = "X-Yandex-Secret"
)

// Webhook verifies a generic inbound webhook. An integration without a secret
// is authenticated by its token alone. A non-positive tolerance means
// DefaultTolerance.
func Webhook(secret string, r *http.Request, body []byte, now time.Time, tolerance time.Duration) error {
	if secret == "" {
		return nil
	}
	signature := r.Header.Get(HeaderWebhookSignature)
	if ts := r.Header.Get(HeaderWebhookTimestamp); ts != "" {
		return TimestampedHMAC(secret, ts, body, signature, now, tolerance)
	}
	return HMACSHA256(secret, body, signature)
}

// Telegram checks the secret token Telegram echoes on every update.
func Telegram(secret string, r *http.Request) error {
	return SharedSecret(secret, r.Header.Get(HeaderTelegramSecret))
}

// WhatsApp checks the Meta app signature over the raw body.
func WhatsApp(appSecret string, r *http.Request, body []byte) error {
	return HMACSHA256(appSecret, body, r.Header.Get(HeaderHubSignature))
}

// YandexDirect accepts the shared secret from a header or the "secret" query
// parameter.
func YandexDirect(secret string, r *http.Request) error {
	provided := r.Header.Get(HeaderYandexSecret)
	if provided == "" {
		provided = r.URL.Query().Get("secret")
	}
	return SharedSecret(secret, provided)
}

// WhatsAppHandshake validates a subscription challenge and returns the value
// to echo.
func WhatsAppHandshake(verifyToken string, r *http.Request) (string, error) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" {
		return "", ErrInvalidSignature
	}
	if err := SharedSecret(verifyToken, q.Get("hub.verify_token")); err != nil {
		return "", err
	}
	return q.Get("hub.challenge"), nil
}
