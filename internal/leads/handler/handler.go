// Package handler serves the unauthenticated inbound lead surfaces. Each
// integration is addressed by its opaque token.
package handler

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	integrationmodels "crmhub/internal/integration/models"
	"crmhub/internal/leads/idempotency"
	"crmhub/internal/leads/mapping"
	leadmetrics "crmhub/internal/leads/metrics"
	"crmhub/internal/leads/reconcile"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/platform/httputil"
	"crmhub/pkg/requestcontext"
)

type IntegrationResolver interface {
	ResolveToken(ctx context.Context, token string) (*integrationmodels.Integration, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, req reconcile.Request) (*reconcile.Result, error)
}

type KeyStore interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

const (
	statusOK        = "ok"
	statusDuplicate = "duplicate"
	statusIgnored   = "ignored"
)

type Handler struct {
	integrations IntegrationResolver
	reconciler   Reconciler
	keys         KeyStore
	keyTTL       time.Duration
	tolerance    time.Duration
	logger       *slog.Logger
	metrics      *leadmetrics.Metrics
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

func WithMetrics(m *leadmetrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithKeyTTL sets how long delivery ids are remembered.
func WithKeyTTL(ttl time.Duration) Option {
	return func(h *Handler) {
		if ttl > 0 {
			h.keyTTL = ttl
		}
	}
}

// WithSignatureTolerance bounds clock skew on timestamped webhook signatures.
func WithSignatureTolerance(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.tolerance = d
		}
	}
}

func New(integrations IntegrationResolver, reconciler Reconciler, keys KeyStore, opts ...Option) *Handler {
	h := &Handler{
		integrations: integrations,
		reconciler:   reconciler,
		keys:         keys,
		keyTTL:       idempotency.DefaultTTL,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.keys == nil {
		h.keys = idempotency.NewInMemory()
	}
	if h.logger == nil {
		h.logger = slog.New(slog.DiscardHandler)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/webhooks/incoming/{token}", h.HandleWebhook)

	r.Get("/webforms/public/{token}", h.HandleFormSchema)
	r.Options("/webforms/public/{token}/submit", h.HandleFormPreflight)
	r.Post("/webforms/public/{token}/submit", h.HandleFormSubmit)

	r.Post("/messaging/telegram-bot/webhook/{token}", h.HandleTelegram)
	r.Get("/messaging/whatsapp/webhook/{token}", h.HandleWhatsAppVerify)
	r.Post("/messaging/whatsapp/webhook/{token}", h.HandleWhatsApp)

	r.Post("/advertising/yandex-direct/webhook/{token}", h.HandleYandexDirect)
}

// integration resolves the path token to an active integration of kind.
// A token of another kind is reported as not found.
func (h *Handler) integration(ctx context.Context, r *http.Request, kind integrationmodels.Kind) (*integrationmodels.Integration, error) {
	i, err := h.integrations.ResolveToken(ctx, chi.URLParam(r, "token"))
	if err != nil {
		return nil, err
	}
	if i.Kind != kind {
		return nil, dErrors.New(dErrors.CodeNotFound, "integration not found")
	}
	return i, nil
}

type outcome struct {
	duplicate bool
	result    *reconcile.Result
}

// process claims the delivery key and reconciles the lead. A failed
// reconciliation releases the key so the provider's retry is processed.
func (h *Handler) process(ctx context.Context, deliveryID string, body []byte, req reconcile.Request) (outcome, error) {
	i := req.Integration
	key := idempotency.Key(i.ID.String(), deliveryID, body)
	claimed, err := h.keys.Claim(ctx, key, h.keyTTL)
	if err != nil {
		// Losing de-duplication is better than losing the lead.
		h.logger.WarnContext(ctx, "idempotency store unavailable",
			"error", err,
			"integration_id", i.ID,
			"request_id", requestcontext.RequestID(ctx),
		)
		claimed = true
	}
	if !claimed {
		if h.metrics != nil {
			h.metrics.IncrementDuplicate(string(i.Kind))
		}
		return outcome{duplicate: true}, nil
	}
	if h.metrics != nil {
		h.metrics.IncrementReceived(string(i.Kind))
	}

	res, err := h.reconciler.Reconcile(ctx, req)
	if err != nil {
		if relErr := h.keys.Release(context.WithoutCancel(ctx), key); relErr != nil {
			h.logger.WarnContext(ctx, "failed to release delivery key",
				"error", relErr,
				"integration_id", i.ID,
			)
		}
		return outcome{}, err
	}
	return outcome{result: res}, nil
}

func (h *Handler) writeOutcome(w http.ResponseWriter, o outcome) {
	if o.duplicate {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"status": statusDuplicate})
		return
	}
	body := map[string]any{
		"status":          statusOK,
		"contact_id":      o.result.Contact.ID,
		"contact_created": o.result.ContactCreated,
		"deal_created":    o.result.DealCreated,
	}
	if o.result.Deal != nil {
		body["deal_id"] = o.result.Deal.ID
	}
	httputil.WriteJSON(w, http.StatusOK, body)
}

// reject counts and answers a delivery refused before reconciliation.
func (h *Handler) reject(ctx context.Context, w http.ResponseWriter, i *integrationmodels.Integration, reason string, err error) {
	if h.metrics != nil {
		h.metrics.IncrementRejected(string(i.Kind), reason)
	}
	h.logger.InfoContext(ctx, "inbound lead rejected",
		"integration_id", i.ID,
		"kind", i.Kind,
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, err)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "inbound lead failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}

var errSignature = dErrors.New(dErrors.CodeUnauthorized, "invalid signature")

// decodePayload accepts JSON objects and url-encoded forms.
func decodePayload(r *http.Request, body []byte) (map[string]any, bool, error) {
	if isForm(r) {
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, true, dErrors.New(dErrors.CodeBadRequest, "invalid form body")
		}
		return mapping.FromForm(values), true, nil
	}
	payload, err := mapping.Decode(body)
	if err != nil {
		return nil, false, dErrors.New(dErrors.CodeBadRequest, "body must be a JSON object")
	}
	return payload, false, nil
}

func isForm(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}

func firstHeader(r *http.Request, names ...string) string {
	for _, name := range names {
		if v := r.Header.Get(name); v != "" {
			return v
		}
	}
	return ""
}
