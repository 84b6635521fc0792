package handler

import (
	"net/http"

	integrationmodels "crmhub/internal/integration/models"
	"crmhub/internal/leads/mapping"
	"crmhub/internal/leads/reconcile"
	"crmhub/internal/leads/verify"
	"crmhub/pkg/platform/httputil"
	"crmhub/pkg/requestcontext"
)

// HandleWebhook accepts a generic JSON or form payload. Integrations with a
// secret require an X-Webhook-Signature, optionally timestamped.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	i, err := h.integration(ctx, r, integrationmodels.KindWebhook)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	body, err := httputil.ReadBody(r)
	if err != nil {
		h.reject(ctx, w, i, "body", err)
		return
	}
	if i.HasSecret() {
		if err := verify.Webhook(i.Secret, r, body, requestcontext.Now(ctx), h.tolerance); err != nil {
			h.reject(ctx, w, i, "signature", errSignature)
			return
		}
	}
	payload, _, err := decodePayload(r, body)
	if err != nil {
		h.reject(ctx, w, i, "payload", err)
		return
	}

	o, err := h.process(ctx, firstHeader(r, "X-Idempotency-Key", "X-Request-Id"), body, reconcile.Request{
		Integration: i,
		Lead:        mapping.Apply(payload, i.Settings.FieldMapping),
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeOutcome(w, o)
}
