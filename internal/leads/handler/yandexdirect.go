package handler

import (
	"net/http"

	integrationmodels "crmhub/internal/integration/models"
	"crmhub/internal/leads/mapping"
	"crmhub/internal/leads/reconcile"
	"crmhub/internal/leads/verify"
	"crmhub/pkg/platform/httputil"
)

// HandleYandexDirect receives lead-form submissions. Answers arrive either
// at the top level, as a "fields" object or as a list of name/value pairs;
// all are flattened before mapping.
func (h *Handler) HandleYandexDirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	i, err := h.integration(ctx, r, integrationmodels.KindYandexDirect)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if err := verify.YandexDirect(i.Secret, r); err != nil {
		h.reject(ctx, w, i, "signature", errSignature)
		return
	}
	body, err := httputil.ReadBody(r)
	if err != nil {
		h.reject(ctx, w, i, "body", err)
		return
	}
	payload, _, err := decodePayload(r, body)
	if err != nil {
		h.reject(ctx, w, i, "payload", err)
		return
	}
	payload = flattenAnswers(payload)
	lead := mapping.Apply(payload, i.Settings.FieldMapping)
	if lead.ExternalID == "" {
		lead.ExternalID = mapping.Lookup(payload, "id")
	}

	o, err := h.process(ctx, lead.ExternalID, body, reconcile.Request{Integration: i, Lead: lead})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeOutcome(w, o)
}

// flattenAnswers lifts nested answers to the top level without overriding
// keys already present there.
func flattenAnswers(payload map[string]any) map[string]any {
	lift := func(k string, v any) {
		if _, exists := payload[k]; !exists && k != "" {
			payload[k] = v
		}
	}
	for _, key := range []string{"fields", "answers", "data"} {
		switch nested := payload[key].(type) {
		case map[string]any:
			for k, v := range nested {
				lift(k, v)
			}
		case []any:
			for _, item := range nested {
				pair, ok := item.(map[string]any)
				if !ok {
					continue
				}
				name := mapping.Stringify(pair["name"])
				if name == "" {
					name = mapping.Stringify(pair["key"])
				}
				lift(name, pair["value"])
			}
		}
	}
	return payload
}
