package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/mssola/useragent"

	integrationmodels "crmhub/internal/integration/models"
	"crmhub/internal/leads/mapping"
	"crmhub/internal/leads/reconcile"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/platform/httputil"
	"crmhub/pkg/requestcontext"
)

// honeypotField is hidden from humans; bots fill it.
const honeypotField = "_hp"

// HandleFormSchema serves the public description of a web form.
func (h *Handler) HandleFormSchema(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	i, err := h.integration(ctx, r, integrationmodels.KindWebform)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	fields := i.Settings.FormFields
	if fields == nil {
		fields = []integrationmodels.FormField{}
	}
	h.allowOrigin(w, r, i)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"name":         i.Name,
		"fields":       fields,
		"redirect_url": i.Settings.RedirectURL,
		"honeypot":     honeypotField,
	})
}

// HandleFormPreflight answers CORS preflights for embedded forms.
func (h *Handler) HandleFormPreflight(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	i, err := h.integration(ctx, r, integrationmodels.KindWebform)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if !i.AllowsOrigin(requestOrigin(r)) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	h.allowOrigin(w, r, i)
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Idempotency-Key")
	w.Header().Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
}

// HandleFormSubmit accepts a browser submission as JSON or url-encoded
// form. Url-encoded submissions are redirected when the form has a redirect
// URL so a plain HTML form lands on a thank-you page.
func (h *Handler) HandleFormSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	i, err := h.integration(ctx, r, integrationmodels.KindWebform)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if !i.AllowsOrigin(requestOrigin(r)) {
		h.reject(ctx, w, i, "origin", dErrors.New(dErrors.CodeForbidden, "origin not allowed"))
		return
	}
	h.allowOrigin(w, r, i)

	body, err := httputil.ReadBody(r)
	if err != nil {
		h.reject(ctx, w, i, "body", err)
		return
	}
	payload, form, err := decodePayload(r, body)
	if err != nil {
		h.reject(ctx, w, i, "payload", err)
		return
	}
	redirect := form && i.Settings.RedirectURL != ""

	if mapping.Lookup(payload, honeypotField) != "" {
		if h.metrics != nil {
			h.metrics.IncrementRejected(string(i.Kind), "honeypot")
		}
		h.logger.InfoContext(ctx, "web form honeypot filled",
			"integration_id", i.ID,
			"request_id", requestcontext.RequestID(ctx),
		)
		h.acceptForm(w, r, i, redirect, outcome{})
		return
	}
	if missing := missingFields(i, payload); len(missing) > 0 {
		h.reject(ctx, w, i, "required", dErrors.New(dErrors.CodeValidation, "required fields missing: "+strings.Join(missing, ", ")))
		return
	}

	o, err := h.process(ctx, r.Header.Get("X-Idempotency-Key"), body, reconcile.Request{
		Integration: i,
		Lead:        mapping.Apply(payload, i.Settings.FieldMapping),
		Metadata:    submitterMetadata(r),
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.acceptForm(w, r, i, redirect, o)
}

func (h *Handler) acceptForm(w http.ResponseWriter, r *http.Request, i *integrationmodels.Integration, redirect bool, o outcome) {
	if redirect {
		http.Redirect(w, r, i.Settings.RedirectURL, http.StatusSeeOther)
		return
	}
	if o.result == nil && !o.duplicate {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"status": statusOK})
		return
	}
	h.writeOutcome(w, o)
}

func (h *Handler) allowOrigin(w http.ResponseWriter, r *http.Request, i *integrationmodels.Integration) {
	origin := r.Header.Get("Origin")
	if origin == "" || !i.AllowsOrigin(origin) {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Add("Vary", "Origin")
}

// requestOrigin prefers the Origin header and falls back to the Referer's
// scheme and host.
func requestOrigin(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" {
		return origin
	}
	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Scheme == "" || ref.Host == "" {
		return ""
	}
	return ref.Scheme + "://" + ref.Host
}

func missingFields(i *integrationmodels.Integration, payload map[string]any) []string {
	var missing []string
	for _, name := range i.RequiredFields() {
		if mapping.Lookup(payload, name) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

func submitterMetadata(r *http.Request) map[string]string {
	meta := map[string]string{}
	if ip := requestcontext.ClientIP(r.Context()); ip != "" {
		meta["ip"] = ip
	}
	if origin := requestOrigin(r); origin != "" {
		meta["origin"] = origin
	}
	raw := r.UserAgent()
	if raw == "" {
		return meta
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	meta["browser"] = strings.TrimSpace(name + " " + version)
	meta["os"] = ua.OS()
	if ua.Mobile() {
		meta["device"] = "mobile"
	} else {
		meta["device"] = "desktop"
	}
	if ua.Bot() {
		meta["bot"] = "true"
	}
	return meta
}
