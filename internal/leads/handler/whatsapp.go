package handler

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	integrationmodels "crmhub/internal/integration/models"
	"crmhub/internal/leads/mapping"
	"crmhub/internal/leads/reconcile"
	"crmhub/internal/leads/verify"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/platform/httputil"
	"crmhub/pkg/requestcontext"
)

// whatsAppNotification is the subset of a Cloud API webhook we read.
type whatsAppNotification struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
					WaID string `json:"wa_id"`
				} `json:"contacts"`
				Messages []whatsAppMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type whatsAppMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
}

// HandleWhatsAppVerify answers the subscription handshake by echoing the
// challenge.
func (h *Handler) HandleWhatsAppVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	i, err := h.integration(ctx, r, integrationmodels.KindWhatsApp)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	challenge, err := verify.WhatsAppHandshake(i.VerifyToken, r)
	if err != nil {
		h.reject(ctx, w, i, "handshake", dErrors.New(dErrors.CodeForbidden, "verification failed"))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

// HandleWhatsApp processes every inbound message of a notification as its
// own lead keyed by message id. Status callbacks are ignored. Any internal
// failure answers 500 so Meta redelivers; processed messages are then
// reported as duplicates.
func (h *Handler) HandleWhatsApp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	i, err := h.integration(ctx, r, integrationmodels.KindWhatsApp)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	body, err := httputil.ReadBody(r)
	if err != nil {
		h.reject(ctx, w, i, "body", err)
		return
	}
	if err := verify.WhatsApp(i.Secret, r, body); err != nil {
		h.reject(ctx, w, i, "signature", errSignature)
		return
	}
	var n whatsAppNotification
	if err := json.Unmarshal(body, &n); err != nil {
		h.reject(ctx, w, i, "payload", dErrors.New(dErrors.CodeBadRequest, "invalid whatsapp notification"))
		return
	}

	var (
		processed, duplicates int
		seq                   int
		failed                error
	)
	for _, entry := range n.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, msg := range change.Value.Messages {
				seq++
				if msg.From == "" {
					continue
				}
				o, err := h.process(ctx, messageDeliveryID(msg, body, seq), body, reconcile.Request{
					Integration: i,
					Lead:        mapping.Apply(whatsAppPayload(msg, names[msg.From]), i.Settings.FieldMapping),
					ExternalID:  msg.From,
				})
				switch {
				case err != nil && dErrors.CodeOf(err) == dErrors.CodeInternal:
					failed = errors.Join(failed, err)
				case err != nil:
					h.logger.InfoContext(ctx, "whatsapp message skipped",
						"message_id", msg.ID,
						"error", err,
						"request_id", requestcontext.RequestID(ctx),
					)
				case o.duplicate:
					duplicates++
				default:
					processed++
				}
			}
		}
	}
	if failed != nil {
		h.writeError(ctx, w, dErrors.Wrap(failed, dErrors.CodeInternal, "failed to process whatsapp messages"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":     statusOK,
		"processed":  processed,
		"duplicates": duplicates,
	})
}

// messageDeliveryID keys a message by its wamid. A message without one is
// keyed by the notification hash, its position and its sender, so siblings in
// one notification stay distinct while a redelivery still matches.
func messageDeliveryID(msg whatsAppMessage, body []byte, seq int) string {
	if msg.ID != "" {
		return msg.ID
	}
	sum := sha256.Sum256(body)
	return fmt.Sprintf("sha256:%x:%d:%s:%s", sum[:12], seq, msg.From, msg.Timestamp)
}

func whatsAppPayload(msg whatsAppMessage, profileName string) map[string]any {
	payload := map[string]any{
		"name":  profileName,
		"phone": "+" + msg.From,
	}
	if msg.Text != nil {
		payload["text"] = msg.Text.Body
	}
	return payload
}
