package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	integrationmodels "crmhub/internal/integration/models"
	"crmhub/internal/leads/mapping"
	"crmhub/internal/leads/reconcile"
	"crmhub/internal/leads/verify"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/platform/httputil"
)

// HandleTelegram receives bot updates. Only new messages become leads; the
// sender's Telegram user id is the contact's external id and a shared
// contact card supplies the phone.
func (h *Handler) HandleTelegram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	i, err := h.integration(ctx, r, integrationmodels.KindTelegram)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if err := verify.Telegram(i.Secret, r); err != nil {
		h.reject(ctx, w, i, "signature", errSignature)
		return
	}
	body, err := httputil.ReadBody(r)
	if err != nil {
		h.reject(ctx, w, i, "body", err)
		return
	}
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		h.reject(ctx, w, i, "payload", dErrors.New(dErrors.CodeBadRequest, "invalid telegram update"))
		return
	}
	msg := update.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"status": statusIgnored})
		return
	}

	o, err := h.process(ctx, strconv.Itoa(update.UpdateID), body, reconcile.Request{
		Integration: i,
		Lead:        mapping.Apply(telegramPayload(msg), i.Settings.FieldMapping),
		ExternalID:  strconv.FormatInt(msg.From.ID, 10),
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeOutcome(w, o)
}

func telegramPayload(msg *tgbotapi.Message) map[string]any {
	payload := map[string]any{
		"first_name": msg.From.FirstName,
		"last_name":  msg.From.LastName,
		"username":   msg.From.UserName,
		"text":       msg.Text,
	}
	if c := msg.Contact; c != nil {
		payload["phone"] = c.PhoneNumber
		if c.FirstName != "" {
			payload["first_name"] = c.FirstName
			payload["last_name"] = c.LastName
		}
	}
	if msg.Caption != "" && msg.Text == "" {
		payload["text"] = msg.Caption
	}
	return payload
}
