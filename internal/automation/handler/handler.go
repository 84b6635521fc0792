package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"crmhub/internal/automation/models"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/platform/httputil"
	"crmhub/pkg/requestcontext"
)

type Service interface {
	List(ctx context.Context, companyID id.CompanyID) ([]*models.Rule, error)
	Create(ctx context.Context, companyID id.CompanyID, req *models.CreateRuleRequest) (*models.Rule, error)
	Delete(ctx context.Context, companyID id.CompanyID, ruleID id.RuleID) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/automation/rules", h.HandleList)
	r.Post("/automation/rules", h.HandleCreate)
	r.Delete("/automation/rules/{id}", h.HandleDelete)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rules, err := h.service.List(ctx, requestcontext.CompanyID(ctx))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if rules == nil {
		rules = []*models.Rule{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.CreateRuleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	rule, err := h.service.Create(ctx, requestcontext.CompanyID(ctx), &req)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rule)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID, err := id.ParseRuleID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if err := h.service.Delete(ctx, requestcontext.CompanyID(ctx), ruleID); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "automation request failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}
