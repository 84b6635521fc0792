package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"crmhub/internal/deal/models"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/platform/httputil"
	"crmhub/pkg/requestcontext"
)

type Service interface {
	List(ctx context.Context, companyID id.CompanyID, filter models.ListFilter) ([]*models.Deal, error)
	Create(ctx context.Context, companyID id.CompanyID, req *models.CreateDealRequest) (*models.Deal, error)
	Get(ctx context.Context, companyID id.CompanyID, dealID id.DealID) (*models.Deal, error)
	Update(ctx context.Context, companyID id.CompanyID, dealID id.DealID, req *models.UpdateDealRequest) (*models.Deal, error)
	Delete(ctx context.Context, companyID id.CompanyID, dealID id.DealID) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/deals", h.HandleList)
	r.Post("/deals", h.HandleCreate)
	r.Get("/deals/{id}", h.HandleGet)
	r.Put("/deals/{id}", h.HandleUpdate)
	r.Delete("/deals/{id}", h.HandleDelete)
}

// HandleList serves GET /deals?pipeline_id=&contact_id=&status=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	filter := models.ListFilter{Status: models.Status(q.Get("status"))}
	if raw := q.Get("pipeline_id"); raw != "" {
		pipelineID, err := id.ParsePipelineID(raw)
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}
		filter.PipelineID = pipelineID
	}
	if raw := q.Get("contact_id"); raw != "" {
		contactID, err := id.ParseContactID(raw)
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}
		filter.ContactID = contactID
	}
	deals, err := h.service.List(ctx, requestcontext.CompanyID(ctx), filter)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if deals == nil {
		deals = []*models.Deal{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"deals": deals})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.CreateDealRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	d, err := h.service.Create(ctx, requestcontext.CompanyID(ctx), &req)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, d)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dealID, err := id.ParseDealID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	d, err := h.service.Get(ctx, requestcontext.CompanyID(ctx), dealID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dealID, err := id.ParseDealID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	var req models.UpdateDealRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	d, err := h.service.Update(ctx, requestcontext.CompanyID(ctx), dealID, &req)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dealID, err := id.ParseDealID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if err := h.service.Delete(ctx, requestcontext.CompanyID(ctx), dealID); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "deal request failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}
