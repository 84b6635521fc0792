package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"crmhub/internal/pipeline/models"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/platform/httputil"
	"crmhub/pkg/requestcontext"
)

type Service interface {
	List(ctx context.Context, companyID id.CompanyID) ([]*models.Pipeline, error)
	Get(ctx context.Context, companyID id.CompanyID, pipelineID id.PipelineID) (*models.Pipeline, error)
	Create(ctx context.Context, companyID id.CompanyID, req *models.CreatePipelineRequest) (*models.Pipeline, error)
	Update(ctx context.Context, companyID id.CompanyID, pipelineID id.PipelineID, req *models.UpdatePipelineRequest) (*models.Pipeline, error)
	Delete(ctx context.Context, companyID id.CompanyID, pipelineID id.PipelineID) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/pipelines", h.HandleList)
	r.Post("/pipelines", h.HandleCreate)
	r.Get("/pipelines/{id}", h.HandleGet)
	r.Put("/pipelines/{id}", h.HandleUpdate)
	r.Delete("/pipelines/{id}", h.HandleDelete)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pipelines, err := h.service.List(ctx, requestcontext.CompanyID(ctx))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if pipelines == nil {
		pipelines = []*models.Pipeline{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"pipelines": pipelines})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.CreatePipelineRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	p, err := h.service.Create(ctx, requestcontext.CompanyID(ctx), &req)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pipelineID, err := id.ParsePipelineID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	p, err := h.service.Get(ctx, requestcontext.CompanyID(ctx), pipelineID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pipelineID, err := id.ParsePipelineID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	var req models.UpdatePipelineRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	p, err := h.service.Update(ctx, requestcontext.CompanyID(ctx), pipelineID, &req)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pipelineID, err := id.ParsePipelineID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if err := h.service.Delete(ctx, requestcontext.CompanyID(ctx), pipelineID); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "pipeline request failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}
