package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"crmhub/internal/integration/models"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/platform/httputil"
	"crmhub/pkg/requestcontext"
)

type Service interface {
	List(ctx context.Context, companyID id.CompanyID) ([]*models.Integration, error)
	Create(ctx context.Context, companyID id.CompanyID, req *models.CreateIntegrationRequest) (*models.WithSecret, error)
	Get(ctx context.Context, companyID id.CompanyID, integrationID id.IntegrationID) (*models.Integration, error)
	Update(ctx context.Context, companyID id.CompanyID, integrationID id.IntegrationID, req *models.UpdateIntegrationRequest) (*models.Integration, error)
	RotateSecret(ctx context.Context, companyID id.CompanyID, integrationID id.IntegrationID) (*models.WithSecret, error)
	Delete(ctx context.Context, companyID id.CompanyID, integrationID id.IntegrationID) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/integrations", h.HandleList)
	r.Post("/integrations", h.HandleCreate)
	r.Get("/integrations/{id}", h.HandleGet)
	r.Put("/integrations/{id}", h.HandleUpdate)
	r.Delete("/integrations/{id}", h.HandleDelete)
	r.Post("/integrations/{id}/rotate-secret", h.HandleRotateSecret)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.service.List(ctx, requestcontext.CompanyID(ctx))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if list == nil {
		list = []*models.Integration{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"integrations": list})
}

// HandleCreate answers with the secret; it is not retrievable afterwards.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.CreateIntegrationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	created, err := h.service.Create(ctx, requestcontext.CompanyID(ctx), &req)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	integrationID, err := id.ParseIntegrationID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	i, err := h.service.Get(ctx, requestcontext.CompanyID(ctx), integrationID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, i)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	integrationID, err := id.ParseIntegrationID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	var req models.UpdateIntegrationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	i, err := h.service.Update(ctx, requestcontext.CompanyID(ctx), integrationID, &req)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, i)
}

func (h *Handler) HandleRotateSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	integrationID, err := id.ParseIntegrationID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	rotated, err := h.service.RotateSecret(ctx, requestcontext.CompanyID(ctx), integrationID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rotated)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	integrationID, err := id.ParseIntegrationID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if err := h.service.Delete(ctx, requestcontext.CompanyID(ctx), integrationID); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "integration request failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}
