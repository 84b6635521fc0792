package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"crmhub/internal/contact/models"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/platform/httputil"
	"crmhub/pkg/requestcontext"
)

type Service interface {
	List(ctx context.Context, companyID id.CompanyID, filter models.ListFilter) (*models.Page, error)
	Create(ctx context.Context, companyID id.CompanyID, req *models.CreateContactRequest) (*models.Contact, error)
	Get(ctx context.Context, companyID id.CompanyID, contactID id.ContactID) (*models.Contact, error)
	Update(ctx context.Context, companyID id.CompanyID, contactID id.ContactID, req *models.UpdateContactRequest) (*models.Contact, error)
	Delete(ctx context.Context, companyID id.CompanyID, contactID id.ContactID) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/contacts", h.HandleList)
	r.Post("/contacts", h.HandleCreate)
	r.Get("/contacts/{id}", h.HandleGet)
	r.Put("/contacts/{id}", h.HandleUpdate)
	r.Delete("/contacts/{id}", h.HandleDelete)
}

// HandleList serves GET /contacts?search=&tag=&limit=&offset=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	filter := models.ListFilter{Search: q.Get("search"), Tag: q.Get("tag")}
	var err error
	if filter.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if filter.Offset, err = intParam(q.Get("offset"), "offset"); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	page, err := h.service.List(ctx, requestcontext.CompanyID(ctx), filter)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.CreateContactRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	c, err := h.service.Create(ctx, requestcontext.CompanyID(ctx), &req)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contactID, err := id.ParseContactID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	c, err := h.service.Get(ctx, requestcontext.CompanyID(ctx), contactID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contactID, err := id.ParseContactID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	var req models.UpdateContactRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	c, err := h.service.Update(ctx, requestcontext.CompanyID(ctx), contactID, &req)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contactID, err := id.ParseContactID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if err := h.service.Delete(ctx, requestcontext.CompanyID(ctx), contactID); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, name+" must be a non-negative integer")
	}
	return n, nil
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "contact request failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}
