package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"crmhub/internal/tenant/models"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/platform/httputil"
	"crmhub/pkg/requestcontext"
)

// Service defines the company and staff operations exposed over HTTP.
type Service interface {
	CreateCompany(ctx context.Context, req *models.CreateCompanyRequest) (*models.CompanyWithOwner, error)
	CreateUser(ctx context.Context, companyID id.CompanyID, req *models.CreateUserRequest) (*models.User, error)
	ListUsers(ctx context.Context, companyID id.CompanyID) ([]*models.User, error)
	GetUser(ctx context.Context, companyID id.CompanyID, userID id.UserID) (*models.User, error)
	LinkTelegram(ctx context.Context, companyID id.CompanyID, userID id.UserID, chatID int64) (*models.User, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterAdmin mounts operator routes. The caller applies admin token auth.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/companies", h.HandleCreateCompany)
}

// Register mounts staff routes. The caller applies bearer auth.
func (h *Handler) Register(r chi.Router) {
	r.Get("/users", h.HandleListUsers)
	r.Post("/users", h.HandleCreateUser)
	r.Get("/users/me", h.HandleMe)
	r.Put("/users/me/telegram", h.HandleLinkTelegram)
}

func (h *Handler) HandleCreateCompany(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.CreateCompanyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	res, err := h.service.CreateCompany(ctx, &req)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := h.service.ListUsers(ctx, requestcontext.CompanyID(ctx))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if users == nil {
		users = []*models.User{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.CreateUserRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	user, err := h.service.CreateUser(ctx, requestcontext.CompanyID(ctx), &req)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, user)
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.service.GetUser(ctx, requestcontext.CompanyID(ctx), requestcontext.UserID(ctx))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) HandleLinkTelegram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.LinkTelegramRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	user, err := h.service.LinkTelegram(ctx, requestcontext.CompanyID(ctx), requestcontext.UserID(ctx), req.ChatID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "tenant request failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}
