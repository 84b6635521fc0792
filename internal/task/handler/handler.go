package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"crmhub/internal/task/models"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/platform/httputil"
	"crmhub/pkg/requestcontext"
)

type Service interface {
	List(ctx context.Context, companyID id.CompanyID, filter models.ListFilter) ([]*models.Task, error)
	Create(ctx context.Context, companyID id.CompanyID, req *models.CreateTaskRequest) (*models.Task, error)
	Complete(ctx context.Context, companyID id.CompanyID, taskID id.TaskID) (*models.Task, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/tasks", h.HandleList)
	r.Post("/tasks", h.HandleCreate)
	r.Post("/tasks/{id}/complete", h.HandleComplete)
}

// HandleList serves GET /tasks?assignee=me|<uuid>&open=true.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	filter := models.ListFilter{OpenOnly: q.Get("open") == "true"}
	switch raw := q.Get("assignee"); raw {
	case "":
	case "me":
		filter.AssigneeID = requestcontext.UserID(ctx)
	default:
		userID, err := id.ParseUserID(raw)
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}
		filter.AssigneeID = userID
	}
	tasks, err := h.service.List(ctx, requestcontext.CompanyID(ctx), filter)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.CreateTaskRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	t, err := h.service.Create(ctx, requestcontext.CompanyID(ctx), &req)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID, err := id.ParseTaskID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	t, err := h.service.Complete(ctx, requestcontext.CompanyID(ctx), taskID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "task request failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}
