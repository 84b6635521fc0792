package service

import (
	"context"
	"errors"
	"log/slog"

	"crmhub/internal/task/models"
	tenantmodels "crmhub/internal/tenant/models"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/platform/sentinel"
	"crmhub/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, t *models.Task) error
	Update(ctx context.Context, t *models.Task) error
	FindByID(ctx context.Context, companyID id.CompanyID, taskID id.TaskID) (*models.Task, error)
	List(ctx context.Context, companyID id.CompanyID, filter models.ListFilter) ([]*models.Task, error)
}

type UserLookup interface {
	FindByID(ctx context.Context, companyID id.CompanyID, userID id.UserID) (*tenantmodels.User, error)
}

type Service struct {
	store  Store
	users  UserLookup
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, users UserLookup, opts ...Option) *Service {
	s := &Service{store: store, users: users}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// Create adds a task. Without an assignee the caller is assigned.
func (s *Service) Create(ctx context.Context, companyID id.CompanyID, req *models.CreateTaskRequest) (*models.Task, error) {
	assignee := req.AssigneeID
	if assignee.IsNil() {
		assignee = requestcontext.UserID(ctx)
	}
	if !assignee.IsNil() {
		if _, err := s.users.FindByID(ctx, companyID, assignee); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeValidation, "assignee does not belong to the company")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
		}
	}
	t, err := models.NewTask(id.NewTaskID(), companyID, req.Title, assignee, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, dErrors.Message(err))
		}
		return nil, err
	}
	t.ContactID = req.ContactID
	t.DealID = req.DealID
	if req.DueAt != nil {
		due := req.DueAt.UTC()
		t.DueAt = &due
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create task")
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, companyID id.CompanyID, filter models.ListFilter) ([]*models.Task, error) {
	tasks, err := s.store.List(ctx, companyID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tasks")
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	return tasks, nil
}

func (s *Service) Complete(ctx context.Context, companyID id.CompanyID, taskID id.TaskID) (*models.Task, error) {
	t, err := s.store.FindByID(ctx, companyID, taskID)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	if t.Done {
		return t, nil
	}
	t.Complete(requestcontext.Now(ctx))
	if err := s.store.Update(ctx, t); err != nil {
		return nil, wrapNotFound(err)
	}
	return t, nil
}

func wrapNotFound(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "task not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "task store failure")
}
