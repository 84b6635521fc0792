package service

import (
	"context"
	"errors"
	"log/slog"

	tenantmetrics "crmhub/internal/tenant/metrics"
	"crmhub/internal/tenant/models"
	"crmhub/internal/tenant/secrets"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/platform/sentinel"
	"crmhub/pkg/platform/tx"
	"crmhub/pkg/requestcontext"
)

type CompanyStore interface {
	CreateIfNameAvailable(ctx context.Context, company *models.Company) error
	FindByID(ctx context.Context, companyID id.CompanyID) (*models.Company, error)
}

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, companyID id.CompanyID, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	ListByCompany(ctx context.Context, companyID id.CompanyID) ([]*models.User, error)
	FindFirstByCompany(ctx context.Context, companyID id.CompanyID) (*models.User, error)
}

// Bootstrapper seeds per-company defaults inside the provisioning transaction.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, companyID id.CompanyID) error
}

// Service orchestrates companies and their staff.
type Service struct {
	companies    CompanyStore
	users        UserStore
	tx           tx.Runner
	bootstrapper Bootstrapper
	logger       *slog.Logger
	metrics      *tenantmetrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *tenantmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTxRunner(runner tx.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

func WithBootstrapper(b Bootstrapper) Option {
	return func(s *Service) {
		s.bootstrapper = b
	}
}

func New(companies CompanyStore, users UserStore, opts ...Option) *Service {
	s := &Service{companies: companies, users: users}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = tx.NewMemoryRunner()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// CreateCompany provisions a company, its owner account and any bootstrapped
// defaults as one unit.
func (s *Service) CreateCompany(ctx context.Context, req *models.CreateCompanyRequest) (*models.CompanyWithOwner, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := secrets.HashPassword(req.OwnerPassword)
	if err != nil {
		return nil, asValidation(err)
	}

	var result *models.CompanyWithOwner
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		company, err := models.NewCompany(id.NewCompanyID(), req.Name, now)
		if err != nil {
			return asValidation(err)
		}
		owner, err := models.NewUser(id.NewUserID(), company.ID, req.OwnerEmail, req.OwnerName, hash, models.RoleOwner, now)
		if err != nil {
			return asValidation(err)
		}

		if err := s.companies.CreateIfNameAvailable(txCtx, company); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "company name must be unique")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create company")
		}
		if err := s.createUser(txCtx, owner); err != nil {
			return err
		}
		if s.bootstrapper != nil {
			if err := s.bootstrapper.Bootstrap(txCtx, company.ID); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to seed company defaults")
			}
		}
		result = &models.CompanyWithOwner{Company: company, Owner: owner}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "company created",
		"company_id", result.Company.ID,
		"owner_id", result.Owner.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementCompanyCreated()
		s.metrics.IncrementUserCreated()
	}
	return result, nil
}

func (s *Service) GetCompany(ctx context.Context, companyID id.CompanyID) (*models.Company, error) {
	company, err := s.companies.FindByID(ctx, companyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "company not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load company")
	}
	return company, nil
}

// CreateUser adds a staff member. Only owners may add users.
func (s *Service) CreateUser(ctx context.Context, companyID id.CompanyID, req *models.CreateUserRequest) (*models.User, error) {
	actor, err := s.GetUser(ctx, companyID, requestcontext.UserID(ctx))
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleOwner {
		return nil, dErrors.New(dErrors.CodeForbidden, "only owners can add users")
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := secrets.HashPassword(req.Password)
	if err != nil {
		return nil, asValidation(err)
	}
	user, err := models.NewUser(id.NewUserID(), companyID, req.Email, req.Name, hash, req.Role, requestcontext.Now(ctx))
	if err != nil {
		return nil, asValidation(err)
	}
	if err := s.createUser(ctx, user); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementUserCreated()
	}
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, companyID id.CompanyID, userID id.UserID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, companyID, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context, companyID id.CompanyID) ([]*models.User, error) {
	users, err := s.users.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list users")
	}
	return users, nil
}

// FirstUser returns the earliest created user of the company, the final
// fallback when choosing who owns an inbound lead.
func (s *Service) FirstUser(ctx context.Context, companyID id.CompanyID) (*models.User, error) {
	user, err := s.users.FindFirstByCompany(ctx, companyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "company has no users")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load first user")
	}
	return user, nil
}

// LinkTelegram sets the chat the user receives bot notifications in. A zero
// chat id unlinks.
func (s *Service) LinkTelegram(ctx context.Context, companyID id.CompanyID, userID id.UserID, chatID int64) (*models.User, error) {
	if chatID < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "chat_id must be a private chat id")
	}
	user, err := s.GetUser(ctx, companyID, userID)
	if err != nil {
		return nil, err
	}
	user.TelegramChatID = chatID
	if err := s.users.Update(ctx, user); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update user")
	}
	return user, nil
}

func (s *Service) createUser(ctx context.Context, user *models.User) error {
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return dErrors.New(dErrors.CodeConflict, "email is already registered")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}
	return nil
}

func asValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) || dErrors.HasCode(err, dErrors.CodeInvalidInput) {
		return dErrors.New(dErrors.CodeValidation, dErrors.Message(err))
	}
	return err
}
