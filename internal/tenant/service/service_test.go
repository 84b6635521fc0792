package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"crmhub/internal/tenant/models"
	companystore "crmhub/internal/tenant/store/company"
	userstore "crmhub/internal/tenant/store/user"
	id "crmhub/pkg/domain"
	dErrors "crmhub/pkg/domain-errors"
	"crmhub/pkg/requestcontext"
)

type stubBootstrapper struct {
	seeded []id.CompanyID
	err    error
}

func (b *stubBootstrapper) Bootstrap(_ context.Context, companyID id.CompanyID) error {
	b.seeded = append(b.seeded, companyID)
	return b.err
}

type ServiceSuite struct {
	suite.Suite
	ctx          context.Context
	users        *userstore.InMemory
	bootstrapper *stubBootstrapper
	service      *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	s.users = userstore.NewInMemory()
	s.bootstrapper = &stubBootstrapper{}
	s.service = New(companystore.NewInMemory(), s.users, WithBootstrapper(s.bootstrapper))
}

func (s *ServiceSuite) createCompany(name, ownerEmail string) *models.CompanyWithOwner {
	res, err := s.service.CreateCompany(s.ctx, &models.CreateCompanyRequest{
		Name:          name,
		OwnerEmail:    ownerEmail,
		OwnerPassword: "s3cret-pass",
	})
	s.Require().NoError(err)
	return res
}

func (s *ServiceSuite) TestCreateCompany() {
	s.Run("provisions company, owner and defaults", func() {
		res := s.createCompany("Acme", "Boss@Acme.io")

		s.Equal("Acme", res.Company.Name)
		s.Equal(models.RoleOwner, res.Owner.Role)
		s.Equal("boss@acme.io", res.Owner.Email)
		s.Equal("Boss", res.Owner.Name)
		s.Equal([]id.CompanyID{res.Company.ID}, s.bootstrapper.seeded)
	})

	s.Run("rejects duplicate company name", func() {
		_, err := s.service.CreateCompany(s.ctx, &models.CreateCompanyRequest{
			Name: "ACME", OwnerEmail: "other@acme.io", OwnerPassword: "s3cret-pass",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("rejects short password", func() {
		_, err := s.service.CreateCompany(s.ctx, &models.CreateCompanyRequest{
			Name: "Short", OwnerEmail: "x@short.io", OwnerPassword: "123",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("bootstrap failure surfaces as internal", func() {
		s.bootstrapper.err = errors.New("boom")
		defer func() { s.bootstrapper.err = nil }()
		_, err := s.service.CreateCompany(s.ctx, &models.CreateCompanyRequest{
			Name: "Initech", OwnerEmail: "bill@initech.io", OwnerPassword: "s3cret-pass",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestCreateUser() {
	res := s.createCompany("Hooli", "gavin@hooli.io")
	companyID := res.Company.ID

	s.Run("owner adds a manager", func() {
		ctx := requestcontext.WithUserID(s.ctx, res.Owner.ID)
		user, err := s.service.CreateUser(ctx, companyID, &models.CreateUserRequest{
			Email: "richard@hooli.io", Password: "piedpiper",
		})
		s.Require().NoError(err)
		s.Equal(models.RoleManager, user.Role)

		users, err := s.service.ListUsers(s.ctx, companyID)
		s.Require().NoError(err)
		s.Len(users, 2)
	})

	s.Run("managers cannot add users", func() {
		manager, err := s.users.FindByEmail(s.ctx, "richard@hooli.io")
		s.Require().NoError(err)
		ctx := requestcontext.WithUserID(s.ctx, manager.ID)
		_, err = s.service.CreateUser(ctx, companyID, &models.CreateUserRequest{
			Email: "dinesh@hooli.io", Password: "piedpiper",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestFirstUser() {
	s.Run("company without users", func() {
		_, err := s.service.FirstUser(s.ctx, id.NewCompanyID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("owner is the first user", func() {
		res := s.createCompany("Vandelay", "art@vandelay.io")
		first, err := s.service.FirstUser(s.ctx, res.Company.ID)
		s.Require().NoError(err)
		s.Equal(res.Owner.ID, first.ID)
	})
}

func (s *ServiceSuite) TestLinkTelegram() {
	res := s.createCompany("Pendant", "elaine@pendant.io")

	user, err := s.service.LinkTelegram(s.ctx, res.Company.ID, res.Owner.ID, 424242)
	s.Require().NoError(err)
	s.Equal(int64(424242), user.TelegramChatID)

	_, err = s.service.LinkTelegram(s.ctx, res.Company.ID, res.Owner.ID, -100)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
