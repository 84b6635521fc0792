package company

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"crmhub/internal/tenant/models"
	id "crmhub/pkg/domain"
	"crmhub/pkg/platform/sentinel"
)

type CompanyStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *CompanyStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestCompanyStoreSuite(t *testing.T) {
	suite.Run(t, new(CompanyStoreSuite))
}

func (s *CompanyStoreSuite) newCompany(name string) *models.Company {
	c, err := models.NewCompany(id.NewCompanyID(), name, time.Now())
	s.Require().NoError(err)
	return c
}

func (s *CompanyStoreSuite) TestCreationAndLookups() {
	s.Run("creates and finds company by ID", func() {
		c := s.newCompany("Acme")
		s.Require().NoError(s.store.CreateIfNameAvailable(s.ctx, c))

		found, err := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal("Acme", found.Name)
	})

	s.Run("returns ErrNotFound for unknown ID", func() {
		_, err := s.store.FindByID(s.ctx, id.NewCompanyID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *CompanyStoreSuite) TestNameUniqueness() {
	s.Require().NoError(s.store.CreateIfNameAvailable(s.ctx, s.newCompany("Globex")))

	err := s.store.CreateIfNameAvailable(s.ctx, s.newCompany("GLOBEX"))
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)
}
