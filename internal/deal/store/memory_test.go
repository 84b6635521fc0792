package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"crmhub/internal/deal/models"
	id "crmhub/pkg/domain"
	"crmhub/pkg/platform/sentinel"
)

type DealStoreSuite struct {
	suite.Suite
	store      *InMemory
	ctx        context.Context
	companyID  id.CompanyID
	pipelineID id.PipelineID
	base       time.Time
}

func TestDealStoreSuite(t *testing.T) {
	suite.Run(t, new(DealStoreSuite))
}

func (s *DealStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.companyID = id.NewCompanyID()
	s.pipelineID = id.NewPipelineID()
	s.base = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
}

func (s *DealStoreSuite) newDeal(stage string, offset time.Duration) *models.Deal {
	d, err := models.NewDeal(id.NewDealID(), s.companyID, s.pipelineID, stage, "Deal", s.base.Add(offset))
	s.Require().NoError(err)
	return d
}

func (s *DealStoreSuite) leadDeal(contactID id.ContactID, source string, offset time.Duration) *models.Deal {
	d := s.newDeal("new", offset)
	d.ContactID, d.Source = contactID, source
	return d
}

func (s *DealStoreSuite) TestFindOpenByContactSource() {
	contactID := id.NewContactID()
	first := s.leadDeal(contactID, "webhook:site", 0)
	s.Require().NoError(s.store.Create(s.ctx, first))

	found, err := s.store.FindOpenByContactSource(s.ctx, s.companyID, contactID, "webhook:site")
	s.Require().NoError(err)
	s.Equal(first.ID, found.ID)

	_, err = s.store.FindOpenByContactSource(s.ctx, s.companyID, contactID, "webform:landing")
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(first.SetStatus(models.StatusWon, s.base))
	s.Require().NoError(s.store.Update(s.ctx, first))
	_, err = s.store.FindOpenByContactSource(s.ctx, s.companyID, contactID, "webhook:site")
	s.ErrorIs(err, sentinel.ErrNotFound, "closed deals do not block a new one")

	s.NoError(s.store.Create(s.ctx, s.leadDeal(contactID, "webhook:site", time.Hour)))
}

func (s *DealStoreSuite) TestOneOpenLeadDealPerContactSource() {
	contactID := id.NewContactID()
	first := s.leadDeal(contactID, "webhook:site", 0)
	s.Require().NoError(s.store.Create(s.ctx, first))

	s.ErrorIs(s.store.Create(s.ctx, s.leadDeal(contactID, "webhook:site", time.Minute)), sentinel.ErrAlreadyUsed)
	s.NoError(s.store.Create(s.ctx, s.leadDeal(contactID, "telegram:bot", time.Minute)), "other sources are independent")
	s.NoError(s.store.Create(s.ctx, s.leadDeal(id.NewContactID(), "webhook:site", time.Minute)), "other contacts are independent")

	s.Require().NoError(s.store.Create(s.ctx, s.leadDeal(contactID, models.SourceManual, time.Minute)))
	s.NoError(s.store.Create(s.ctx, s.leadDeal(contactID, models.SourceManual, 2*time.Minute)), "manual deals never collide")

	s.Require().NoError(first.SetStatus(models.StatusLost, s.base))
	s.Require().NoError(s.store.Update(s.ctx, first))
	second := s.leadDeal(contactID, "webhook:site", time.Hour)
	s.Require().NoError(s.store.Create(s.ctx, second))

	s.Require().NoError(first.SetStatus(models.StatusOpen, s.base))
	s.ErrorIs(s.store.Update(s.ctx, first), sentinel.ErrAlreadyUsed, "reopening would duplicate the open lead deal")
}

func (s *DealStoreSuite) TestCountOpen() {
	s.Require().NoError(s.store.Create(s.ctx, s.newDeal("new", 0)))
	s.Require().NoError(s.store.Create(s.ctx, s.newDeal("proposal", 0)))
	won := s.newDeal("proposal", 0)
	s.Require().NoError(won.SetStatus(models.StatusWon, s.base))
	s.Require().NoError(s.store.Create(s.ctx, won))

	n, err := s.store.CountOpenByPipeline(s.ctx, s.companyID, s.pipelineID)
	s.Require().NoError(err)
	s.Equal(2, n)

	n, err = s.store.CountOpenByStage(s.ctx, s.companyID, s.pipelineID, "proposal")
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *DealStoreSuite) TestListFilters() {
	open := s.newDeal("new", 0)
	won := s.newDeal("new", time.Minute)
	s.Require().NoError(won.SetStatus(models.StatusWon, s.base))
	s.Require().NoError(s.store.Create(s.ctx, open))
	s.Require().NoError(s.store.Create(s.ctx, won))

	all, err := s.store.List(s.ctx, s.companyID, models.ListFilter{})
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(won.ID, all[0].ID)

	onlyOpen, err := s.store.List(s.ctx, s.companyID, models.ListFilter{Status: models.StatusOpen})
	s.Require().NoError(err)
	s.Require().Len(onlyOpen, 1)
	s.Equal(open.ID, onlyOpen[0].ID)

	other, err := s.store.List(s.ctx, s.companyID, models.ListFilter{PipelineID: id.NewPipelineID()})
	s.Require().NoError(err)
	s.Empty(other)
}

func (s *DealStoreSuite) TestDeleteScopedToCompany() {
	d := s.newDeal("new", 0)
	s.Require().NoError(s.store.Create(s.ctx, d))
	s.ErrorIs(s.store.Delete(s.ctx, id.NewCompanyID(), d.ID), sentinel.ErrNotFound)
	s.NoError(s.store.Delete(s.ctx, s.companyID, d.ID))
}
