//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"crmhub/internal/automation/models"
	"crmhub/internal/automation/store"
	"crmhub/internal/events"
	id "crmhub/pkg/domain"
	"crmhub/pkg/platform/sentinel"
	"crmhub/pkg/testutil/containers"
)

type PostgresRuleSuite struct {
	suite.Suite
	postgres  *containers.PostgresContainer
	store     *store.PostgresStore
	ctx       context.Context
	companyID id.CompanyID
	userID    id.UserID
	base      time.Time
}

func TestPostgresRuleSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresRuleSuite))
}

func (s *PostgresRuleSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.ctx = context.Background()
	s.base = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (s *PostgresRuleSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "companies"))
	var err error
	s.companyID, s.userID, err = s.postgres.SeedCompany(s.ctx, "Acme")
	s.Require().NoError(err)
}

func (s *PostgresRuleSuite) newRule(name string, trigger events.Type, action models.Action, params models.Params, offset time.Duration) *models.Rule {
	r, err := models.NewRule(id.NewRuleID(), s.companyID, name, trigger, action, params, s.base.Add(offset))
	s.Require().NoError(err)
	return r
}

func (s *PostgresRuleSuite) TestParamsRoundTrip() {
	r := s.newRule("follow up", events.TypeDealCreated, models.ActionCreateTask, models.Params{
		UserID: s.userID,
		Title:  "Call {name}",
		DueIn:  models.Duration(2 * time.Hour),
	}, 0)
	r.SourceFilter = "webform"
	s.Require().NoError(s.store.Create(s.ctx, r))

	rules, err := s.store.List(s.ctx, s.companyID)
	s.Require().NoError(err)
	s.Require().Len(rules, 1)
	got := rules[0]
	s.Equal(r.ID, got.ID)
	s.Equal("webform", got.SourceFilter)
	s.Equal(models.ActionCreateTask, got.Action)
	s.Equal(s.userID, got.Params.UserID)
	s.Equal(models.Duration(2*time.Hour), got.Params.DueIn)
}

func (s *PostgresRuleSuite) TestListByTriggerSkipsInactive() {
	tag := models.Params{Tags: []string{"lead"}}
	active := s.newRule("active", events.TypeContactCreated, models.ActionAddTag, tag, 0)
	s.Require().NoError(s.store.Create(s.ctx, active))
	inactive := s.newRule("inactive", events.TypeContactCreated, models.ActionAddTag, tag, time.Minute)
	inactive.Active = false
	s.Require().NoError(s.store.Create(s.ctx, inactive))
	s.Require().NoError(s.store.Create(s.ctx, s.newRule("deal", events.TypeDealCreated, models.ActionAddTag, tag, 2*time.Minute)))

	rules, err := s.store.ListByTrigger(s.ctx, s.companyID, events.TypeContactCreated)
	s.Require().NoError(err)
	s.Require().Len(rules, 1)
	s.Equal(active.ID, rules[0].ID)
}

func (s *PostgresRuleSuite) TestDelete() {
	r := s.newRule("gone", events.TypeLeadReceived, models.ActionAddTag, models.Params{Tags: []string{"x"}}, 0)
	s.Require().NoError(s.store.Create(s.ctx, r))

	s.Require().NoError(s.store.Delete(s.ctx, s.companyID, r.ID))
	s.ErrorIs(s.store.Delete(s.ctx, s.companyID, r.ID), sentinel.ErrNotFound)
}
