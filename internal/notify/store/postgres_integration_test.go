//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"crmhub/internal/notify/models"
	"crmhub/internal/notify/store"
	id "crmhub/pkg/domain"
	"crmhub/pkg/platform/sentinel"
	"crmhub/pkg/testutil/containers"
)

type PostgresNotificationSuite struct {
	suite.Suite
	postgres  *containers.PostgresContainer
	store     *store.PostgresStore
	ctx       context.Context
	companyID id.CompanyID
	userID    id.UserID
	base      time.Time
}

func TestPostgresNotificationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresNotificationSuite))
}

func (s *PostgresNotificationSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.ctx = context.Background()
	s.base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *PostgresNotificationSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "companies"))
	var err error
	s.companyID, s.userID, err = s.postgres.SeedCompany(s.ctx, "Acme")
	s.Require().NoError(err)
}

func (s *PostgresNotificationSuite) create(title string, offset time.Duration) *models.Notification {
	n, err := models.NewNotification(id.NewNotificationID(), s.companyID, s.userID, models.KindContactCreated, title, "", s.base.Add(offset))
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, n))
	return n
}

func (s *PostgresNotificationSuite) TestListNewestFirstAndUnreadFilter() {
	first := s.create("first", 0)
	s.create("second", time.Minute)
	s.create("third", 2*time.Minute)

	first.MarkRead(s.base.Add(time.Hour))
	s.Require().NoError(s.store.MarkRead(s.ctx, first))

	all, err := s.store.List(s.ctx, s.userID, models.ListFilter{Limit: 10})
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal("third", all[0].Title)
	s.Equal("first", all[2].Title)
	s.True(all[2].IsRead())

	unread, err := s.store.List(s.ctx, s.userID, models.ListFilter{UnreadOnly: true, Limit: 10})
	s.Require().NoError(err)
	s.Len(unread, 2)

	limited, err := s.store.List(s.ctx, s.userID, models.ListFilter{Limit: 1})
	s.Require().NoError(err)
	s.Len(limited, 1)
}

func (s *PostgresNotificationSuite) TestFindIsScopedToRecipient() {
	n := s.create("mine", 0)

	found, err := s.store.FindByID(s.ctx, s.userID, n.ID)
	s.Require().NoError(err)
	s.Equal(n.Title, found.Title)

	_, err = s.store.FindByID(s.ctx, id.NewUserID(), n.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
