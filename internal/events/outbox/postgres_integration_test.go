//go:build integration

package outbox_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"crmhub/internal/events"
	"crmhub/internal/events/outbox"
	"crmhub/internal/events/relay"
	"crmhub/internal/platform/config"
	"crmhub/internal/platform/kafka"
	"crmhub/internal/platform/logger"
	id "crmhub/pkg/domain"
	"crmhub/pkg/testutil/containers"
)

// OutboxRelaySuite drains a PostgreSQL outbox into a Redpanda topic.
type OutboxRelaySuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	redpanda *containers.RedpandaContainer
	store    *outbox.PostgresStore
	ctx      context.Context
}

func TestOutboxRelaySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(OutboxRelaySuite))
}

func (s *OutboxRelaySuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.redpanda = mgr.GetRedpanda(s.T())
	s.store = outbox.NewPostgres(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *OutboxRelaySuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "outbox"))
}

func (s *OutboxRelaySuite) appendEvents(companyID id.CompanyID, n int) []*events.Event {
	base := time.Now().UTC().Add(-time.Minute)
	evts := make([]*events.Event, n)
	for i := range evts {
		e, err := events.New(companyID, events.TypeContactCreated, id.NewContactID().String(),
			events.ContactCreated{Name: "Lead", Source: "webhook:Landing"}, base.Add(time.Duration(i)*time.Second))
		s.Require().NoError(err)
		evts[i] = e
	}
	s.Require().NoError(s.store.Append(s.ctx, evts...))
	return evts
}

func (s *OutboxRelaySuite) TestFetchOldestFirstAndMarkPublished() {
	evts := s.appendEvents(id.NewCompanyID(), 3)

	batch, err := s.store.FetchUnpublished(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(batch, 2)
	s.Equal(evts[0].ID, batch[0].ID)
	s.Equal(evts[1].ID, batch[1].ID)
	s.JSONEq(string(evts[0].Payload), string(batch[0].Payload))

	s.Require().NoError(s.store.MarkPublished(s.ctx, []id.EventID{batch[0].ID, batch[1].ID}, time.Now().UTC()))

	rest, err := s.store.FetchUnpublished(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(rest, 1)
	s.Equal(evts[2].ID, rest[0].ID)
}

func (s *OutboxRelaySuite) TestRelayProducesToKafka() {
	cfg := config.KafkaConfig{
		Brokers:           s.redpanda.Brokers,
		Topic:             "crm.events." + id.NewEventID().String()[:8],
		Partitions:        1,
		ReplicationFactor: 1,
	}
	client, err := kafka.New(cfg)
	s.Require().NoError(err)
	defer client.Close()
	s.Require().NoError(kafka.EnsureTopic(s.ctx, client, cfg, logger.Discard()))
	s.Require().NoError(kafka.EnsureTopic(s.ctx, client, cfg, logger.Discard()), "existing topic is not an error")

	companyID := id.NewCompanyID()
	evts := s.appendEvents(companyID, 3)

	r := relay.New(s.store, relay.NewKafkaProducer(client), relay.WithBatchSize(10))
	n, err := r.RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, n)

	n, err = r.RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Zero(n, "published rows are not produced twice")

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	var got []*kgo.Record
	for len(got) < len(evts) {
		fetches := consumer.PollFetches(ctx)
		s.Require().NoError(ctx.Err(), "timed out waiting for records")
		fetches.EachRecord(func(rec *kgo.Record) {
			got = append(got, rec)
		})
	}

	for i, rec := range got {
		s.Equal(companyID.String(), string(rec.Key))
		var decoded events.Event
		s.Require().NoError(json.Unmarshal(rec.Value, &decoded))
		s.Equal(evts[i].ID, decoded.ID)
		s.Equal(events.TypeContactCreated, decoded.Type)

		headers := map[string]string{}
		for _, h := range rec.Headers {
			headers[h.Key] = string(h.Value)
		}
		s.Equal(string(events.TypeContactCreated), headers["event_type"])
		s.Equal(evts[i].ID.String(), headers["event_id"])
	}
}
