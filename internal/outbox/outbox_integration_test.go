//go:build integration

package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"apb/internal/bulletin/models"
	"apb/internal/platform/config"
	"apb/internal/platform/kafka"
	id "apb/pkg/domain"
	txcontext "apb/pkg/platform/tx"
	"apb/pkg/testutil/containers"
)

const testTopic = "apb.bulletins.test"

// OutboxIntegrationSuite appends through Postgres and relays to a real broker.
type OutboxIntegrationSuite struct {
	suite.Suite
	ctx      context.Context
	pg       *containers.PostgresContainer
	broker   *containers.RedpandaContainer
	store    *PostgresStore
	producer *kgo.Client
}

func TestOutboxIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping outbox integration test in short mode")
	}
	suite.Run(t, new(OutboxIntegrationSuite))
}

func (s *OutboxIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.broker = containers.NewRedpandaContainer(s.T())
	s.store = NewPostgres(s.pg.DB)

	producer, err := kafka.NewProducer(config.KafkaConfig{Brokers: []string{s.broker.Broker}, Topic: testTopic})
	s.Require().NoError(err)
	s.producer = producer
	s.Require().NoError(kafka.EnsureTopic(s.ctx, producer, testTopic, 1, 1))
}

func (s *OutboxIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

func (s *OutboxIntegrationSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx))
}

func (s *OutboxIntegrationSuite) event(t models.EventType) models.Event {
	return models.NewEvent(t, &models.Bulletin{
		ID:        id.NewBulletinID(),
		Subject:   "Armed robbery suspect",
		Category:  models.CategoryWanted,
		Priority:  models.PriorityHigh,
		Status:    models.StatusActive,
		Agencies:  []id.AgencyID{id.NewAgencyID()},
		CreatedBy: id.NewUserID(),
	})
}

func (s *OutboxIntegrationSuite) TestAppendFollowsTransaction() {
	s.Run("rolled back appends are discarded", func() {
		boom := errors.New("boom")
		err := txcontext.Run(s.ctx, s.pg.DB, time.Second, func(ctx context.Context) error {
			if err := s.store.Append(ctx, s.event(models.EventCreated)); err != nil {
				return err
			}
			return boom
		})
		s.ErrorIs(err, boom)

		pending, err := s.store.Pending(s.ctx, 10)
		s.Require().NoError(err)
		s.Empty(pending)
	})

	s.Run("committed appends are pending in order", func() {
		created := s.event(models.EventCreated)
		updated := s.event(models.EventUpdated)
		updated.RecordID = created.RecordID
		err := txcontext.Run(s.ctx, s.pg.DB, time.Second, func(ctx context.Context) error {
			if err := s.store.Append(ctx, created); err != nil {
				return err
			}
			return s.store.Append(ctx, updated)
		})
		s.Require().NoError(err)

		pending, err := s.store.Pending(s.ctx, 10)
		s.Require().NoError(err)
		s.Require().Len(pending, 2)
		s.Equal(string(models.EventCreated), pending[0].EventType)
		s.Equal(string(models.EventUpdated), pending[1].EventType)
		s.Equal(created.RecordID.String(), pending[0].AggregateID)
	})
}

func (s *OutboxIntegrationSuite) TestRelayProducesToBroker() {
	evt := s.event(models.EventCreated)
	s.Require().NoError(s.store.Append(s.ctx, evt))

	relay := NewRelay(s.store, s.producer, testTopic, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	n, err := relay.RelayOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	pending, err := s.store.Pending(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending, "relayed entries are marked published")

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker.Broker),
		kgo.ConsumeTopics(testTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()
	var record *kgo.Record
	for record == nil {
		fetches := consumer.PollFetches(ctx)
		s.Require().NoError(ctx.Err(), "no record arrived")
		fetches.EachRecord(func(r *kgo.Record) {
			if string(r.Key) == evt.RecordID.String() {
				record = r
			}
		})
	}

	var got models.Event
	s.Require().NoError(json.Unmarshal(record.Value, &got))
	s.Equal(evt.RecordID, got.RecordID)
	s.Equal(evt.AuthorizationSet, got.AuthorizationSet)
	headers := map[string]string{}
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	s.Equal(string(models.EventCreated), headers["event_type"])
	s.NotEmpty(headers["entry_id"])
}
