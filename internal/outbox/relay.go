package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Store is what the relay needs from an outbox.
type Store interface {
	Pending(ctx context.Context, limit int) ([]Entry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Producer is satisfied by *kgo.Client.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

const (
	defaultInterval  = time.Second
	defaultBatchSize = 100
)

// Relay polls the outbox and produces pending entries to Kafka, keyed by
// bulletin id so one bulletin's events stay in one partition. Delivery is
// at least once; consumers dedupe on the entry id header.
type Relay struct {
	store    Store
	producer Producer
	topic    string
	interval time.Duration
	batch    int
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time
}

type RelayOption func(*Relay)

func WithLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func WithMetrics(m *Metrics) RelayOption {
	return func(r *Relay) {
		r.metrics = m
	}
}

func NewRelay(store Store, producer Producer, topic string, opts ...RelayOption) *Relay {
	r := &Relay{
		store:    store,
		producer: producer,
		topic:    topic,
		interval: defaultInterval,
		batch:    defaultBatchSize,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays until ctx is done. Failed rounds back off exponentially up to a
// minute; a successful round resets the delay.
func (r *Relay) Run(ctx context.Context) error {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = r.interval
	retry.MaxInterval = time.Minute
	retry.MaxElapsedTime = 0

	wait := r.interval
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}

		n, err := r.RelayOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait = retry.NextBackOff()
			r.logger.WarnContext(ctx, "outbox relay failed",
				"error", err,
				"retry_in", wait,
			)
			continue
		}
		retry.Reset()
		wait = r.interval
		if n == r.batch {
			// A full batch means more is probably waiting.
			wait = 0
		}
	}
}

// RelayOnce produces one batch and marks it published. It returns how many
// entries were relayed.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	entries, err := r.store.Pending(ctx, r.batch)
	if err != nil {
		return 0, fmt.Errorf("load pending outbox: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	records := make([]*kgo.Record, len(entries))
	for i, e := range entries {
		records[i] = &kgo.Record{
			Topic: r.topic,
			Key:   []byte(e.AggregateID),
			Value: e.Payload,
			Headers: []kgo.RecordHeader{
				{Key: "entry_id", Value: []byte(e.ID.String())},
				{Key: "event_type", Value: []byte(e.EventType)},
			},
			Timestamp: e.CreatedAt,
		}
	}
	if err := r.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		r.metrics.incFailures()
		return 0, fmt.Errorf("produce outbox batch: %w", err)
	}

	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	now := r.now()
	if err := r.store.MarkPublished(ctx, ids, now); err != nil {
		return 0, err
	}
	r.metrics.observeBatch(len(entries), now.Sub(entries[0].CreatedAt))
	return len(entries), nil
}
