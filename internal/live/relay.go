package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"apb/internal/bulletin/models"
)

// PubSub is the slice of the Redis client the relay uses.
type PubSub interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// LocalPublisher delivers to connections held by this instance.
type LocalPublisher interface {
	Publish(ctx context.Context, evt models.Event)
}

// envelope is the frame exchanged between instances.
type envelope struct {
	Origin string       `json:"origin"`
	Event  models.Event `json:"event"`
}

const defaultRelayBuffer = 1024

// Relay fans events out across instances over a Redis channel. Each event is
// delivered to local connections synchronously and forwarded to peers in the
// background; events arriving from peers are delivered locally. An instance
// ignores its own messages.
type Relay struct {
	local    LocalPublisher
	client   PubSub
	channel  string
	origin   string
	outbound chan envelope
	logger   *slog.Logger
	metrics  *Metrics
}

type RelayOption func(*Relay)

func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithRelayMetrics(m *Metrics) RelayOption {
	return func(r *Relay) {
		r.metrics = m
	}
}

// WithRelayBuffer bounds events waiting to be forwarded to peers. Events
// beyond it are dropped for peers but still delivered locally.
func WithRelayBuffer(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.outbound = make(chan envelope, n)
		}
	}
}

func NewRelay(local LocalPublisher, client PubSub, channel string, opts ...RelayOption) *Relay {
	r := &Relay{
		local:    local,
		client:   client,
		channel:  channel,
		origin:   uuid.NewString(),
		outbound: make(chan envelope, defaultRelayBuffer),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Publish implements the bulletin service's Publisher.
func (r *Relay) Publish(ctx context.Context, evt models.Event) {
	r.local.Publish(ctx, evt)
	select {
	case r.outbound <- envelope{Origin: r.origin, Event: evt}:
	default:
		r.logger.WarnContext(ctx, "relay buffer full, event not forwarded to peers",
			"bulletin_id", evt.RecordID.String(),
			"event_type", string(evt.Type),
		)
	}
}

// Run forwards and receives events until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.forward(ctx) })
	g.Go(func() error { return r.receive(ctx) })
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Relay) forward(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-r.outbound:
			payload, err := json.Marshal(env)
			if err != nil {
				r.logger.ErrorContext(ctx, "failed to encode relay envelope", "error", err)
				continue
			}
			if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
				r.logger.ErrorContext(ctx, "failed to forward event to peers",
					"bulletin_id", env.Event.RecordID.String(),
					"error", err,
				)
				continue
			}
			r.metrics.relayed("out")
		}
	}
}

func (r *Relay) receive(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = time.Minute
	confirm := func() error {
		_, err := sub.Receive(ctx)
		return err
	}
	if err := backoff.Retry(confirm, backoff.WithContext(policy, ctx)); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "live relay subscribed", "channel", r.channel, "origin", r.origin)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.deliver(ctx, msg.Payload)
		}
	}
}

func (r *Relay) deliver(ctx context.Context, payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.WarnContext(ctx, "discarding malformed relay message", "error", err)
		return
	}
	if env.Origin == r.origin {
		return
	}
	r.metrics.relayed("in")
	r.local.Publish(ctx, env.Event)
}
