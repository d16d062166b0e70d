package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/twmb/franz-go/pkg/kgo"

	agencyhandler "apb/internal/agency/handler"
	agencyservice "apb/internal/agency/service"
	agencystore "apb/internal/agency/store"
	bulletinhandler "apb/internal/bulletin/handler"
	bulletinmetrics "apb/internal/bulletin/metrics"
	bulletinservice "apb/internal/bulletin/service"
	bulletinstore "apb/internal/bulletin/store"
	"apb/internal/identity/gate"
	identityhandler "apb/internal/identity/handler"
	userstore "apb/internal/identity/store/user"
	"apb/internal/identity/token"
	"apb/internal/live"
	"apb/internal/live/wsock"
	"apb/internal/outbox"
	"apb/internal/platform/config"
	"apb/internal/platform/kafka"
	"apb/internal/platform/metrics"
	"apb/internal/platform/postgres"
	"apb/internal/platform/redis"
	"apb/internal/ratelimit"
	"apb/internal/scope"
	httptransport "apb/internal/transport/http"
)

// agencyStore is what every consumer of the agency directory needs.
type agencyStore interface {
	agencyservice.Store
	scope.AgencyLister
	bulletinservice.AgencyChecker
}

// eventOutbox records events inside the write transaction and feeds the relay.
type eventOutbox interface {
	outbox.Store
	bulletinservice.EventLog
}

type app struct {
	router     http.Handler
	hub        *live.Hub
	storage    string
	background []func(ctx context.Context) error
	closers    []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// build assembles the application. Postgres, Redis and Kafka are each
// optional. Without a database everything runs in memory and tokens are
// trusted without a user lookup.
func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{storage: "memory"}
	reg := metrics.New()

	var (
		agencies  agencyStore
		bulletins bulletinservice.Store
		users     gate.UserStore
		events    bulletinservice.EventLog
		outboxes  eventOutbox
		db        *sql.DB
	)
	checks := map[string]httptransport.HealthCheck{}

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := postgres.Migrate(db); err != nil {
			a.close()
			return nil, err
		}
		a.storage = "postgres"
		agencies = agencystore.NewPostgres(db)
		bulletins = bulletinstore.NewPostgres(db, cfg.Database.TxTimeout)
		users = userstore.NewPostgres(db)
		outboxes = outbox.NewPostgres(db)
		checks["postgres"] = db.PingContext
	} else {
		agencies = agencystore.NewInMemory()
		bulletins = bulletinstore.NewInMemory(bulletinstore.WithMemoryTxTimeout(cfg.Database.TxTimeout))
		outboxes = outbox.NewInMemory()
	}

	policy, err := scope.ParsePolicy(cfg.Scope.AdminPolicy)
	if err != nil {
		a.close()
		return nil, err
	}
	delegations, err := scope.ParseDelegations(cfg.Scope.Delegations)
	if err != nil {
		a.close()
		return nil, err
	}
	resolver, err := scope.NewResolver(policy,
		scope.WithAgencyLister(agencies),
		scope.WithDelegations(delegations),
		scope.WithLogger(log),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	tokens := token.NewJWTService(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	gateOpts := []gate.Option{gate.WithLogger(log)}
	if users != nil {
		gateOpts = append(gateOpts, gate.WithUserStore(users))
	}
	admission := gate.New(tokens, gateOpts...)

	liveMetrics := live.NewMetrics(reg)
	a.hub = live.NewHub(admission, resolver,
		live.WithLogger(log),
		live.WithMetrics(liveMetrics),
		live.WithQueueSize(cfg.Live.QueueSize),
		live.WithAdmissionTimeout(cfg.Live.AdmissionTimeout),
	)
	var (
		publisher bulletinservice.Publisher = a.hub
		limiter   ratelimit.Limiter         = ratelimit.NewInMemory()
	)

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		a.close()
		return nil, err
	}
	if rc != nil {
		a.closers = append(a.closers, rc.Close)
		relay := live.NewRelay(a.hub, rc, cfg.Redis.Channel,
			live.WithRelayLogger(log),
			live.WithRelayMetrics(liveMetrics),
		)
		publisher = relay
		limiter = ratelimit.NewRedis(rc, "apb:ratelimit:")
		a.background = append(a.background, relay.Run)
		checks["redis"] = rc.Health
	}

	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		a.close()
		return nil, err
	}
	if producer != nil {
		a.closers = append(a.closers, func() error { producer.Close(); return nil })
		if err := kafka.EnsureTopic(ctx, producer, cfg.Kafka.Topic, 3, 1); err != nil {
			log.Warn("could not ensure outbox topic", "topic", cfg.Kafka.Topic, "error", err)
		}
		events = outboxes
		relay := outbox.NewRelay(outboxes, producer, cfg.Kafka.Topic,
			outbox.WithLogger(log),
			outbox.WithInterval(cfg.Kafka.OutboxPollInterval),
			outbox.WithMetrics(outbox.NewMetrics(reg)),
		)
		a.background = append(a.background, relay.Run)
		checks["kafka"] = func(ctx context.Context) error { return pingKafka(ctx, producer) }
	}

	opts := []bulletinservice.Option{
		bulletinservice.WithLogger(log),
		bulletinservice.WithMetrics(bulletinmetrics.New(reg)),
	}
	if events != nil {
		opts = append(opts, bulletinservice.WithEventLog(events))
	}
	svc := bulletinservice.New(bulletins, agencies, publisher, opts...)

	limits := ratelimit.New(limiter,
		ratelimit.WithLogger(log),
		ratelimit.WithMetrics(ratelimit.NewMetrics(reg)),
		ratelimit.WithWrites(ratelimit.Rule{Limit: cfg.RateLimit.WritesPerWindow, Window: cfg.RateLimit.Window}),
		ratelimit.WithConnects(ratelimit.Rule{Limit: cfg.RateLimit.ConnectsPerWindow, Window: cfg.RateLimit.Window}),
	)

	a.router = httptransport.NewRouter(httptransport.Deps{
		Logger:  log,
		Gate:    admission,
		Metrics: reg.Handler(),
		Live: wsock.New(a.hub,
			wsock.WithLogger(log),
			wsock.WithWriteTimeout(cfg.Live.WriteTimeout),
			wsock.WithPingInterval(cfg.Live.PingInterval),
		),
		Limits: limits,
		Checks: checks,
		Modules: []httptransport.Registrar{
			agencyhandler.New(agencyservice.New(agencies, agencyservice.WithLogger(log)), log),
			bulletinhandler.New(svc, resolver, log),
			identityhandler.New(resolver, log),
		},
	})
	return a, nil
}

func pingKafka(ctx context.Context, client *kgo.Client) error {
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("kafka ping: %w", err)
	}
	return nil
}
