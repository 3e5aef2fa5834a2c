package main

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"ccns/internal/chain"
	"ccns/internal/deploy"
	"ccns/internal/messaging/kafka"
	"ccns/internal/names"
	namestore "ccns/internal/names/store"
	"ccns/internal/platform/config"
	"ccns/internal/platform/httpserver"
	"ccns/internal/platform/metrics"
	"ccns/internal/platform/postgres"
	"ccns/internal/platform/redis"
	regmetrics "ccns/internal/registrar/metrics"
	"ccns/internal/registrar/store"
	httptransport "ccns/internal/transport/http"
	id "ccns/pkg/domain"
	audit "ccns/pkg/platform/audit"
	auditpg "ccns/pkg/platform/audit/store/postgres"
)

// openStorage connects Postgres and, when configured, Redis for name records.
func openStorage(ctx context.Context, cfg config.Config, selector id.ChainSelector, log *slog.Logger) (*sql.DB, names.Store, map[string]checker, func(), error) {
	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, nil, nil, err
	}
	checks := map[string]checker{
		"postgres": func(ctx context.Context) error { return postgres.Health(ctx, db) },
	}

	var nameStore names.Store = namestore.NewPostgres(db, selector)
	closeAll := func() { _ = db.Close() }
	if !redis.Enabled(cfg.Redis) {
		return db, nameStore, checks, closeAll, nil
	}

	rc, err := redis.Open(ctx, cfg.Redis)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, nil, err
	}
	nameStore = namestore.NewRedis(rc, selector, namestore.WithRedisLogger(log))
	checks["redis"] = func(ctx context.Context) error { return redis.Health(ctx, rc) }
	closeAll = func() {
		_ = rc.Close()
		_ = db.Close()
	}
	return db, nameStore, checks, closeAll, nil
}

// runSource runs a source chain that dispatches through the Kafka outbox.
func runSource(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	db, nameStore, checks, closeStorage, err := openStorage(ctx, cfg, cfg.Chain.Selector, log)
	if err != nil {
		return err
	}
	defer closeStorage()

	producer, err := kafka.NewProducerClient(cfg.Kafka.Brokers)
	if err != nil {
		return err
	}
	defer producer.Close()

	reg := metrics.New()
	publisher := audit.NewPublisher(auditpg.New(db), audit.WithLogger(log))
	outbox := kafka.NewOutbox(db, "")
	source, err := deploy.DeploySource(ctx, deploy.SourceParams{
		Common: deploy.Common{
			Logger:   log,
			Notifier: publisher,
			Tracer:   otel.Tracer("ccns"),
		},
		Chain:       chain.New(cfg.Chain.Selector, cfg.Chain.Name, chain.WithDB(db), chain.WithLogger(log)),
		Deployer:    cfg.Chain.Deployer,
		Address:     cfg.Chain.Address,
		NameStore:   nameStore,
		Links:       store.NewPostgresLinks(db, cfg.Chain.Selector),
		Fees:        store.NewPostgresLedger(db, cfg.Chain.Selector),
		Router:      kafka.NewRouter(outbox, cfg.Chain.Selector, kafka.WithRouterLogger(log)),
		MinGasLimit: cfg.Chain.MinGasLimit,
		Metrics:     regmetrics.New(reg),
	})
	if err != nil {
		return err
	}

	srv := newServer(cfg.Server.Addr, cfg.Server, reg, surface{
		names:     httptransport.NewNamesHandler(source.Registrar, source.Registrar, log).WithHistory(publisher),
		admin:     httptransport.NewAdminHandler(source.Registrar, log),
		authority: source.Authority,
		checks:    checks,
	}, log)
	relay := kafka.NewRelay(outbox, producer, cfg.Kafka.TopicPrefix,
		kafka.WithRelayInterval(cfg.Kafka.RelayInterval),
		kafka.WithTopicAdmin(kadm.NewClient(producer), cfg.Kafka.Replication),
		kafka.WithRelayLogger(log),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpserver.Serve(gctx, srv, log) })
	g.Go(func() error { return relay.Run(gctx) })
	return g.Wait()
}
