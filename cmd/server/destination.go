package main

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"ccns/internal/chain"
	"ccns/internal/deploy"
	"ccns/internal/messaging/kafka"
	"ccns/internal/platform/config"
	"ccns/internal/platform/httpserver"
	"ccns/internal/platform/metrics"
	"ccns/internal/receiver"
	recvmetrics "ccns/internal/receiver/metrics"
	httptransport "ccns/internal/transport/http"
	audit "ccns/pkg/platform/audit"
	auditpg "ccns/pkg/platform/audit/store/postgres"
)

// runDestination runs a destination chain consuming its Kafka topic.
func runDestination(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	db, nameStore, checks, closeStorage, err := openStorage(ctx, cfg, cfg.Chain.Selector, log)
	if err != nil {
		return err
	}
	defer closeStorage()

	reg := metrics.New()
	publisher := audit.NewPublisher(auditpg.New(db), audit.WithLogger(log))
	dest, err := deploy.DeployDestination(ctx, deploy.DestinationParams{
		Common: deploy.Common{
			Logger:   log,
			Notifier: publisher,
			Tracer:   otel.Tracer("ccns"),
		},
		Chain:     chain.New(cfg.Chain.Selector, cfg.Chain.Name, chain.WithDB(db), chain.WithLogger(log)),
		Deployer:  cfg.Chain.Deployer,
		Address:   cfg.Chain.Address,
		NameStore: nameStore,
		Router:    cfg.Router,
		Trusted: receiver.TrustedSender{
			SourceSelector: cfg.Trusted.SourceSelector,
			Registrar:      cfg.Trusted.Registrar,
		},
		Metrics: recvmetrics.New(reg),
	})
	if err != nil {
		return err
	}

	client, err := kafka.NewConsumerClient(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, cfg.Kafka.TopicPrefix, cfg.Chain.Selector)
	if err != nil {
		return err
	}
	defer client.Close()
	consumer := kafka.NewConsumer(client, dest.Receiver, cfg.Router, dest.Receiver.Address(),
		kafka.WithConsumerLogger(log),
	)

	srv := newServer(cfg.Server.Addr, cfg.Server, reg, surface{
		names:  httptransport.NewNamesHandler(dest.Receiver, nil, log).WithHistory(publisher),
		checks: checks,
	}, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpserver.Serve(gctx, srv, log) })
	g.Go(func() error { return consumer.Run(gctx) })
	return g.Wait()
}
