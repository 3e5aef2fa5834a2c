package main

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"ccns/internal/chain"
	"ccns/internal/deploy"
	jwttoken "ccns/internal/jwt_token"
	"ccns/internal/messaging/local"
	namestore "ccns/internal/names/store"
	"ccns/internal/platform/config"
	"ccns/internal/platform/httpserver"
	"ccns/internal/platform/metrics"
	"ccns/internal/receiver"
	recvmetrics "ccns/internal/receiver/metrics"
	regmetrics "ccns/internal/registrar/metrics"
	"ccns/internal/registrar/store"
	httptransport "ccns/internal/transport/http"
	id "ccns/pkg/domain"
	audit "ccns/pkg/platform/audit"
	"ccns/pkg/platform/audit/store/memory"
)

// localGasLimit is the gas limit the local topology enables its destination with.
const localGasLimit = 200_000

// runLocal runs a source and one destination chain in process, connected by
// the local substrate. Queued messages are delivered every DeliveryInterval.
func runLocal(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	sourceSelector := cfg.Chain.Selector
	if sourceSelector == 0 {
		sourceSelector = 16015286601757825753
	}
	deployer := cfg.Chain.Deployer
	if deployer.IsZero() {
		deployer = id.NewRandomAddress()
	}

	reg := metrics.New()
	network := local.NewNetwork(local.WithLogger(log))
	publisher := audit.NewPublisher(memory.NewInMemoryStore(), audit.WithLogger(log))
	common := deploy.Common{
		Logger:   log,
		Notifier: publisher,
		Tracer:   otel.Tracer("ccns"),
	}

	source, err := deploy.DeploySource(ctx, deploy.SourceParams{
		Common:      common,
		Chain:       chain.New(sourceSelector, "source", chain.WithLogger(log)),
		Deployer:    deployer,
		Address:     cfg.Chain.Address,
		NameStore:   namestore.NewInMemory(),
		Links:       store.NewInMemoryLinks(),
		Fees:        store.NewInMemoryLedger(0),
		Router:      network.Router(sourceSelector),
		MinGasLimit: cfg.Chain.MinGasLimit,
		Metrics:     regmetrics.New(reg.Wrap("source")),
	})
	if err != nil {
		return err
	}

	destSelector := cfg.Local.DestinationSelector
	dest, err := deploy.DeployDestination(ctx, deploy.DestinationParams{
		Common:    common,
		Chain:     chain.New(destSelector, "destination", chain.WithLogger(log)),
		Deployer:  deployer,
		NameStore: namestore.NewInMemory(),
		Router:    network.RouterAddress(),
		Trusted: receiver.TrustedSender{
			SourceSelector: sourceSelector,
			Registrar:      source.Registrar.Address(),
		},
		Metrics: recvmetrics.New(reg.Wrap("destination")),
	})
	if err != nil {
		return err
	}
	network.Attach(destSelector, dest.Receiver.Address(), dest.Receiver)
	if err := source.Registrar.EnableChain(ctx, deployer, destSelector, dest.Receiver.Address(), localGasLimit); err != nil {
		return err
	}

	token, err := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience).
		GenerateCallerToken(deployer, 24*time.Hour)
	if err != nil {
		return err
	}
	log.InfoContext(ctx, "local topology ready",
		"deployer", deployer,
		"registrar", source.Registrar.Address(),
		"receiver", dest.Receiver.Address(),
		"admin_token", token,
	)

	sourceSrv := newServer(cfg.Server.Addr, cfg.Server, reg, surface{
		names:     httptransport.NewNamesHandler(source.Registrar, source.Registrar, log).WithHistory(publisher),
		admin:     httptransport.NewAdminHandler(source.Registrar, log),
		authority: source.Authority,
	}, log)
	destSrv := newServer(cfg.Local.DestinationAddr, cfg.Server, reg, surface{
		names: httptransport.NewNamesHandler(dest.Receiver, nil, log).WithHistory(publisher),
	}, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpserver.Serve(gctx, sourceSrv, log) })
	g.Go(func() error { return httpserver.Serve(gctx, destSrv, log) })
	g.Go(func() error {
		ticker := time.NewTicker(cfg.Local.DeliveryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				network.DeliverAll(gctx)
			}
		}
	})
	return g.Wait()
}
