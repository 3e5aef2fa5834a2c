// Package deploy assembles source and destination nodes: a Name Registry plus
// the registrar or receiver bound as its controller.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"ccns/internal/admin"
	"ccns/internal/chain"
	"ccns/internal/messaging"
	"ccns/internal/names"
	"ccns/internal/receiver"
	recvmetrics "ccns/internal/receiver/metrics"
	"ccns/internal/registrar"
	regmetrics "ccns/internal/registrar/metrics"
	id "ccns/pkg/domain"
	audit "ccns/pkg/platform/audit"
)

// Common holds collaborators shared by both node kinds. Zero values are
// valid: logging falls back to slog.Default and the rest is disabled.
type Common struct {
	Logger   *slog.Logger
	Notifier *audit.Publisher
	Tracer   trace.Tracer
}

func (c Common) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c Common) registryOptions() []names.Option {
	opts := []names.Option{names.WithLogger(c.logger())}
	if c.Notifier != nil {
		opts = append(opts, names.WithNotifier(c.Notifier))
	}
	return opts
}

// SourceParams configures a source chain deployment.
type SourceParams struct {
	Common
	Chain    *chain.Chain
	Deployer id.Address
	// Address of the registrar contract; a random address is minted when zero.
	Address     id.Address
	NameStore   names.Store
	Links       registrar.LinkStore
	Fees        registrar.FeeLedger
	Router      messaging.Router
	MinGasLimit uint64
	Metrics     *regmetrics.Metrics
}

type SourceNode struct {
	Chain     *chain.Chain
	Authority *admin.Authority
	Registry  *names.Registry
	Registrar *registrar.Service
}

// DeploySource deploys the registry and registrar and binds the registrar as
// the registry's controller.
func DeploySource(ctx context.Context, p SourceParams) (*SourceNode, error) {
	if p.Chain == nil {
		return nil, errors.New("source chain is required")
	}
	authority, err := admin.NewAuthority(p.Deployer)
	if err != nil {
		return nil, err
	}
	registry, err := names.New(p.Chain, p.NameStore, authority, p.registryOptions()...)
	if err != nil {
		return nil, fmt.Errorf("deploy source registry: %w", err)
	}

	address := p.Address
	if address.IsZero() {
		address = id.NewRandomAddress()
	}
	opts := []registrar.Option{
		registrar.WithLogger(p.logger()),
		registrar.WithTracer(p.Tracer),
	}
	if p.Notifier != nil {
		opts = append(opts, registrar.WithNotifier(p.Notifier))
	}
	if p.Metrics != nil {
		opts = append(opts, registrar.WithMetrics(p.Metrics))
	}
	if p.MinGasLimit > 0 {
		opts = append(opts, registrar.WithMinGasLimit(p.MinGasLimit))
	}
	svc, err := registrar.New(address, registrar.Deps{
		Chain:     p.Chain,
		Authority: authority,
		Registry:  registry,
		Router:    p.Router,
		Links:     p.Links,
		Fees:      p.Fees,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("deploy registrar: %w", err)
	}

	if err := registry.BindController(ctx, p.Deployer, svc.Address()); err != nil {
		return nil, fmt.Errorf("bind registrar: %w", err)
	}
	p.logger().InfoContext(ctx, "source node deployed",
		"chain", p.Chain.Selector(),
		"registrar", svc.Address(),
	)
	return &SourceNode{Chain: p.Chain, Authority: authority, Registry: registry, Registrar: svc}, nil
}

// DestinationParams configures a destination chain deployment.
type DestinationParams struct {
	Common
	Chain    *chain.Chain
	Deployer id.Address
	// Address of the receiver contract; a random address is minted when zero.
	Address   id.Address
	NameStore names.Store
	Router    id.Address
	Trusted   receiver.TrustedSender
	Metrics   *recvmetrics.Metrics
}

type DestinationNode struct {
	Chain     *chain.Chain
	Authority *admin.Authority
	Registry  *names.Registry
	Receiver  *receiver.Service
}

// DeployDestination deploys the registry and receiver and binds the receiver
// as the registry's controller.
func DeployDestination(ctx context.Context, p DestinationParams) (*DestinationNode, error) {
	if p.Chain == nil {
		return nil, errors.New("destination chain is required")
	}
	authority, err := admin.NewAuthority(p.Deployer)
	if err != nil {
		return nil, err
	}
	registry, err := names.New(p.Chain, p.NameStore, authority, p.registryOptions()...)
	if err != nil {
		return nil, fmt.Errorf("deploy destination registry: %w", err)
	}

	address := p.Address
	if address.IsZero() {
		address = id.NewRandomAddress()
	}
	opts := []receiver.Option{
		receiver.WithLogger(p.logger()),
		receiver.WithTracer(p.Tracer),
	}
	if p.Notifier != nil {
		opts = append(opts, receiver.WithNotifier(p.Notifier))
	}
	if p.Metrics != nil {
		opts = append(opts, receiver.WithMetrics(p.Metrics))
	}
	svc, err := receiver.New(p.Chain, registry, authority, p.Deployer, receiver.Config{
		Address: address,
		Router:  p.Router,
		Trusted: p.Trusted,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("deploy receiver: %w", err)
	}

	if err := registry.BindController(ctx, p.Deployer, svc.Address()); err != nil {
		return nil, fmt.Errorf("bind receiver: %w", err)
	}
	p.logger().InfoContext(ctx, "destination node deployed",
		"chain", p.Chain.Selector(),
		"receiver", svc.Address(),
		"trusted_source", p.Trusted.SourceSelector,
		"trusted_registrar", p.Trusted.Registrar,
	)
	return &DestinationNode{Chain: p.Chain, Authority: authority, Registry: registry, Receiver: svc}, nil
}
