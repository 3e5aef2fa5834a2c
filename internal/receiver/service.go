// Package receiver implements the destination-chain entrypoint for name
// updates. Deliveries are accepted only from the configured router, carrying
// the trusted source chain and registrar.
package receiver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"ccns/internal/admin"
	"ccns/internal/messaging"
	"ccns/internal/receiver/metrics"
	id "ccns/pkg/domain"
	dErrors "ccns/pkg/domain-errors"
	audit "ccns/pkg/platform/audit"
)

// TrustedSender is the only origin whose messages are applied.
type TrustedSender struct {
	SourceSelector id.ChainSelector
	Registrar      id.Address
}

type Registry interface {
	SetAddress(ctx context.Context, caller id.Address, name id.Name, owner id.Address) error
	Lookup(ctx context.Context, name id.Name) (id.Address, error)
}

type Executor interface {
	Selector() id.ChainSelector
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Notifier interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the Receiver deployed at address on a destination chain.
type Service struct {
	chain    Executor
	address  id.Address
	router   id.Address
	trusted  TrustedSender
	registry Registry

	notifier Notifier
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

var _ messaging.Receiver = (*Service)(nil)

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// Config fixes the deployment parameters of a receiver. They cannot change
// after construction.
type Config struct {
	Address id.Address
	Router  id.Address
	Trusted TrustedSender
}

// New deploys a receiver. Only the administrator may configure the trusted
// sender, so deployer must hold the authority.
//
// Errors: CodePermissionDenied when deployer is not the administrator,
// CodeInvalidConfig when the receiver, router or registrar address is zero.
func New(chain Executor, registry Registry, authority *admin.Authority, deployer id.Address, cfg Config, opts ...Option) (*Service, error) {
	if chain == nil {
		return nil, errors.New("chain is required")
	}
	if registry == nil {
		return nil, errors.New("name registry is required")
	}
	if authority == nil {
		return nil, errors.New("admin authority is required")
	}
	if err := authority.Check(deployer); err != nil {
		return nil, err
	}
	if cfg.Address.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidConfig, "receiver address is required")
	}
	if cfg.Router.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidConfig, "router address is required")
	}
	if cfg.Trusted.Registrar.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidConfig, "trusted registrar address is required")
	}

	s := &Service{
		chain:    chain,
		address:  cfg.Address,
		router:   cfg.Router,
		trusted:  cfg.Trusted,
		registry: registry,
		tracer:   noop.NewTracerProvider().Tracer("noop"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Address is where the receiver is deployed; registrars target it.
func (s *Service) Address() id.Address {
	return s.address
}

func (s *Service) Trusted() TrustedSender {
	return s.trusted
}

// Receive validates and applies one delivery. Identical redeliveries converge
// to the same record. A rejected delivery changes nothing and returns the
// reason as a coded error marked with messaging.Reject. Failures to apply a
// valid delivery, such as an unbound registry, are returned unmarked.
func (s *Service) Receive(ctx context.Context, caller id.Address, delivery messaging.Delivery) (err error) {
	ctx, span := s.tracer.Start(ctx, "receiver.receive",
		trace.WithAttributes(
			attribute.String("ccns.message_id", delivery.MessageID.String()),
			attribute.Int64("ccns.source", int64(delivery.SourceSelector)),
			attribute.Int64("ccns.chain", int64(s.chain.Selector())),
		),
	)
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
		if s.metrics != nil {
			s.metrics.ObserveReceiveDuration(time.Since(start).Seconds())
		}
	}()

	update, err := s.validate(caller, delivery)
	if err != nil {
		s.reject(ctx, caller, delivery, err)
		return messaging.Reject(err)
	}

	err = s.chain.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.registry.SetAddress(ctx, s.address, update.Name, update.Owner); err != nil {
			return err
		}
		return s.emit(ctx, audit.Event{
			Action:    string(audit.EventMessageApplied),
			Chain:     s.chain.Selector(),
			Peer:      delivery.SourceSelector,
			Name:      update.Name,
			Owner:     update.Owner,
			Actor:     delivery.Sender,
			MessageID: delivery.MessageID,
		})
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to apply name update",
			"chain", s.chain.Selector(),
			"message_id", delivery.MessageID,
			"error", err,
		)
		return err
	}

	if s.metrics != nil {
		s.metrics.IncrementAccepted()
	}
	s.logger.InfoContext(ctx, "name update applied",
		"chain", s.chain.Selector(),
		"message_id", delivery.MessageID,
		"name", update.Name,
		"owner", update.Owner,
	)
	return nil
}

func (s *Service) validate(caller id.Address, delivery messaging.Delivery) (messaging.NameUpdate, error) {
	if caller != s.router {
		return messaging.NameUpdate{}, dErrors.New(dErrors.CodePermissionDenied, "caller is not the router")
	}
	if delivery.SourceSelector != s.trusted.SourceSelector {
		return messaging.NameUpdate{}, dErrors.New(dErrors.CodeUntrustedSource, "message from untrusted source chain")
	}
	if delivery.Sender != s.trusted.Registrar {
		return messaging.NameUpdate{}, dErrors.New(dErrors.CodeUntrustedSender, "message from untrusted sender")
	}
	return messaging.DecodeNameUpdate(delivery.Data)
}

// reject records a rejected delivery. The record is detached from any
// transition, so it survives the failure it describes.
func (s *Service) reject(ctx context.Context, caller id.Address, delivery messaging.Delivery, cause error) {
	reason := string(dErrors.CodeOf(cause))
	if s.metrics != nil {
		s.metrics.IncrementRejected(reason)
	}
	s.logger.WarnContext(ctx, "delivery rejected",
		"chain", s.chain.Selector(),
		"message_id", delivery.MessageID,
		"source", delivery.SourceSelector,
		"sender", delivery.Sender,
		"caller", caller,
		"reason", reason,
	)
	if s.notifier == nil {
		return
	}
	err := s.notifier.Emit(ctx, audit.Event{
		Action:    string(audit.EventMessageRejected),
		Chain:     s.chain.Selector(),
		Peer:      delivery.SourceSelector,
		Actor:     delivery.Sender,
		MessageID: delivery.MessageID,
		Reason:    reason,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", audit.EventMessageRejected,
			"error", err,
		)
	}
}

func (s *Service) emit(ctx context.Context, event audit.Event) error {
	if s.notifier == nil {
		return nil
	}
	if err := s.notifier.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to emit audit event")
	}
	return nil
}

// Lookup reads the local registry.
func (s *Service) Lookup(ctx context.Context, name id.Name) (id.Address, error) {
	return s.registry.Lookup(ctx, name)
}
