// Package registrar implements the source-chain entrypoint: it records a name
// locally and dispatches the update to every enabled destination chain in a
// single atomic transition.
package registrar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"ccns/internal/admin"
	"ccns/internal/messaging"
	"ccns/internal/registrar/metrics"
	id "ccns/pkg/domain"
	dErrors "ccns/pkg/domain-errors"
	audit "ccns/pkg/platform/audit"
	"ccns/pkg/platform/sentinel"
	"ccns/pkg/requestcontext"
)

// Registry is the local Name Registry the registrar is bound to as controller.
type Registry interface {
	SetAddress(ctx context.Context, caller id.Address, name id.Name, owner id.Address) error
	Lookup(ctx context.Context, name id.Name) (id.Address, error)
}

// Executor runs transitions on the source chain.
type Executor interface {
	Selector() id.ChainSelector
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	View(ctx context.Context, fn func(ctx context.Context) error) error
}

type Notifier interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the Registrar deployed at address on its source chain.
type Service struct {
	chain       Executor
	address     id.Address
	authority   *admin.Authority
	registry    Registry
	router      messaging.Router
	links       LinkStore
	fees        FeeLedger
	minGasLimit uint64

	notifier Notifier
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

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

// WithTracer sets the tracer for span instrumentation. A nil tracer keeps the
// default noop tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithMinGasLimit overrides DefaultMinGasLimit.
func WithMinGasLimit(limit uint64) Option {
	return func(s *Service) {
		s.minGasLimit = limit
	}
}

// Deps groups the collaborators every registrar needs.
type Deps struct {
	Chain     Executor
	Authority *admin.Authority
	Registry  Registry
	Router    messaging.Router
	Links     LinkStore
	Fees      FeeLedger
}

// New constructs the registrar deployed at address. The registrar must be
// bound as the registry's controller before Register can succeed.
func New(address id.Address, deps Deps, opts ...Option) (*Service, error) {
	if address.IsZero() {
		return nil, errors.New("registrar address is required")
	}
	if deps.Chain == nil {
		return nil, errors.New("chain is required")
	}
	if deps.Authority == nil {
		return nil, errors.New("admin authority is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("name registry is required")
	}
	if deps.Router == nil {
		return nil, errors.New("router is required")
	}
	if deps.Links == nil {
		return nil, errors.New("chain link store is required")
	}
	if deps.Fees == nil {
		return nil, errors.New("fee ledger is required")
	}

	s := &Service{
		chain:       deps.Chain,
		address:     address,
		authority:   deps.Authority,
		registry:    deps.Registry,
		router:      deps.Router,
		links:       deps.Links,
		fees:        deps.Fees,
		minGasLimit: DefaultMinGasLimit,
		tracer:      noop.NewTracerProvider().Tracer("noop"),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Address is where the registrar is deployed; destination receivers trust
// messages sent from it.
func (s *Service) Address() id.Address {
	return s.address
}

// EnableChain inserts or overwrites the link for selector. Overwriting keeps
// the link's dispatch position.
//
// Errors: CodePermissionDenied for non-admin callers, CodeInvalidConfig for a
// zero receiver, the registrar's own chain or a gas limit below the
// configured minimum.
func (s *Service) EnableChain(ctx context.Context, caller id.Address, selector id.ChainSelector, receiver id.Address, gasLimit uint64) error {
	if err := s.authority.Check(caller); err != nil {
		return err
	}
	if receiver.IsZero() {
		return dErrors.New(dErrors.CodeInvalidConfig, "receiver address is required")
	}
	if selector == s.chain.Selector() {
		return dErrors.New(dErrors.CodeInvalidConfig, "destination must differ from the source chain")
	}
	if gasLimit < s.minGasLimit {
		return dErrors.New(dErrors.CodeInvalidConfig,
			fmt.Sprintf("gas limit %d is below the minimum of %d", gasLimit, s.minGasLimit))
	}

	var enabled int
	err := s.chain.RunInTx(ctx, func(ctx context.Context) error {
		err := s.links.Upsert(ctx, ChainLink{
			Selector:  selector,
			Receiver:  receiver,
			GasLimit:  gasLimit,
			EnabledAt: requestcontext.Now(ctx),
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store chain link")
		}
		links, err := s.links.List(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list chain links")
		}
		enabled = len(links)
		return s.emit(ctx, audit.Event{
			Action: string(audit.EventChainEnabled),
			Chain:  s.chain.Selector(),
			Peer:   selector,
			Owner:  receiver,
			Actor:  caller,
		})
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.SetEnabledChains(enabled)
	}
	s.logger.InfoContext(ctx, "chain enabled",
		"chain", s.chain.Selector(),
		"destination", selector,
		"receiver", receiver,
		"gas_limit", gasLimit,
	)
	return nil
}

// Chains lists enabled links in dispatch order.
func (s *Service) Chains(ctx context.Context) ([]ChainLink, error) {
	var links []ChainLink
	err := s.chain.View(ctx, func(ctx context.Context) error {
		var err error
		links, err = s.links.List(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list chain links")
		}
		return nil
	})
	return links, err
}

// Chain returns one enabled link.
//
// Errors: CodeNotFound when selector was never enabled.
func (s *Service) Chain(ctx context.Context, selector id.ChainSelector) (ChainLink, error) {
	var link ChainLink
	err := s.chain.View(ctx, func(ctx context.Context) error {
		var err error
		link, err = s.links.Get(ctx, selector)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "chain is not enabled")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load chain link")
		}
		return nil
	})
	return link, err
}

// Fund credits the fee balance used to pay for dispatches.
func (s *Service) Fund(ctx context.Context, caller id.Address, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "amount must be positive")
	}
	var balance uint64
	err := s.chain.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.fees.Credit(ctx, amount); err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				return dErrors.Wrap(err, dErrors.CodeBadRequest, "amount overflows fee balance")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to credit fee balance")
		}
		var err error
		if balance, err = s.fees.Balance(ctx); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read fee balance")
		}
		return s.emit(ctx, audit.Event{
			Action: string(audit.EventFeesFunded),
			Chain:  s.chain.Selector(),
			Actor:  caller,
			Amount: amount,
		})
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Balance reads the fee balance.
func (s *Service) Balance(ctx context.Context) (uint64, error) {
	var balance uint64
	err := s.chain.View(ctx, func(ctx context.Context) error {
		var err error
		if balance, err = s.fees.Balance(ctx); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read fee balance")
		}
		return nil
	})
	return balance, err
}

// Lookup reads the local registry.
func (s *Service) Lookup(ctx context.Context, name id.Name) (id.Address, error) {
	return s.registry.Lookup(ctx, name)
}

// Register records name as owned by caller on the source chain and sends the
// update to every enabled chain in insertion order. Either the local write,
// every fee debit and every dispatch take effect, or none of them do.
// Register does not wait for destination chains to apply the update.
//
// Errors: CodeInvalidName before any state is touched; CodeInsufficientFee
// when the fee balance cannot cover the fees quoted for all links;
// CodePermissionDenied when the registrar is not the registry's controller.
func (s *Service) Register(ctx context.Context, caller id.Address, rawName string) (receipt *Receipt, err error) {
	ctx, span := s.tracer.Start(ctx, "registrar.register",
		trace.WithAttributes(
			attribute.String("ccns.name", rawName),
			attribute.String("ccns.caller", caller.String()),
			attribute.Int64("ccns.chain", int64(s.chain.Selector())),
		),
	)
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("ccns.dispatches", len(receipt.Dispatches)))
			span.SetStatus(codes.Ok, "")
		}
		span.End()
		s.observeRegister(start, err)
	}()

	name, err := id.ParseName(rawName)
	if err != nil {
		return nil, err
	}
	if caller.IsZero() {
		return nil, dErrors.New(dErrors.CodePermissionDenied, "caller address is required")
	}

	payload, err := messaging.EncodeNameUpdate(messaging.NameUpdate{Name: name, Owner: caller})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode name update")
	}

	receipt = &Receipt{Name: name, Owner: caller}
	err = s.chain.RunInTx(ctx, func(ctx context.Context) error {
		links, err := s.links.List(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list chain links")
		}

		messages := make([]messaging.Message, len(links))
		quotes := make([]uint64, len(links))
		var total uint64
		for i, link := range links {
			messages[i] = messaging.Message{
				Sender:   s.address,
				Receiver: link.Receiver,
				Data:     payload,
				GasLimit: link.GasLimit,
			}
			fee, err := s.router.GetFee(ctx, link.Selector, messages[i])
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to quote fee")
			}
			var carry uint64
			total, carry = bits.Add64(total, fee, 0)
			if carry != 0 {
				return dErrors.New(dErrors.CodeInsufficientFee, "quoted fees overflow")
			}
			quotes[i] = fee
		}

		balance, err := s.fees.Balance(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read fee balance")
		}
		if balance < total {
			return dErrors.New(dErrors.CodeInsufficientFee,
				fmt.Sprintf("fee balance %d cannot cover %d", balance, total))
		}

		if err := s.registry.SetAddress(ctx, s.address, name, caller); err != nil {
			return err
		}

		for i, link := range links {
			if err := s.fees.Debit(ctx, quotes[i]); err != nil {
				if errors.Is(err, sentinel.ErrInvalidState) {
					return dErrors.Wrap(err, dErrors.CodeInsufficientFee, "fee balance exhausted")
				}
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to debit fee balance")
			}
			msgID, err := s.router.Send(ctx, link.Selector, messages[i], quotes[i])
			if err != nil {
				if dErrors.HasCode(err, dErrors.CodeInsufficientFee) {
					return err
				}
				return dErrors.Wrap(err, dErrors.CodeInternal,
					fmt.Sprintf("failed to send to chain %s", link.Selector))
			}
			receipt.Dispatches = append(receipt.Dispatches, Dispatch{
				Selector:  link.Selector,
				MessageID: msgID,
				Fee:       quotes[i],
			})
			err = s.emit(ctx, audit.Event{
				Action:    string(audit.EventMessageDispatched),
				Chain:     s.chain.Selector(),
				Peer:      link.Selector,
				Name:      name,
				Owner:     caller,
				Actor:     caller,
				MessageID: msgID,
				Amount:    quotes[i],
			})
			if err != nil {
				return err
			}
		}

		return s.emit(ctx, audit.Event{
			Action: string(audit.EventNameRegistered),
			Chain:  s.chain.Selector(),
			Name:   name,
			Owner:  caller,
			Actor:  caller,
			Amount: total,
		})
	})
	if err != nil {
		s.logger.WarnContext(ctx, "register failed",
			"chain", s.chain.Selector(),
			"name", name,
			"caller", caller,
			"error", err,
		)
		return nil, err
	}

	if s.metrics != nil {
		for _, d := range receipt.Dispatches {
			s.metrics.IncrementDispatches(d.Selector)
		}
		s.metrics.AddFeesSpent(receipt.TotalFee())
	}
	s.logger.InfoContext(ctx, "name registered",
		"chain", s.chain.Selector(),
		"name", name,
		"owner", caller,
		"dispatches", len(receipt.Dispatches),
		"fee_total", receipt.TotalFee(),
	)
	return receipt, nil
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

func (s *Service) observeRegister(start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveRegisterDuration(time.Since(start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
	}
	s.metrics.IncrementRegistrations(outcome)
}
