package registrar_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"

	"ccns/internal/admin"
	"ccns/internal/chain"
	"ccns/internal/messaging"
	"ccns/internal/messaging/local"
	msgmocks "ccns/internal/messaging/mocks"
	"ccns/internal/names"
	namestore "ccns/internal/names/store"
	"ccns/internal/registrar"
	"ccns/internal/registrar/metrics"
	"ccns/internal/registrar/store"
	id "ccns/pkg/domain"
	dErrors "ccns/pkg/domain-errors"
	audit "ccns/pkg/platform/audit"
	"ccns/pkg/platform/audit/store/memory"
)

const sourceSelector id.ChainSelector = 16015286601757825753

type RegistrarSuite struct {
	suite.Suite
	ctx       context.Context
	network   *local.Network
	chain     *chain.Chain
	authority *admin.Authority
	registry  *names.Registry
	names     *namestore.InMemory
	links     *store.InMemoryLinks
	fees      *store.InMemoryLedger
	events    *memory.InMemoryStore
	metrics   *metrics.Metrics
	exporter  *tracetest.InMemoryExporter
	service   *registrar.Service

	deployer id.Address
	address  id.Address
	alice    id.Address
}

func TestRegistrarSuite(t *testing.T) {
	suite.Run(t, new(RegistrarSuite))
}

func (s *RegistrarSuite) SetupTest() {
	s.ctx = context.Background()
	s.network = local.NewNetwork(local.WithFeeSchedule(messaging.FeeSchedule{Base: 100, PerByte: 1}))
	s.chain = chain.New(sourceSelector, "source")
	s.deployer = id.NewRandomAddress()
	s.address = id.NewRandomAddress()
	s.alice = id.NewRandomAddress()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var err error
	s.authority, err = admin.NewAuthority(s.deployer)
	s.Require().NoError(err)

	s.events = memory.NewInMemoryStore()
	publisher := audit.NewPublisher(s.events)
	s.names = namestore.NewInMemory()
	s.registry, err = names.New(s.chain, s.names, s.authority,
		names.WithLogger(logger),
		names.WithNotifier(publisher),
	)
	s.Require().NoError(err)

	s.links = store.NewInMemoryLinks()
	s.fees = store.NewInMemoryLedger(10_000)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.exporter = tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(s.exporter))

	s.service = s.newService(s.network.Router(sourceSelector),
		registrar.WithLogger(logger),
		registrar.WithNotifier(publisher),
		registrar.WithMetrics(s.metrics),
		registrar.WithTracer(provider.Tracer("test-tracer")),
	)
	s.Require().NoError(s.registry.BindController(s.ctx, s.deployer, s.address))
}

func (s *RegistrarSuite) newService(router messaging.Router, opts ...registrar.Option) *registrar.Service {
	svc, err := registrar.New(s.address, registrar.Deps{
		Chain:     s.chain,
		Authority: s.authority,
		Registry:  s.registry,
		Router:    router,
		Links:     s.links,
		Fees:      s.fees,
	}, opts...)
	s.Require().NoError(err)
	return svc
}

func (s *RegistrarSuite) enable(selector id.ChainSelector) id.Address {
	receiver := id.NewRandomAddress()
	s.Require().NoError(s.service.EnableChain(s.ctx, s.deployer, selector, receiver, 200_000))
	return receiver
}

func (s *RegistrarSuite) balance() uint64 {
	b, err := s.service.Balance(s.ctx)
	s.Require().NoError(err)
	return b
}

func (s *RegistrarSuite) lookup(name id.Name) id.Address {
	owner, err := s.service.Lookup(s.ctx, name)
	s.Require().NoError(err)
	return owner
}

func (s *RegistrarSuite) assertUntouched(balance uint64) {
	s.Equal(0, s.names.Len())
	s.Equal(balance, s.balance())
	s.Equal(0, s.network.Pending())
	s.Empty(s.network.Sent())
	dispatched, err := s.events.ListByAction(s.ctx, audit.EventMessageDispatched)
	s.Require().NoError(err)
	s.Empty(dispatched)
}

func (s *RegistrarSuite) TestNew() {
	base := registrar.Deps{
		Chain:     s.chain,
		Authority: s.authority,
		Registry:  s.registry,
		Router:    s.network.Router(sourceSelector),
		Links:     s.links,
		Fees:      s.fees,
	}
	cases := map[string]func(d *registrar.Deps){
		"chain":     func(d *registrar.Deps) { d.Chain = nil },
		"authority": func(d *registrar.Deps) { d.Authority = nil },
		"registry":  func(d *registrar.Deps) { d.Registry = nil },
		"router":    func(d *registrar.Deps) { d.Router = nil },
		"links":     func(d *registrar.Deps) { d.Links = nil },
		"fees":      func(d *registrar.Deps) { d.Fees = nil },
	}
	for missing, mutate := range cases {
		s.Run("requires "+missing, func() {
			deps := base
			mutate(&deps)
			_, err := registrar.New(s.address, deps)
			s.Error(err)
		})
	}
	s.Run("requires address", func() {
		_, err := registrar.New(id.ZeroAddress, base)
		s.Error(err)
	})
}

func (s *RegistrarSuite) TestEnableChain() {
	s.Run("non-admin is denied", func() {
		err := s.service.EnableChain(s.ctx, s.alice, 1000, id.NewRandomAddress(), 200_000)
		s.True(dErrors.HasCode(err, dErrors.CodePermissionDenied))
	})

	s.Run("zero receiver is invalid", func() {
		err := s.service.EnableChain(s.ctx, s.deployer, 1000, id.ZeroAddress, 200_000)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidConfig))
	})

	s.Run("gas limit below minimum is invalid", func() {
		err := s.service.EnableChain(s.ctx, s.deployer, 1000, id.NewRandomAddress(), registrar.DefaultMinGasLimit-1)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidConfig))
	})

	s.Run("own chain is invalid", func() {
		err := s.service.EnableChain(s.ctx, s.deployer, sourceSelector, id.NewRandomAddress(), 200_000)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidConfig))
	})

	links, err := s.service.Chains(s.ctx)
	s.Require().NoError(err)
	s.Empty(links, "rejected calls leave the table untouched")

	s.Run("register still succeeds after rejected calls", func() {
		receipt, err := s.service.Register(s.ctx, s.alice, "alice.ccns")
		s.Require().NoError(err)
		s.Empty(receipt.Dispatches)
	})

	s.Run("overwrite keeps insertion position", func() {
		s.enable(1000)
		s.enable(2000)
		replacement := s.enable(1000)

		links, err := s.service.Chains(s.ctx)
		s.Require().NoError(err)
		s.Require().Len(links, 2)
		s.Equal(id.ChainSelector(1000), links[0].Selector)
		s.Equal(replacement, links[0].Receiver)
		s.Equal(id.ChainSelector(2000), links[1].Selector)
		s.Equal(float64(2), testutil.ToFloat64(s.metrics.EnabledChains))
	})

	s.Run("chain lookup", func() {
		link, err := s.service.Chain(s.ctx, 2000)
		s.Require().NoError(err)
		s.Equal(uint64(200_000), link.GasLimit)

		_, err = s.service.Chain(s.ctx, 3000)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *RegistrarSuite) TestEnableChainCustomMinimum() {
	svc := s.newService(s.network.Router(sourceSelector), registrar.WithMinGasLimit(500_000))
	err := svc.EnableChain(s.ctx, s.deployer, 1000, id.NewRandomAddress(), 200_000)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidConfig))
	s.NoError(svc.EnableChain(s.ctx, s.deployer, 1000, id.NewRandomAddress(), 500_000))
}

func (s *RegistrarSuite) TestRegisterWithoutLinks() {
	receipt, err := s.service.Register(s.ctx, s.alice, "alice.ccns")
	s.Require().NoError(err)
	s.Empty(receipt.Dispatches)
	s.Equal(s.alice, s.lookup("alice.ccns"))
	s.Equal(uint64(10_000), s.balance())
}

func (s *RegistrarSuite) TestRegisterDispatchesInInsertionOrder() {
	first := s.enable(3000)
	second := s.enable(1000)

	receipt, err := s.service.Register(s.ctx, s.alice, "alice.ccns")
	s.Require().NoError(err)

	s.Equal(s.alice, s.lookup("alice.ccns"))
	s.Require().Len(receipt.Dispatches, 2)
	s.Equal(id.ChainSelector(3000), receipt.Dispatches[0].Selector)
	s.Equal(id.ChainSelector(1000), receipt.Dispatches[1].Selector)

	sent := s.network.Sent()
	s.Require().Len(sent, 2)
	s.Equal(first, sent[0].Message.Receiver)
	s.Equal(second, sent[1].Message.Receiver)
	for i, env := range sent {
		s.Equal(receipt.Dispatches[i].MessageID, env.ID)
		s.Equal(s.address, env.Message.Sender)
		s.Equal(uint64(200_000), env.Message.GasLimit)

		update, err := messaging.DecodeNameUpdate(env.Message.Data)
		s.Require().NoError(err)
		s.Equal(id.Name("alice.ccns"), update.Name)
		s.Equal(s.alice, update.Owner)
	}

	s.Equal(uint64(10_000)-receipt.TotalFee(), s.balance())
	s.Equal(float64(receipt.TotalFee()), testutil.ToFloat64(s.metrics.FeesSpentTotal))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.RegistrationsTotal.WithLabelValues("ok")))

	registered, err := s.events.ListByAction(s.ctx, audit.EventNameRegistered)
	s.Require().NoError(err)
	s.Len(registered, 1)
}

func (s *RegistrarSuite) TestRegisterOverwritesLastWriteWins() {
	s.enable(1000)
	bob := id.NewRandomAddress()

	_, err := s.service.Register(s.ctx, s.alice, "shared.ccns")
	s.Require().NoError(err)
	_, err = s.service.Register(s.ctx, bob, "shared.ccns")
	s.Require().NoError(err)

	s.Equal(bob, s.lookup("shared.ccns"))
	s.Len(s.network.Sent(), 2)
}

func (s *RegistrarSuite) TestRegisterInvalidName() {
	s.enable(1000)

	for _, raw := range []string{"alice", "", "ccns", "alice.CCNS", "alice.ccns.eth"} {
		_, err := s.service.Register(s.ctx, s.alice, raw)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidName), raw)
	}
	s.assertUntouched(10_000)
	s.Equal(float64(5), testutil.ToFloat64(s.metrics.RegistrationsTotal.WithLabelValues(string(dErrors.CodeInvalidName))))
}

func (s *RegistrarSuite) TestRegisterBareSuffix() {
	receipt, err := s.service.Register(s.ctx, s.alice, ".ccns")
	s.Require().NoError(err)
	s.Equal(id.Name(".ccns"), receipt.Name)
	s.Equal(s.alice, s.lookup(".ccns"))
}

func (s *RegistrarSuite) TestRegisterInsufficientFee() {
	s.enable(1000)
	s.enable(2000)

	s.Require().NoError(s.fees.Debit(s.ctx, s.balance()))
	_, err := s.service.Fund(s.ctx, s.deployer, 150)
	s.Require().NoError(err)

	_, err = s.service.Register(s.ctx, s.alice, "alice.ccns")
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFee))
	s.assertUntouched(150)
}

func (s *RegistrarSuite) TestRegisterRequiresControllerBinding() {
	unbound, err := names.New(s.chain, namestore.NewInMemory(), s.authority)
	s.Require().NoError(err)
	svc, err := registrar.New(s.address, registrar.Deps{
		Chain:     s.chain,
		Authority: s.authority,
		Registry:  unbound,
		Router:    s.network.Router(sourceSelector),
		Links:     s.links,
		Fees:      s.fees,
	})
	s.Require().NoError(err)
	s.enable(1000)

	_, err = svc.Register(s.ctx, s.alice, "alice.ccns")
	s.True(dErrors.HasCode(err, dErrors.CodePermissionDenied))
	s.assertUntouched(10_000)
}

func (s *RegistrarSuite) TestRegisterSendFailureRevertsEverything() {
	ctrl := gomock.NewController(s.T())
	router := msgmocks.NewMockRouter(ctrl)
	svc := s.newService(router)
	s.enable(1000)
	s.enable(2000)

	gomock.InOrder(
		router.EXPECT().GetFee(gomock.Any(), id.ChainSelector(1000), gomock.Any()).Return(uint64(10), nil),
		router.EXPECT().GetFee(gomock.Any(), id.ChainSelector(2000), gomock.Any()).Return(uint64(20), nil),
		router.EXPECT().Send(gomock.Any(), id.ChainSelector(1000), gomock.Any(), uint64(10)).Return(id.NewMessageID(), nil),
		router.EXPECT().Send(gomock.Any(), id.ChainSelector(2000), gomock.Any(), uint64(20)).Return(id.MessageID{}, errors.New("router unavailable")),
	)

	_, err := svc.Register(s.ctx, s.alice, "alice.ccns")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.assertUntouched(10_000)
}

func (s *RegistrarSuite) TestRegisterQuoteFailure() {
	ctrl := gomock.NewController(s.T())
	router := msgmocks.NewMockRouter(ctrl)
	svc := s.newService(router)
	s.enable(1000)

	router.EXPECT().GetFee(gomock.Any(), id.ChainSelector(1000), gomock.Any()).Return(uint64(0), errors.New("no quote"))

	_, err := svc.Register(s.ctx, s.alice, "alice.ccns")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.assertUntouched(10_000)
}

func (s *RegistrarSuite) TestRegisterFeeOverflow() {
	ctrl := gomock.NewController(s.T())
	router := msgmocks.NewMockRouter(ctrl)
	svc := s.newService(router)
	s.enable(1000)
	s.enable(2000)

	router.EXPECT().GetFee(gomock.Any(), gomock.Any(), gomock.Any()).Return(^uint64(0), nil).Times(2)

	_, err := svc.Register(s.ctx, s.alice, "alice.ccns")
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFee))
	s.assertUntouched(10_000)
}

func (s *RegistrarSuite) TestRegisterQuotesFreshFees() {
	s.enable(1000)
	first, err := s.service.Register(s.ctx, s.alice, "a.ccns")
	s.Require().NoError(err)

	s.network.SetFeeSchedule(messaging.FeeSchedule{Base: 500})
	second, err := s.service.Register(s.ctx, s.alice, "b.ccns")
	s.Require().NoError(err)

	s.NotEqual(first.Dispatches[0].Fee, second.Dispatches[0].Fee)
	s.Equal(uint64(500), second.Dispatches[0].Fee)
}

func (s *RegistrarSuite) TestRegisterTracing() {
	s.enable(1000)
	_, err := s.service.Register(s.ctx, s.alice, "alice.ccns")
	s.Require().NoError(err)
	_, err = s.service.Register(s.ctx, s.alice, "alice")
	s.Require().Error(err)

	spans := s.exporter.GetSpans()
	s.Require().Len(spans, 2)
	s.Equal("registrar.register", spans[0].Name)
	s.Equal(codes.Ok, spans[0].Status.Code)
	s.Equal(codes.Error, spans[1].Status.Code)
}

func (s *RegistrarSuite) TestFund() {
	s.Run("rejects zero", func() {
		_, err := s.service.Fund(s.ctx, s.deployer, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("credits balance", func() {
		balance, err := s.service.Fund(s.ctx, s.alice, 500)
		s.Require().NoError(err)
		s.Equal(uint64(10_500), balance)
		s.Equal(uint64(10_500), s.balance())
	})

	s.Run("rejects overflow", func() {
		_, err := s.service.Fund(s.ctx, s.alice, ^uint64(0))
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
		s.Equal(uint64(10_500), s.balance())
	})
}
