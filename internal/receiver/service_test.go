package receiver_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"ccns/internal/admin"
	"ccns/internal/chain"
	"ccns/internal/messaging"
	"ccns/internal/names"
	namestore "ccns/internal/names/store"
	"ccns/internal/receiver"
	"ccns/internal/receiver/metrics"
	id "ccns/pkg/domain"
	dErrors "ccns/pkg/domain-errors"
	audit "ccns/pkg/platform/audit"
	"ccns/pkg/platform/audit/store/memory"
)

const (
	sourceSelector id.ChainSelector = 16015286601757825753
	destSelector   id.ChainSelector = 1000
)

type ReceiverSuite struct {
	suite.Suite
	ctx       context.Context
	chain     *chain.Chain
	authority *admin.Authority
	registry  *names.Registry
	names     *namestore.InMemory
	events    *memory.InMemoryStore
	metrics   *metrics.Metrics
	service   *receiver.Service

	deployer  id.Address
	router    id.Address
	registrar id.Address
	alice     id.Address
}

func TestReceiverSuite(t *testing.T) {
	suite.Run(t, new(ReceiverSuite))
}

func (s *ReceiverSuite) SetupTest() {
	s.ctx = context.Background()
	s.chain = chain.New(destSelector, "destination")
	s.deployer = id.NewRandomAddress()
	s.router = id.NewRandomAddress()
	s.registrar = id.NewRandomAddress()
	s.alice = id.NewRandomAddress()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var err error
	s.authority, err = admin.NewAuthority(s.deployer)
	s.Require().NoError(err)

	s.events = memory.NewInMemoryStore()
	publisher := audit.NewPublisher(s.events)
	s.names = namestore.NewInMemory()
	s.registry, err = names.New(s.chain, s.names, s.authority, names.WithNotifier(publisher))
	s.Require().NoError(err)

	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service, err = receiver.New(s.chain, s.registry, s.authority, s.deployer, s.config(),
		receiver.WithLogger(logger),
		receiver.WithNotifier(publisher),
		receiver.WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
	s.Require().NoError(s.registry.BindController(s.ctx, s.deployer, s.service.Address()))
}

func (s *ReceiverSuite) config() receiver.Config {
	return receiver.Config{
		Address: id.NewRandomAddress(),
		Router:  s.router,
		Trusted: receiver.TrustedSender{SourceSelector: sourceSelector, Registrar: s.registrar},
	}
}

func (s *ReceiverSuite) delivery(name string, owner id.Address) messaging.Delivery {
	data, err := messaging.EncodeNameUpdate(messaging.NameUpdate{Name: id.Name(name), Owner: owner})
	s.Require().NoError(err)
	return messaging.Delivery{
		MessageID:      id.NewMessageID(),
		SourceSelector: sourceSelector,
		Sender:         s.registrar,
		Data:           data,
	}
}

func (s *ReceiverSuite) lookup(name id.Name) id.Address {
	owner, err := s.service.Lookup(s.ctx, name)
	s.Require().NoError(err)
	return owner
}

func (s *ReceiverSuite) TestNew() {
	s.Run("non-admin deployer is denied", func() {
		_, err := receiver.New(s.chain, s.registry, s.authority, s.alice, s.config())
		s.True(dErrors.HasCode(err, dErrors.CodePermissionDenied))
	})

	s.Run("zero addresses are invalid", func() {
		for desc, mutate := range map[string]func(c *receiver.Config){
			"receiver":  func(c *receiver.Config) { c.Address = id.ZeroAddress },
			"router":    func(c *receiver.Config) { c.Router = id.ZeroAddress },
			"registrar": func(c *receiver.Config) { c.Trusted.Registrar = id.ZeroAddress },
		} {
			cfg := s.config()
			mutate(&cfg)
			_, err := receiver.New(s.chain, s.registry, s.authority, s.deployer, cfg)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidConfig), desc)
		}
	})

	s.Run("requires collaborators", func() {
		_, err := receiver.New(nil, s.registry, s.authority, s.deployer, s.config())
		s.Error(err)
		_, err = receiver.New(s.chain, nil, s.authority, s.deployer, s.config())
		s.Error(err)
		_, err = receiver.New(s.chain, s.registry, nil, s.deployer, s.config())
		s.Error(err)
	})
}

func (s *ReceiverSuite) TestReceiveApplies() {
	d := s.delivery("alice.ccns", s.alice)
	s.Require().NoError(s.service.Receive(s.ctx, s.router, d))

	s.Equal(s.alice, s.lookup("alice.ccns"))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.DeliveriesAccepted))

	applied, err := s.events.ListByAction(s.ctx, audit.EventMessageApplied)
	s.Require().NoError(err)
	s.Require().Len(applied, 1)
	s.Equal(d.MessageID, applied[0].MessageID)
	s.Equal(sourceSelector, applied[0].Peer)
}

func (s *ReceiverSuite) TestRedeliveryIsIdempotent() {
	d := s.delivery("alice.ccns", s.alice)
	for i := 0; i < 3; i++ {
		s.Require().NoError(s.service.Receive(s.ctx, s.router, d))
	}
	s.Equal(s.alice, s.lookup("alice.ccns"))
	s.Equal(1, s.names.Len())
}

func (s *ReceiverSuite) TestLaterDeliveryOverwrites() {
	bob := id.NewRandomAddress()
	s.Require().NoError(s.service.Receive(s.ctx, s.router, s.delivery("shared.ccns", s.alice)))
	s.Require().NoError(s.service.Receive(s.ctx, s.router, s.delivery("shared.ccns", bob)))
	s.Equal(bob, s.lookup("shared.ccns"))
}

func (s *ReceiverSuite) TestRejections() {
	base := s.delivery("alice.ccns", s.alice)

	cases := []struct {
		name   string
		caller id.Address
		mutate func(d *messaging.Delivery)
		code   dErrors.Code
	}{
		{
			name:   "caller is not the router",
			caller: id.NewRandomAddress(),
			code:   dErrors.CodePermissionDenied,
		},
		{
			name:   "untrusted source",
			caller: s.router,
			mutate: func(d *messaging.Delivery) { d.SourceSelector = 42 },
			code:   dErrors.CodeUntrustedSource,
		},
		{
			name:   "untrusted sender",
			caller: s.router,
			mutate: func(d *messaging.Delivery) { d.Sender = id.NewRandomAddress() },
			code:   dErrors.CodeUntrustedSender,
		},
		{
			name:   "source checked before sender",
			caller: s.router,
			mutate: func(d *messaging.Delivery) {
				d.SourceSelector = 42
				d.Sender = id.NewRandomAddress()
			},
			code: dErrors.CodeUntrustedSource,
		},
		{
			name:   "malformed payload",
			caller: s.router,
			mutate: func(d *messaging.Delivery) { d.Data = []byte("garbage") },
			code:   dErrors.CodeMalformedPayload,
		},
		{
			name:   "zero owner",
			caller: s.router,
			mutate: func(d *messaging.Delivery) {
				d.Data = []byte(`{"name":"alice.ccns","owner":"0x0000000000000000000000000000000000000000"}`)
			},
			code: dErrors.CodeMalformedPayload,
		},
		{
			name:   "empty name",
			caller: s.router,
			mutate: func(d *messaging.Delivery) {
				d.Data = []byte(`{"name":"","owner":"` + s.alice.String() + `"}`)
			},
			code: dErrors.CodeMalformedPayload,
		},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			d := base
			if tc.mutate != nil {
				tc.mutate(&d)
			}
			err := s.service.Receive(s.ctx, tc.caller, d)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, tc.code), "got %v", err)
			s.True(messaging.IsRejected(err))
		})
	}

	s.Equal(0, s.names.Len(), "rejected deliveries change nothing")
	s.Equal(id.ZeroAddress, s.lookup("alice.ccns"))

	rejected, err := s.events.ListByAction(s.ctx, audit.EventMessageRejected)
	s.Require().NoError(err)
	s.Len(rejected, len(cases))
	s.Equal(float64(2), testutil.ToFloat64(s.metrics.DeliveriesRejected.WithLabelValues(string(dErrors.CodeUntrustedSource))))
}

func (s *ReceiverSuite) TestReceiveRequiresControllerBinding() {
	registry, err := names.New(s.chain, namestore.NewInMemory(), s.authority)
	s.Require().NoError(err)
	svc, err := receiver.New(s.chain, registry, s.authority, s.deployer, s.config())
	s.Require().NoError(err)

	err = svc.Receive(s.ctx, s.router, s.delivery("alice.ccns", s.alice))
	s.True(dErrors.HasCode(err, dErrors.CodePermissionDenied))
	s.False(messaging.IsRejected(err), "an unbound registry is not a rejected message")
}
