package local

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"ccns/internal/chain"
	"ccns/internal/messaging"
	id "ccns/pkg/domain"
	dErrors "ccns/pkg/domain-errors"
)

type recordingReceiver struct {
	mu         sync.Mutex
	callers    []id.Address
	deliveries []messaging.Delivery
	err        error
}

func (r *recordingReceiver) Receive(_ context.Context, caller id.Address, d messaging.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callers = append(r.callers, caller)
	r.deliveries = append(r.deliveries, d)
	return r.err
}

type NetworkSuite struct {
	suite.Suite
	ctx      context.Context
	network  *Network
	source   *chain.Chain
	receiver *recordingReceiver
	addr     id.Address
	sender   id.Address
}

func TestNetworkSuite(t *testing.T) {
	suite.Run(t, new(NetworkSuite))
}

func (s *NetworkSuite) SetupTest() {
	s.ctx = context.Background()
	s.network = NewNetwork(WithFeeSchedule(messaging.FeeSchedule{Base: 100, PerByte: 1}))
	s.source = chain.New(1, "source")
	s.receiver = &recordingReceiver{}
	s.addr = id.NewRandomAddress()
	s.sender = id.NewRandomAddress()
	s.network.Attach(1000, s.addr, s.receiver)
}

func (s *NetworkSuite) message() messaging.Message {
	return messaging.Message{Sender: s.sender, Receiver: s.addr, Data: []byte("hello"), GasLimit: 200_000}
}

func (s *NetworkSuite) TestQuote() {
	fee, err := s.network.Router(1).GetFee(s.ctx, 1000, s.message())
	s.Require().NoError(err)
	s.Equal(uint64(105), fee)

	s.network.SetFeeSchedule(messaging.FeeSchedule{Base: 1})
	fee, err = s.network.Router(1).GetFee(s.ctx, 1000, s.message())
	s.Require().NoError(err)
	s.Equal(uint64(1), fee)
}

func (s *NetworkSuite) TestSendReleasesOnCommit() {
	router := s.network.Router(1)

	var msgID id.MessageID
	err := s.source.RunInTx(s.ctx, func(ctx context.Context) error {
		var err error
		msgID, err = router.Send(ctx, 1000, s.message(), 105)
		if err != nil {
			return err
		}
		s.Equal(0, s.network.Pending(), "nothing leaves the chain before commit")
		return nil
	})
	s.Require().NoError(err)
	s.Equal(1, s.network.Pending())

	results := s.network.DeliverAll(s.ctx)
	s.Require().Len(results, 1)
	s.NoError(results[0].Err)
	s.Require().Len(s.receiver.deliveries, 1)
	s.Equal(msgID, s.receiver.deliveries[0].MessageID)
	s.Equal(id.ChainSelector(1), s.receiver.deliveries[0].SourceSelector)
	s.Equal(s.sender, s.receiver.deliveries[0].Sender)
	s.Equal(s.network.RouterAddress(), s.receiver.callers[0])
}

func (s *NetworkSuite) TestSendDiscardedOnRollback() {
	router := s.network.Router(1)
	boom := errors.New("boom")

	err := s.source.RunInTx(s.ctx, func(ctx context.Context) error {
		if _, err := router.Send(ctx, 1000, s.message(), 105); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)
	s.Equal(0, s.network.Pending())
	s.Empty(s.network.Sent())
}

func (s *NetworkSuite) TestSendRejects() {
	router := s.network.Router(1)

	s.Run("fee below quote", func() {
		_, err := router.Send(s.ctx, 1000, s.message(), 104)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFee))
	})
	s.Run("destination equals source", func() {
		_, err := router.Send(s.ctx, 1, s.message(), 105)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidConfig))
	})
	s.Equal(0, s.network.Pending())
}

func (s *NetworkSuite) TestDeliveryFailures() {
	router := s.network.Router(1)

	s.Run("unknown receiver", func() {
		msg := s.message()
		msg.Receiver = id.NewRandomAddress()
		_, err := router.Send(s.ctx, 1000, msg, 105)
		s.Require().NoError(err)

		res, ok := s.network.DeliverNext(s.ctx)
		s.Require().True(ok)
		s.Error(res.Err)
	})

	s.Run("receiver error is reported and dropped", func() {
		s.receiver.err = errors.New("rejected")
		_, err := router.Send(s.ctx, 1000, s.message(), 105)
		s.Require().NoError(err)

		results := s.network.DeliverAll(s.ctx)
		s.Require().Len(results, 1)
		s.EqualError(results[0].Err, "rejected")
		s.Equal(0, s.network.Pending())
	})
}

func (s *NetworkSuite) TestRedeliver() {
	router := s.network.Router(1)
	msgID, err := router.Send(s.ctx, 1000, s.message(), 105)
	s.Require().NoError(err)
	s.network.DeliverAll(s.ctx)

	s.Require().NoError(s.network.Redeliver(msgID))
	s.network.DeliverAll(s.ctx)

	s.Require().Len(s.receiver.deliveries, 2)
	s.Equal(s.receiver.deliveries[0], s.receiver.deliveries[1])
	s.ErrorIs(s.network.Redeliver(id.NewMessageID()), ErrUnknownMessage)
}

func TestSendCopiesPayload(t *testing.T) {
	n := NewNetwork()
	addr := id.NewRandomAddress()
	rec := &recordingReceiver{}
	n.Attach(2, addr, rec)

	data := []byte("payload")
	msg := messaging.Message{Receiver: addr, Data: data}
	_, err := n.Router(1).Send(context.Background(), 2, msg, n.Quote(msg))
	require.NoError(t, err)
	data[0] = 'X'

	n.DeliverAll(context.Background())
	require.Len(t, rec.deliveries, 1)
	assert.Equal(t, []byte("payload"), rec.deliveries[0].Data)
}
