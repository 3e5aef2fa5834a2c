package httptransport_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"ccns/internal/admin"
	"ccns/internal/chain"
	"ccns/internal/messaging"
	"ccns/internal/messaging/local"
	"ccns/internal/names"
	namestore "ccns/internal/names/store"
	"ccns/internal/registrar"
	"ccns/internal/registrar/store"
	httptransport "ccns/internal/transport/http"
	id "ccns/pkg/domain"
	audit "ccns/pkg/platform/audit"
	"ccns/pkg/platform/audit/store/memory"
	authmw "ccns/pkg/platform/middleware/auth"
	request "ccns/pkg/platform/middleware/request"
	"ccns/pkg/testutil"
)

const (
	sourceSelector id.ChainSelector = 16015286601757825753
	destSelector   id.ChainSelector = 1000
)

// staticValidator accepts tokens of the form "token-<address>".
type staticValidator struct{}

func (staticValidator) ValidateToken(token string) (*authmw.JWTClaims, error) {
	raw, ok := strings.CutPrefix(token, "token-")
	if !ok {
		return nil, errors.New("bad token")
	}
	addr, err := id.ParseAddress(raw)
	if err != nil {
		return nil, err
	}
	return &authmw.JWTClaims{Caller: addr, JTI: "jti-" + raw}, nil
}

type HandlerSuite struct {
	suite.Suite
	ctx       context.Context
	network   *local.Network
	registrar *registrar.Service
	router    http.Handler
	deployer  id.Address
	alice     id.Address
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctx = context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.network = local.NewNetwork(local.WithFeeSchedule(messaging.FeeSchedule{Base: 100, PerByte: 1}))
	s.deployer = id.NewRandomAddress()
	s.alice = id.NewRandomAddress()

	c := chain.New(sourceSelector, "source")
	authority, err := admin.NewAuthority(s.deployer)
	s.Require().NoError(err)
	publisher := audit.NewPublisher(memory.NewInMemoryStore())
	registry, err := names.New(c, namestore.NewInMemory(), authority, names.WithNotifier(publisher))
	s.Require().NoError(err)

	address := id.NewRandomAddress()
	s.registrar, err = registrar.New(address, registrar.Deps{
		Chain:     c,
		Authority: authority,
		Registry:  registry,
		Router:    s.network.Router(sourceSelector),
		Links:     store.NewInMemoryLinks(),
		Fees:      store.NewInMemoryLedger(0),
	}, registrar.WithNotifier(publisher))
	s.Require().NoError(err)
	s.Require().NoError(registry.BindController(s.ctx, s.deployer, address))

	s.router = httptransport.NewRouter(httptransport.RouterConfig{
		Names:     httptransport.NewNamesHandler(s.registrar, s.registrar, logger).WithHistory(publisher),
		Admin:     httptransport.NewAdminHandler(s.registrar, logger),
		Authority: authority,
		Validator: staticValidator{},
		Health:    func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) },
		Logger:    logger,
	})
}

func (s *HandlerSuite) do(method, path string, caller id.Address, body string) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(method, path, body)
	if !caller.IsZero() {
		req = testutil.WithBearer(req, "token-"+caller.String())
	}
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func (s *HandlerSuite) enableAndFund() {
	rec := s.do(http.MethodPost, "/v1/admin/chains", s.deployer,
		`{"selector":"1000","receiver":"`+id.NewRandomAddress().String()+`","gas_limit":200000}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(http.MethodPost, "/v1/admin/fees", s.deployer, `{"amount":5000}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
}

func (s *HandlerSuite) TestHealthAndRequestID() {
	rec := s.do(http.MethodGet, "/health", id.ZeroAddress, "")
	s.Equal(http.StatusOK, rec.Code)
	s.NotEmpty(rec.Header().Get(request.HeaderRequestID))
}

func (s *HandlerSuite) TestLookup() {
	s.Run("unset name resolves to zero address", func() {
		rec := s.do(http.MethodGet, "/v1/names/alice.ccns", id.ZeroAddress, "")
		s.Require().Equal(http.StatusOK, rec.Code)
		var resp httptransport.NameResponse
		s.decode(rec, &resp)
		s.Equal("alice.ccns", resp.Name)
		s.True(resp.Owner.IsZero())
	})

	s.Run("empty name is rejected", func() {
		rec := s.do(http.MethodGet, "/v1/names/%20", id.ZeroAddress, "")
		testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "invalid_name")
	})
}

func (s *HandlerSuite) TestRegister() {
	s.Run("requires authentication", func() {
		rec := s.do(http.MethodPost, "/v1/names", id.ZeroAddress, `{"name":"alice.ccns"}`)
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("rejects unknown fields", func() {
		rec := s.do(http.MethodPost, "/v1/names", s.alice, `{"name":"alice.ccns","extra":1}`)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "bad_request")
	})

	s.Run("unfunded registrar reports insufficient fee", func() {
		rec := s.do(http.MethodPost, "/v1/admin/chains", s.deployer,
			`{"selector":"1000","receiver":"`+id.NewRandomAddress().String()+`","gas_limit":200000}`)
		s.Require().Equal(http.StatusOK, rec.Code)

		rec = s.do(http.MethodPost, "/v1/names", s.alice, `{"name":"alice.ccns"}`)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusPaymentRequired, "insufficient_fee")
	})
}

func (s *HandlerSuite) TestRegisterDispatches() {
	s.enableAndFund()

	rec := s.do(http.MethodPost, "/v1/names", s.alice, `{"name":"alice.ccns"}`)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var resp httptransport.ReceiptResponse
	s.decode(rec, &resp)
	s.Equal("alice.ccns", resp.Name)
	s.Equal(s.alice, resp.Owner)
	s.Require().Len(resp.Dispatches, 1)
	s.Equal("1000", resp.Dispatches[0].Selector)
	s.NotEmpty(resp.Dispatches[0].MessageID)
	s.Equal(resp.Dispatches[0].Fee, resp.TotalFee)
	s.Equal(1, s.network.Pending())

	rec = s.do(http.MethodGet, "/v1/names/alice.ccns", id.ZeroAddress, "")
	var lookup httptransport.NameResponse
	s.decode(rec, &lookup)
	s.Equal(s.alice, lookup.Owner)

	rec = s.do(http.MethodGet, "/v1/admin/fees", s.deployer, "")
	var balance httptransport.BalanceResponse
	s.decode(rec, &balance)
	s.Equal(5000-resp.TotalFee, balance.Balance)
}

func (s *HandlerSuite) TestHistory() {
	s.enableAndFund()
	rec := s.do(http.MethodPost, "/v1/names", s.alice, `{"name":"alice.ccns"}`)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/v1/names/alice.ccns/events", id.ZeroAddress, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var events []httptransport.EventResponse
	s.decode(rec, &events)

	actions := make([]string, 0, len(events))
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	s.Equal([]string{
		string(audit.EventAddressSet),
		string(audit.EventMessageDispatched),
		string(audit.EventNameRegistered),
	}, actions)
	s.Equal("1000", events[1].Peer)
	s.NotEmpty(events[1].MessageID)
	s.NotZero(events[1].Amount)
}

func (s *HandlerSuite) TestAdmin() {
	s.Run("non admin is forbidden", func() {
		rec := s.do(http.MethodGet, "/v1/admin/chains", s.alice, "")
		testutil.AssertStatusAndError(s.T(), rec, http.StatusForbidden, "permission_denied")
	})

	s.Run("enable rejects the zero receiver", func() {
		rec := s.do(http.MethodPost, "/v1/admin/chains", s.deployer,
			`{"selector":"1000","receiver":"`+id.ZeroAddress.String()+`","gas_limit":200000}`)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "invalid_config")
	})

	s.Run("enable rejects a malformed selector", func() {
		rec := s.do(http.MethodPost, "/v1/admin/chains", s.deployer,
			`{"selector":"-1","receiver":"`+id.NewRandomAddress().String()+`","gas_limit":200000}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("enable lists links in order", func() {
		for _, sel := range []string{"1000", "2000"} {
			rec := s.do(http.MethodPost, "/v1/admin/chains", s.deployer,
				`{"selector":"`+sel+`","receiver":"`+id.NewRandomAddress().String()+`","gas_limit":200000}`)
			s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
		}
		rec := s.do(http.MethodGet, "/v1/admin/chains", s.deployer, "")
		s.Require().Equal(http.StatusOK, rec.Code)
		var links []httptransport.ChainLinkResponse
		s.decode(rec, &links)
		s.Require().Len(links, 2)
		s.Equal("1000", links[0].Selector)
		s.Equal("2000", links[1].Selector)
	})

	s.Run("fund rejects zero", func() {
		rec := s.do(http.MethodPost, "/v1/admin/fees", s.deployer, `{"amount":0}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func TestDestinationRouterHasNoRegistration(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := chain.New(destSelector, "destination")
	deployer := id.NewRandomAddress()
	authority, err := admin.NewAuthority(deployer)
	if err != nil {
		t.Fatal(err)
	}
	registry, err := names.New(c, namestore.NewInMemory(), authority)
	if err != nil {
		t.Fatal(err)
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Names:     httptransport.NewNamesHandler(registry, nil, logger),
		Validator: staticValidator{},
		Logger:    logger,
	})

	req := testutil.WithBearer(testutil.NewJSONRequest(http.MethodPost, "/v1/names", `{"name":"alice.ccns"}`),
		"token-"+id.NewRandomAddress().String())
	rec := testutil.DoRequest(router, req)
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected registration to be unmounted, got %d", rec.Code)
	}
}
