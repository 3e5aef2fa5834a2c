package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ccns/internal/registrar"
	id "ccns/pkg/domain"
	"ccns/pkg/platform/httputil"
	"ccns/pkg/requestcontext"
)

// ChainAdmin is the administrative surface of a registrar.
type ChainAdmin interface {
	EnableChain(ctx context.Context, caller id.Address, selector id.ChainSelector, receiver id.Address, gasLimit uint64) error
	Chains(ctx context.Context) ([]registrar.ChainLink, error)
	Fund(ctx context.Context, caller id.Address, amount uint64) (uint64, error)
	Balance(ctx context.Context) (uint64, error)
}

type AdminHandler struct {
	admin  ChainAdmin
	logger *slog.Logger
}

func NewAdminHandler(admin ChainAdmin, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logger}
}

// Register mounts admin routes. The caller must already be authenticated.
func (h *AdminHandler) Register(r chi.Router) {
	r.Post("/v1/admin/chains", h.HandleEnableChain)
	r.Get("/v1/admin/chains", h.HandleListChains)
	r.Post("/v1/admin/fees", h.HandleFund)
	r.Get("/v1/admin/fees", h.HandleBalance)
}

func (h *AdminHandler) HandleEnableChain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndValidate[EnableChainRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	selector, _ := id.ParseChainSelector(req.Selector)
	receiver, _ := id.ParseAddress(req.Receiver)

	caller := requestcontext.Caller(ctx)
	if err := h.admin.EnableChain(ctx, caller, selector, receiver, req.GasLimit); err != nil {
		h.logger.WarnContext(ctx, "enable chain failed",
			"request_id", requestID,
			"selector", selector,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.writeChains(w, r)
}

func (h *AdminHandler) HandleListChains(w http.ResponseWriter, r *http.Request) {
	h.writeChains(w, r)
}

func (h *AdminHandler) writeChains(w http.ResponseWriter, r *http.Request) {
	links, err := h.admin.Chains(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromChainLinks(links))
}

func (h *AdminHandler) HandleFund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndValidate[FundRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	balance, err := h.admin.Fund(ctx, requestcontext.Caller(ctx), req.Amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BalanceResponse{Balance: balance})
}

func (h *AdminHandler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.admin.Balance(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BalanceResponse{Balance: balance})
}
