package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ccns/internal/registrar"
	id "ccns/pkg/domain"
	dErrors "ccns/pkg/domain-errors"
	audit "ccns/pkg/platform/audit"
	"ccns/pkg/platform/httputil"
	"ccns/pkg/requestcontext"
)

// NameLookup is served on every node.
type NameLookup interface {
	Lookup(ctx context.Context, name id.Name) (id.Address, error)
}

// Registrar is served on source nodes only.
type Registrar interface {
	Register(ctx context.Context, caller id.Address, name string) (*registrar.Receipt, error)
}

// NameHistory lists the recorded events of a name.
type NameHistory interface {
	List(ctx context.Context, name id.Name) ([]audit.Event, error)
}

// NamesHandler serves name lookups and, on source nodes, registration.
type NamesHandler struct {
	lookup    NameLookup
	registrar Registrar
	history   NameHistory
	logger    *slog.Logger
}

// NewNamesHandler builds the names handler. registrar may be nil on
// destination nodes, in which case POST /v1/names is not mounted.
func NewNamesHandler(lookup NameLookup, registrar Registrar, logger *slog.Logger) *NamesHandler {
	return &NamesHandler{lookup: lookup, registrar: registrar, logger: logger}
}

// WithHistory enables GET /v1/names/{name}/events.
func (h *NamesHandler) WithHistory(history NameHistory) *NamesHandler {
	h.history = history
	return h
}

// RegisterPublic mounts unauthenticated routes.
func (h *NamesHandler) RegisterPublic(r chi.Router) {
	r.Get("/v1/names/{name}", h.HandleLookup)
	if h.history != nil {
		r.Get("/v1/names/{name}/events", h.HandleHistory)
	}
}

// RegisterAuthenticated mounts routes that need a caller identity.
func (h *NamesHandler) RegisterAuthenticated(r chi.Router) {
	if h.registrar != nil {
		r.Post("/v1/names", h.HandleRegister)
	}
}

// HandleLookup handles GET /v1/names/{name}. Unset names resolve to the zero
// address with 200.
func (h *NamesHandler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name, err := id.ParseName(chi.URLParam(r, "name"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	owner, err := h.lookup.Lookup(ctx, name)
	if err != nil {
		h.logger.ErrorContext(ctx, "name lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"name", name,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, NameResponse{Name: name.String(), Owner: owner})
}

// HandleHistory handles GET /v1/names/{name}/events, oldest first.
func (h *NamesHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name, err := id.ParseName(chi.URLParam(r, "name"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	events, err := h.history.List(ctx, name)
	if err != nil {
		h.logger.ErrorContext(ctx, "name history failed",
			"request_id", requestcontext.RequestID(ctx),
			"name", name,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromEvents(events))
}

// HandleRegister handles POST /v1/names for the authenticated caller.
func (h *NamesHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	caller := requestcontext.Caller(ctx)
	if caller.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndValidate[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	receipt, err := h.registrar.Register(ctx, caller, req.Name)
	if err != nil {
		h.logger.WarnContext(ctx, "register request failed",
			"request_id", requestID,
			"caller", caller,
			"name", req.Name,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "register request served",
		"request_id", requestID,
		"caller", caller,
		"name", receipt.Name,
		"dispatches", len(receipt.Dispatches),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromReceipt(receipt))
}
