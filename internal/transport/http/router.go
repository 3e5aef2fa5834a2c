package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	adminmw "ccns/pkg/platform/middleware/admin"
	authmw "ccns/pkg/platform/middleware/auth"
	request "ccns/pkg/platform/middleware/request"
	"ccns/pkg/platform/middleware/requesttime"
)

// RouterConfig lists what a node serves. Admin and Names.registrar are nil on
// destination nodes.
type RouterConfig struct {
	Names     *NamesHandler
	Admin     *AdminHandler
	Authority adminmw.Authority
	Validator authmw.JWTValidator
	Metrics   http.Handler
	Health    http.HandlerFunc
	Logger    *slog.Logger
}

// NewRouter wires all endpoints behind the shared middleware chain.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.RequestID)
	r.Use(request.Logger(cfg.Logger))
	r.Use(requesttime.Middleware)
	r.Use(chimw.Timeout(30 * time.Second))

	if cfg.Health != nil {
		r.Get("/health", cfg.Health)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	cfg.Names.RegisterPublic(r)

	if cfg.Validator == nil {
		return r
	}
	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(cfg.Validator, cfg.Logger))
		cfg.Names.RegisterAuthenticated(r)

		if cfg.Admin != nil && cfg.Authority != nil {
			r.Group(func(r chi.Router) {
				r.Use(adminmw.RequireAdmin(cfg.Authority, cfg.Logger))
				cfg.Admin.Register(r)
			})
		}
	})
	return r
}
