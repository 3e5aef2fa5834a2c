package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"ccns/internal/admin"
	jwttoken "ccns/internal/jwt_token"
	"ccns/internal/platform/config"
	"ccns/internal/platform/httpserver"
	"ccns/internal/platform/metrics"
	httptransport "ccns/internal/transport/http"
	"ccns/pkg/platform/httputil"
)

// checker reports the health of one dependency.
type checker func(ctx context.Context) error

// healthHandler answers 200 when every dependency responds within a second.
func healthHandler(log *slog.Logger, checks map[string]checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()

		status := map[string]string{}
		healthy := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				log.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
				status[name] = "unavailable"
				healthy = false
				continue
			}
			status[name] = "ok"
		}
		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, map[string]any{"healthy": healthy, "dependencies": status})
	}
}

type surface struct {
	names     *httptransport.NamesHandler
	admin     *httptransport.AdminHandler
	authority *admin.Authority
	checks    map[string]checker
}

// newServer builds the HTTP server of one node.
func newServer(addr string, cfg config.Server, reg *metrics.Registry, s surface, log *slog.Logger) *http.Server {
	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	rc := httptransport.RouterConfig{
		Names:     s.names,
		Admin:     s.admin,
		Validator: jwttoken.NewJWTServiceAdapter(jwtService),
		Metrics:   reg.Handler(),
		Health:    healthHandler(log, s.checks),
		Logger:    log,
	}
	if s.authority != nil {
		rc.Authority = s.authority
	}
	return httpserver.New(addr, httptransport.NewRouter(rc))
}
