package admin

import (
	"log/slog"
	"net/http"

	id "ccns/pkg/domain"
	request "ccns/pkg/platform/middleware/request"
	"ccns/pkg/requestcontext"
)

// Authority reports whether a caller holds the admin capability.
type Authority interface {
	Permits(caller id.Address) bool
}

// RequireAdmin rejects authenticated callers that are not the administrator.
// It must run after auth.RequireAuth. Services still check the capability
// themselves; this only short-circuits the HTTP surface.
func RequireAdmin(authority Authority, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			caller := requestcontext.Caller(ctx)
			if !authority.Permits(caller) {
				logger.WarnContext(ctx, "admin capability required",
					"caller", caller,
					"request_id", request.GetRequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"permission_denied","error_description":"admin capability required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
