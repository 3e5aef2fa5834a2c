package testutil

import (
	"net/http"

	id "ccns/pkg/domain"
	"ccns/pkg/requestcontext"
)

// WithCaller adds an authenticated caller to the request context, as
// auth.RequireAuth would.
func WithCaller(req *http.Request, caller id.Address) *http.Request {
	return req.WithContext(requestcontext.WithCaller(req.Context(), caller))
}
