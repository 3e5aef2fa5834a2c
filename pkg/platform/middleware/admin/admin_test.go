package admin

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	id "ccns/pkg/domain"
	"ccns/pkg/testutil"
)

type fixedAuthority id.Address

func (a fixedAuthority) Permits(caller id.Address) bool {
	return !caller.IsZero() && caller == id.Address(a)
}

func TestRequireAdmin(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	root := id.NewRandomAddress()
	handler := RequireAdmin(fixedAuthority(root), logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(caller id.Address) *httptest.ResponseRecorder {
		req := testutil.WithCaller(httptest.NewRequest(http.MethodGet, "/", nil), caller)
		return testutil.DoRequest(handler, req)
	}

	t.Run("admin passes", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, serve(root).Code)
	})

	t.Run("other caller is forbidden", func(t *testing.T) {
		testutil.AssertStatusAndError(t, serve(id.NewRandomAddress()), http.StatusForbidden, "permission_denied")
	})

	t.Run("anonymous caller is forbidden", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, serve(id.ZeroAddress).Code)
	})
}
