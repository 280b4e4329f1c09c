package pprofserver_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/myrjola/mavis/internal/pprofserver"
	"github.com/stretchr/testify/require"
)

func TestHandle(t *testing.T) {
	mux := http.NewServeMux()
	pprofserver.Handle(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
