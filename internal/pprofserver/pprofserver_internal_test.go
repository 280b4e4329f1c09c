package pprofserver

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/myrjola/mavis/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

func TestNewServer_metrics(t *testing.T) {
	logger := testhelpers.NewLogger(io.Discard)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"mavis.runs.started":1}`)
	})

	srv := newServer(logger, metrics)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"mavis.runs.started":1}`, rec.Body.String())

	srv = newServer(logger, nil)
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
