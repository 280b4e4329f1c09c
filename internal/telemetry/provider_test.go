package telemetry_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/myrjola/mavis/internal/telemetry"
	"github.com/myrjola/mavis/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

func newProvider(t *testing.T) *telemetry.Provider {
	t.Helper()
	p, err := telemetry.NewProvider()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, p.Shutdown(context.Background()))
	})
	return p
}

func TestProvider_Summary(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	p.Metrics.RunStarted(ctx)
	p.Metrics.Answer(ctx, true)
	p.Metrics.Answer(ctx, false)
	p.Metrics.RunFinished(ctx, 67)

	// Instruments created on the global meter afterwards record into the same provider.
	global, err := telemetry.NewGlobal()
	require.NoError(t, err)
	global.RunStarted(ctx)

	summary, err := p.Summary(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), summary["mavis.runs.started"])
	require.Equal(t, int64(1), summary["mavis.answers{accepted=true}"])
	require.Equal(t, int64(1), summary["mavis.answers{accepted=false}"])
	require.Equal(t, int64(1), summary["mavis.plan.score.count"])
	require.Equal(t, int64(67), summary["mavis.plan.score.sum"])
}

func TestProvider_ServeHTTP(t *testing.T) {
	p := newProvider(t)
	p.Metrics.RunnerAdded(context.Background())

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var summary map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.Equal(t, int64(1), summary["mavis.runners.active"])
}

func TestProvider_LogPeriodically(t *testing.T) {
	p := newProvider(t)
	p.Metrics.RunStarted(context.Background())

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.LogPeriodically(ctx, testhelpers.NewLogger(&out), 5*time.Millisecond)
	}()
	<-done

	require.Contains(t, out.String(), "msg=metrics")
	require.Contains(t, out.String(), "mavis.runs.started=1")
}
