package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/myrjola/mavis/internal/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Provider owns the SDK meter provider of a binary. Its reader is pulled on demand: by the metrics endpoint and by
// the periodic log line.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	reader        *sdkmetric.ManualReader
	Metrics       *Metrics
}

// NewProvider installs an SDK meter provider as the global one and creates the playground instruments on it.
// Call Shutdown on exit.
func NewProvider() (*Provider, error) {
	reader := sdkmetric.NewManualReader()
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(meterProvider)

	metrics, err := New(meterProvider.Meter(instrumentationName))
	if err != nil {
		return nil, errors.Join(err, meterProvider.Shutdown(context.Background()))
	}
	return &Provider{
		meterProvider: meterProvider,
		reader:        reader,
		Metrics:       metrics,
	}, nil
}

// Summary collects the current values keyed by instrument name. Data points with attributes are keyed as
// name{key=value}; histograms report name.count and name.sum.
func (p *Provider) Summary(ctx context.Context) (map[string]int64, error) {
	var rm metricdata.ResourceMetrics
	if err := p.reader.Collect(ctx, &rm); err != nil {
		return nil, errors.Wrap(err, "collect metrics")
	}
	summary := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					summary[seriesName(m.Name, dp.Attributes)] += dp.Value
				}
			case metricdata.Histogram[int64]:
				for _, dp := range data.DataPoints {
					summary[m.Name+".count"] += int64(dp.Count) //nolint:gosec // counts stay far below the limit
					summary[m.Name+".sum"] += dp.Sum
				}
			}
		}
	}
	return summary, nil
}

func seriesName(name string, set attribute.Set) string {
	if set.Len() == 0 {
		return name
	}
	labels := make([]string, 0, set.Len())
	for _, kv := range set.ToSlice() {
		labels = append(labels, fmt.Sprintf("%s=%s", kv.Key, kv.Value.Emit()))
	}
	slices.Sort(labels)
	return name + "{" + strings.Join(labels, ",") + "}"
}

// ServeHTTP writes the summary as JSON.
func (p *Provider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	summary, err := p.Summary(r.Context())
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summary)
}

// LogPeriodically logs the summary every interval until ctx is cancelled.
func (p *Provider) LogPeriodically(ctx context.Context, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summary, err := p.Summary(ctx)
			if err != nil {
				logger.LogAttrs(ctx, slog.LevelError, "failed to collect metrics", errors.SlogError(err))
				continue
			}
			attrs := make([]slog.Attr, 0, len(summary))
			for name, value := range summary {
				attrs = append(attrs, slog.Int64(name, value))
			}
			slices.SortFunc(attrs, func(a, b slog.Attr) int { return strings.Compare(a.Key, b.Key) })
			logger.LogAttrs(ctx, slog.LevelInfo, "metrics", attrs...)
		}
	}
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "shutdown meter provider")
	}
	return nil
}
