// Package telemetry records planning run metrics with OpenTelemetry.
//
// Binaries install the SDK with NewProvider. Instruments created with NewGlobal before that record into the no-op
// global meter, so recording is always safe.
package telemetry

import (
	"context"

	"github.com/myrjola/mavis/internal/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/myrjola/mavis"

// Metrics holds the instruments of the playground.
type Metrics struct {
	runsStarted   metric.Int64Counter
	runsFinished  metric.Int64Counter
	answers       metric.Int64Counter
	planScore     metric.Int64Histogram
	activeRunners metric.Int64UpDownCounter
	evictions     metric.Int64Counter
}

// NewGlobal creates the instruments on the current global meter provider.
func NewGlobal() (*Metrics, error) {
	return New(otel.Meter(instrumentationName))
}

func New(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
		all []error
	)
	m.runsStarted, err = meter.Int64Counter("mavis.runs.started",
		metric.WithDescription("Number of planning runs started"),
		metric.WithUnit("{run}"),
	)
	all = append(all, err)
	m.runsFinished, err = meter.Int64Counter("mavis.runs.finished",
		metric.WithDescription("Number of planning runs that reached the final stage"),
		metric.WithUnit("{run}"),
	)
	all = append(all, err)
	m.answers, err = meter.Int64Counter("mavis.answers",
		metric.WithDescription("Number of answers submitted, by acceptance"),
		metric.WithUnit("{answer}"),
	)
	all = append(all, err)
	m.planScore, err = meter.Int64Histogram("mavis.plan.score",
		metric.WithDescription("Plan score of finished runs"),
		metric.WithUnit("{score}"),
		metric.WithExplicitBucketBoundaries(20, 40, 50, 60, 70, 80, 90, 100),
	)
	all = append(all, err)
	m.activeRunners, err = meter.Int64UpDownCounter("mavis.runners.active",
		metric.WithDescription("Number of hosted timeline runners"),
		metric.WithUnit("{runner}"),
	)
	all = append(all, err)
	m.evictions, err = meter.Int64Counter("mavis.runners.evicted",
		metric.WithDescription("Number of runners evicted, by reason"),
		metric.WithUnit("{runner}"),
	)
	all = append(all, err)
	if err = errors.Join(all...); err != nil {
		return nil, errors.Wrap(err, "create instruments")
	}
	return &m, nil
}

func (m *Metrics) RunStarted(ctx context.Context) {
	m.runsStarted.Add(ctx, 1)
}

// RunFinished counts a finished run and records its plan score.
func (m *Metrics) RunFinished(ctx context.Context, planScore int) {
	m.runsFinished.Add(ctx, 1)
	m.planScore.Record(ctx, int64(planScore))
}

func (m *Metrics) Answer(ctx context.Context, accepted bool) {
	m.answers.Add(ctx, 1, metric.WithAttributes(attribute.Bool("accepted", accepted)))
}

func (m *Metrics) RunnerAdded(ctx context.Context) {
	m.activeRunners.Add(ctx, 1)
}

// RunnerEvicted records a removed runner. reason is "idle" or "capacity".
func (m *Metrics) RunnerEvicted(ctx context.Context, reason string) {
	m.activeRunners.Add(ctx, -1)
	m.evictions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
