// Package playground hosts one timeline runner per visitor for the web sink.
package playground

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/myrjola/mavis/internal/broker"
	"github.com/myrjola/mavis/internal/errors"
	"github.com/myrjola/mavis/internal/logging"
	"github.com/myrjola/mavis/internal/script"
	"github.com/myrjola/mavis/internal/telemetry"
	"github.com/myrjola/mavis/internal/timeline"
)

var ErrNoVisitor = errors.NewSentinel("no visitor id")

const (
	reasonIdle     = "idle"
	reasonCapacity = "capacity"
	reasonShutdown = "shutdown"
)

// Options configure a [Manager]. Zero values fall back to the defaults.
type Options struct {
	// Speedup divides every scripted delay.
	Speedup int
	// IdleTTL is how long a runner may go unused before it is evicted. Defaults to 30 minutes.
	IdleTTL time.Duration
	// MaxRunners caps the number of hosted runners. The least recently used runner makes room for a new one.
	// Defaults to 1000.
	MaxRunners int
	// Now is the clock used for idle bookkeeping. Defaults to time.Now.
	Now func() time.Time
}

type entry struct {
	runner   *timeline.Runner
	cancel   context.CancelFunc
	lastUsed time.Time
}

// Manager lazily creates a runner per visitor and fans the runners' snapshots out to subscribers.
type Manager struct {
	script  *script.Script
	logger  *slog.Logger
	metrics *telemetry.Metrics
	broker  *broker.Broker[string, timeline.Snapshot]
	opts    Options
	idle    timeline.Snapshot

	// base is the parent context of every runner. It is cancelled when Run returns.
	base context.Context
	stop context.CancelFunc

	mu      sync.Mutex
	runners map[string]*entry
}

// NewManager validates s by building an idle engine and returns a manager. Call [Manager.Run] before use.
func NewManager(s *script.Script, logger *slog.Logger, metrics *telemetry.Metrics, opts Options) (*Manager, error) {
	engine, err := timeline.NewEngine(s, timeline.NewVirtualClock(), logger)
	if err != nil {
		return nil, errors.Wrap(err, "new playground manager")
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 30 * time.Minute //nolint:mnd // default
	}
	if opts.MaxRunners <= 0 {
		opts.MaxRunners = 1000 //nolint:mnd // default
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	base, stop := context.WithCancel(context.Background())
	return &Manager{
		script:  s,
		logger:  logger.With(slog.String("source", "playground.Manager")),
		metrics: metrics,
		broker:  broker.New[string, timeline.Snapshot](),
		opts:    opts,
		idle:    engine.Snapshot(),
		base:    base,
		stop:    stop,
		mu:      sync.Mutex{},
		runners: map[string]*entry{},
	}, nil
}

// Run starts the snapshot broker and evicts idle runners until ctx is cancelled. Afterwards every runner is
// stopped.
func (m *Manager) Run(ctx context.Context) error {
	go m.broker.Start()
	defer func() {
		m.mu.Lock()
		for id, e := range m.runners {
			m.evictLocked(ctx, id, e, reasonShutdown)
		}
		m.mu.Unlock()
		m.stop()
		m.broker.Stop()
	}()

	ticker := time.NewTicker(max(m.opts.IdleTTL/2, time.Second)) //nolint:mnd // check twice per TTL
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.EvictIdle(ctx); n > 0 {
				m.logger.LogAttrs(ctx, slog.LevelDebug, "evicted idle runners", slog.Int("count", n))
			}
		}
	}
}

// EvictIdle stops the runners unused for longer than the idle TTL and returns how many were evicted.
func (m *Manager) EvictIdle(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	deadline := m.opts.Now().Add(-m.opts.IdleTTL)
	evicted := 0
	for id, e := range m.runners {
		if e.lastUsed.Before(deadline) {
			m.evictLocked(ctx, id, e, reasonIdle)
			evicted++
		}
	}
	return evicted
}

// Len is the number of hosted runners.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runners)
}

func (m *Manager) evictLocked(ctx context.Context, id string, e *entry, reason string) {
	e.cancel()
	delete(m.runners, id)
	m.broker.Forget(id)
	m.metrics.RunnerEvicted(ctx, reason)
	m.logger.LogAttrs(ctx, slog.LevelDebug, "runner evicted", slog.String("visitor_id", id),
		slog.String("reason", reason))
}

// runner returns the visitor's runner, creating it if needed.
func (m *Manager) runner(ctx context.Context, visitorID string) (*timeline.Runner, error) {
	if visitorID == "" {
		return nil, ErrNoVisitor
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.opts.Now()
	if e, ok := m.runners[visitorID]; ok {
		e.lastUsed = now
		return e.runner, nil
	}

	if len(m.runners) >= m.opts.MaxRunners {
		var (
			oldestID string
			oldest   *entry
		)
		for id, e := range m.runners {
			if oldest == nil || e.lastUsed.Before(oldest.lastUsed) {
				oldestID, oldest = id, e
			}
		}
		m.evictLocked(ctx, oldestID, oldest, reasonCapacity)
	}

	logCtx := logging.WithAttrs(m.base, slog.String("visitor_id", visitorID))
	r, err := timeline.NewRunner(m.script, m.logger, timeline.RunnerOptions{
		Speedup: m.opts.Speedup,
		OnSnapshot: func(s timeline.Snapshot) {
			m.broker.Publish(visitorID, s)
		},
		OnFinished: func(s timeline.Snapshot) {
			m.metrics.RunFinished(logCtx, s.PlanScore)
			m.logger.LogAttrs(logCtx, slog.LevelInfo, "plan finished", slog.Int("planScore", s.PlanScore))
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "new runner", slog.String("visitor_id", visitorID))
	}
	runCtx, cancel := context.WithCancel(logCtx)
	go func() {
		if runErr := r.Run(runCtx); runErr != nil {
			m.logger.LogAttrs(runCtx, slog.LevelError, "runner failed", errors.SlogError(runErr))
		}
	}()
	m.runners[visitorID] = &entry{runner: r, cancel: cancel, lastUsed: now}
	m.metrics.RunnerAdded(ctx)
	return r, nil
}

// call runs fn on the visitor's runner. A runner evicted between lookup and use is replaced once.
func (m *Manager) call(ctx context.Context, visitorID string, fn func(r *timeline.Runner) error) error {
	for attempt := 0; ; attempt++ {
		r, err := m.runner(ctx, visitorID)
		if err != nil {
			return err
		}
		err = fn(r)
		if errors.Is(err, timeline.ErrRunnerStopped) && attempt == 0 {
			continue
		}
		return err
	}
}

// Start begins a run for the visitor. It reports whether a run was started.
func (m *Manager) Start(ctx context.Context, visitorID string) (timeline.Snapshot, bool, error) {
	var (
		snap    timeline.Snapshot
		started bool
	)
	err := m.call(ctx, visitorID, func(r *timeline.Runner) error {
		var err error
		snap, started, err = r.Start(ctx)
		return err //nolint:wrapcheck // wrapped by caller
	})
	if err != nil {
		return timeline.Snapshot{}, false, errors.Wrap(err, "start run")
	}
	if started {
		m.metrics.RunStarted(ctx)
	}
	return snap, started, nil
}

// Answer answers the visitor's current question. It reports whether the answer was accepted.
func (m *Manager) Answer(ctx context.Context, visitorID string, option int) (timeline.Snapshot, bool, error) {
	var (
		snap     timeline.Snapshot
		accepted bool
	)
	err := m.call(ctx, visitorID, func(r *timeline.Runner) error {
		var err error
		snap, accepted, err = r.Answer(ctx, option)
		return err //nolint:wrapcheck // wrapped by caller
	})
	if err != nil {
		return timeline.Snapshot{}, false, errors.Wrap(err, "answer question", slog.Int("option", option))
	}
	m.metrics.Answer(ctx, accepted)
	return snap, accepted, nil
}

// Restart resets the visitor's run.
func (m *Manager) Restart(ctx context.Context, visitorID string) (timeline.Snapshot, error) {
	var snap timeline.Snapshot
	err := m.call(ctx, visitorID, func(r *timeline.Runner) error {
		var err error
		snap, err = r.Restart(ctx)
		return err //nolint:wrapcheck // wrapped by caller
	})
	if err != nil {
		return timeline.Snapshot{}, errors.Wrap(err, "restart run")
	}
	return snap, nil
}

// Snapshot returns the visitor's state. Visitors without a runner get the idle state without creating one.
func (m *Manager) Snapshot(ctx context.Context, visitorID string) (timeline.Snapshot, error) {
	m.mu.Lock()
	e, ok := m.runners[visitorID]
	m.mu.Unlock()
	if !ok {
		return m.Idle(), nil
	}
	snap, err := e.runner.Snapshot(ctx)
	if errors.Is(err, timeline.ErrRunnerStopped) {
		return m.Idle(), nil
	}
	if err != nil {
		return timeline.Snapshot{}, errors.Wrap(err, "snapshot")
	}
	return snap, nil
}

// Idle is the state of a run that has not started.
func (m *Manager) Idle() timeline.Snapshot {
	// Slices are shared between callers; sinks only read them.
	return m.idle
}

// Subscribe streams the visitor's snapshots, latest wins. The channel closes when the runner is evicted or after
// unsubscribe.
func (m *Manager) Subscribe(visitorID string) (<-chan timeline.Snapshot, func()) {
	return m.broker.Subscribe(visitorID)
}

// Script is the script every runner plays.
func (m *Manager) Script() *script.Script {
	return m.script
}
