package timeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/myrjola/mavis/internal/errors"
	"github.com/myrjola/mavis/internal/logging"
	"github.com/myrjola/mavis/internal/script"
	"github.com/oklog/ulid/v2"
)

var ErrRunnerStopped = errors.NewSentinel("runner stopped")

// RunnerOptions configure a [Runner]. Zero values are fine.
type RunnerOptions struct {
	// Speedup divides every scripted delay. Values below one mean real time.
	Speedup int
	// OnSnapshot receives the new state after every accepted command or continuation. It is called on the runner
	// goroutine and must not block.
	OnSnapshot func(Snapshot)
	// OnFinished receives the state once a run reaches [PhaseFinished]. Same rules as OnSnapshot.
	OnFinished func(Snapshot)
}

type commandKind int

const (
	commandStart commandKind = iota
	commandAnswer
	commandRestart
	commandSnapshot
)

type commandResult struct {
	snapshot Snapshot
	accepted bool
}

type command struct {
	kind   commandKind
	option int
	reply  chan commandResult
}

// Runner hosts an [Engine] on its own goroutine and drives it with real timers. Commands and timer firings are
// serialized through channels so that the engine keeps a single writer.
type Runner struct {
	engine  *Engine
	logger  *slog.Logger
	speedup time.Duration
	hooks   RunnerOptions

	commands chan command
	fired    chan Continuation
	done     chan struct{}

	// timers and runID are only touched on the runner goroutine.
	timers []*time.Timer
	runID  string
}

// NewRunner creates a runner for s. Call [Runner.Run] to start processing.
func NewRunner(s *script.Script, logger *slog.Logger, opts RunnerOptions) (*Runner, error) {
	r := &Runner{
		engine:   nil,
		logger:   logger,
		speedup:  time.Duration(max(opts.Speedup, 1)),
		hooks:    opts,
		commands: make(chan command),
		fired:    make(chan Continuation),
		done:     make(chan struct{}),
		timers:   nil,
		runID:    ulid.Make().String(),
	}
	engine, err := NewEngine(s, r, logger)
	if err != nil {
		return nil, errors.Wrap(err, "new runner")
	}
	r.engine = engine
	return r, nil
}

// Schedule implements [Scheduler] with [time.AfterFunc]. Only called by the engine on the runner goroutine.
func (r *Runner) Schedule(after time.Duration, c Continuation) {
	timer := time.AfterFunc(after/r.speedup, func() {
		select {
		case r.fired <- c:
		case <-r.done:
		}
	})
	r.timers = append(r.timers, timer)
}

// Run processes commands and timers until ctx is cancelled. It always returns nil after cancellation; afterwards
// every command fails with [ErrRunnerStopped].
func (r *Runner) Run(ctx context.Context) error {
	defer func() {
		r.stopTimers()
		close(r.done)
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-r.commands:
			r.handle(ctx, cmd)
		case c := <-r.fired:
			before := r.engine.Phase()
			if r.engine.Fire(r.runContext(ctx), c) {
				r.publish(before)
			}
		}
	}
}

func (r *Runner) handle(ctx context.Context, cmd command) {
	before := r.engine.Phase()
	accepted := false
	switch cmd.kind {
	case commandStart:
		if before == PhaseIdle {
			r.stopTimers()
			r.runID = ulid.Make().String()
		}
		accepted = r.engine.Start(r.runContext(ctx))
	case commandAnswer:
		accepted = r.engine.Answer(r.runContext(ctx), cmd.option)
	case commandRestart:
		r.stopTimers()
		r.engine.Restart(r.runContext(ctx))
		accepted = true
	case commandSnapshot:
	}
	if accepted {
		r.publish(before)
	}
	cmd.reply <- commandResult{snapshot: r.snapshot(), accepted: accepted}
}

func (r *Runner) publish(before Phase) {
	snap := r.snapshot()
	if r.hooks.OnSnapshot != nil {
		r.hooks.OnSnapshot(snap)
	}
	if r.hooks.OnFinished != nil && before != PhaseFinished && snap.Phase == PhaseFinished {
		r.hooks.OnFinished(snap)
	}
}

func (r *Runner) snapshot() Snapshot {
	snap := r.engine.Snapshot()
	snap.RunID = r.runID
	return snap
}

func (r *Runner) runContext(ctx context.Context) context.Context {
	return logging.WithAttrs(ctx, slog.String("run_id", r.runID))
}

// stopTimers releases the timers of an abandoned run. Timers that already fired are dropped by the engine.
func (r *Runner) stopTimers() {
	for _, t := range r.timers {
		t.Stop()
	}
	r.timers = nil
}

func (r *Runner) send(ctx context.Context, kind commandKind, option int) (commandResult, error) {
	cmd := command{kind: kind, option: option, reply: make(chan commandResult, 1)}
	select {
	case r.commands <- cmd:
	case <-r.done:
		return commandResult{}, ErrRunnerStopped
	case <-ctx.Done():
		return commandResult{}, errors.Wrap(ctx.Err(), "send command")
	}
	select {
	case res := <-cmd.reply:
		return res, nil
	case <-r.done:
		return commandResult{}, ErrRunnerStopped
	case <-ctx.Done():
		return commandResult{}, errors.Wrap(ctx.Err(), "await command result")
	}
}

// Start begins a run and reports whether it started. See [Engine.Start].
func (r *Runner) Start(ctx context.Context) (Snapshot, bool, error) {
	res, err := r.send(ctx, commandStart, 0)
	return res.snapshot, res.accepted, err
}

// Answer answers the current question and reports whether the answer was accepted. See [Engine.Answer].
func (r *Runner) Answer(ctx context.Context, option int) (Snapshot, bool, error) {
	res, err := r.send(ctx, commandAnswer, option)
	return res.snapshot, res.accepted, err
}

// Restart resets the run. See [Engine.Restart].
func (r *Runner) Restart(ctx context.Context) (Snapshot, error) {
	res, err := r.send(ctx, commandRestart, 0)
	return res.snapshot, err
}

// Snapshot returns the current state.
func (r *Runner) Snapshot(ctx context.Context) (Snapshot, error) {
	res, err := r.send(ctx, commandSnapshot, 0)
	return res.snapshot, err
}

// Done is closed once Run has returned.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}
