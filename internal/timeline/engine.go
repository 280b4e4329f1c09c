// Package timeline plays a [script.Script] as a single-writer state machine.
//
// The engine never sleeps and never starts goroutines. Every delayed transition is handed to a [Scheduler] as a
// [Continuation] tagged with the run generation, and comes back through [Engine.Fire]. Start and Restart bump the
// generation so that continuations of an abandoned run are dropped instead of touching the fresh state.
package timeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/myrjola/mavis/internal/agents"
	"github.com/myrjola/mavis/internal/errors"
	"github.com/myrjola/mavis/internal/scores"
	"github.com/myrjola/mavis/internal/script"
	"github.com/myrjola/mavis/internal/transcript"
)

// noNegotiation marks that no negotiation event is active.
const noNegotiation = -1

// Engine is not safe for concurrent use. [Runner] serializes access when real time is involved.
type Engine struct {
	script    *script.Script
	scheduler Scheduler
	logger    *slog.Logger

	scores     *scores.Model
	agents     *agents.Registry
	transcript *transcript.Transcript

	generation  uint64
	phase       Phase
	stage       int
	question    int
	answered    bool
	negotiation int
	previous    []scores.Score
}

// NewEngine validates s and returns an engine in [PhaseIdle].
func NewEngine(s *script.Script, scheduler Scheduler, logger *slog.Logger) (*Engine, error) {
	if err := s.Validate(); err != nil {
		return nil, errors.Wrap(err, "new engine")
	}
	model, err := scores.NewModel(s.Dimensions)
	if err != nil {
		return nil, errors.Wrap(err, "new score model")
	}
	registry, err := agents.NewRegistry(s.Agents)
	if err != nil {
		return nil, errors.Wrap(err, "new agent registry")
	}
	e := &Engine{
		script:      s,
		scheduler:   scheduler,
		logger:      logger,
		scores:      model,
		agents:      registry,
		transcript:  transcript.New(s.TranscriptCapacity),
		generation:  0,
		phase:       PhaseIdle,
		stage:       0,
		question:    0,
		answered:    false,
		negotiation: noNegotiation,
		previous:    nil,
	}
	e.reset()
	return e, nil
}

func (e *Engine) reset() {
	e.scores.Reset()
	e.agents.Reset()
	e.transcript.Reset()
	e.phase = PhaseIdle
	e.stage = 0
	e.question = 0
	e.answered = false
	e.negotiation = noNegotiation
	e.previous = e.scores.Scores()
}

func (e *Engine) Phase() Phase {
	return e.phase
}

func (e *Engine) Generation() uint64 {
	return e.generation
}

func (e *Engine) Script() *script.Script {
	return e.script
}

// Start begins a run. It only has an effect in [PhaseIdle] and reports whether the run started.
func (e *Engine) Start(ctx context.Context) bool {
	if e.phase != PhaseIdle {
		e.logger.LogAttrs(ctx, slog.LevelDebug, "start ignored", slog.String("phase", e.phase.String()))
		return false
	}
	e.generation++
	e.reset()
	e.phase = PhaseIntro
	for i, line := range e.script.Intro.Lines {
		e.schedule(line.At, StepIntroLine, i, 0)
	}
	e.schedule(e.script.Intro.EnterFirstStageAt, StepEnterStage, 1, 0)
	e.logger.LogAttrs(ctx, slog.LevelDebug, "run started", slog.Uint64("generation", e.generation))
	return true
}

// Restart returns to [PhaseIdle] with every piece of state reinitialized. It is allowed from any phase.
func (e *Engine) Restart(ctx context.Context) {
	e.generation++
	e.reset()
	e.logger.LogAttrs(ctx, slog.LevelDebug, "run restarted", slog.Uint64("generation", e.generation))
}

// Answer picks option of the current question. Answers outside [PhaseQuestions], for an already answered
// question, or with an out-of-range option are ignored. It reports whether the answer was accepted.
func (e *Engine) Answer(ctx context.Context, option int) bool {
	q, ok := e.currentQuestion()
	var reason string
	switch {
	case !e.phase.AcceptsAnswers() || !ok:
		reason = "not waiting for an answer"
	case e.answered:
		reason = "question already answered"
	case option < 0 || option >= len(q.Options):
		reason = "option out of range"
	}
	if reason != "" {
		e.logger.LogAttrs(ctx, slog.LevelDebug, "answer ignored",
			slog.String("reason", reason), slog.Int("option", option), slog.String("phase", e.phase.String()))
		return false
	}

	chosen := q.Options[option]
	e.appendUser(chosen.Label)
	e.previous = e.scores.Scores()
	e.scores.Apply(chosen.Effect)
	e.answered = true
	e.schedule(e.script.Timing.Acknowledge, StepAcknowledge, e.question, option)
	e.schedule(e.script.Timing.AnswerAdvance, StepAfterAnswer, e.question, 0)
	e.logger.LogAttrs(ctx, slog.LevelDebug, "answer accepted",
		slog.Int("stage", e.stage), slog.Int("question", e.question), slog.Int("option", option),
		slog.Int("planScore", e.scores.PlanScore()))
	return true
}

// Fire applies a continuation. Continuations of another generation or ones that no longer match the state
// are dropped. It reports whether the continuation was applied.
func (e *Engine) Fire(ctx context.Context, c Continuation) bool {
	if c.Generation != e.generation {
		e.logger.LogAttrs(ctx, slog.LevelDebug, "stale continuation dropped",
			slog.String("step", c.Step.String()), slog.Uint64("continuationGeneration", c.Generation),
			slog.Uint64("generation", e.generation))
		return false
	}
	applied := e.apply(ctx, c)
	if !applied {
		e.logger.LogAttrs(ctx, slog.LevelDebug, "continuation does not match state",
			slog.String("step", c.Step.String()), slog.Int("index", c.Index), slog.String("phase", e.phase.String()))
		return false
	}
	e.logger.LogAttrs(ctx, slog.LevelDebug, "transition",
		slog.String("step", c.Step.String()), slog.String("phase", e.phase.String()), slog.Int("stage", e.stage))
	return true
}

func (e *Engine) apply(ctx context.Context, c Continuation) bool {
	stage := e.script.Stages[e.stage]
	switch c.Step {
	case StepIntroLine:
		if e.phase != PhaseIntro || c.Index < 0 || c.Index >= len(e.script.Intro.Lines) {
			return false
		}
		line := e.script.Intro.Lines[c.Index]
		if line.From == script.SystemSender {
			e.appendSystem(line.Text)
		} else {
			e.appendAgent(ctx, line.From, line.Text)
		}
	case StepEnterStage, StepAdvanceStage:
		if c.Index != e.stage+1 {
			return false
		}
		e.enterStage(ctx, c.Index)
	case StepAskQuestion:
		if len(stage.Questions) == 0 || e.question != 0 || e.phase == PhaseQuestions {
			return false
		}
		e.ask(ctx)
	case StepAcknowledge:
		if c.Index != e.question || !e.answered || c.Option < 0 || c.Option >= len(stage.Questions[c.Index].Options) {
			return false
		}
		q := stage.Questions[c.Index]
		e.appendAgent(ctx, q.Agent, e.script.AcknowledgementText(q.Options[c.Option].Label))
	case StepAfterAnswer:
		if c.Index != e.question || !e.answered {
			return false
		}
		e.afterAnswer(ctx)
	case StepOpenNegotiation:
		if c.Index != e.stage || len(stage.Negotiations) == 0 || e.phase == PhaseNegotiation {
			return false
		}
		e.phase = PhaseNegotiation
		e.appendSystem(e.script.Messages.NegotiationOnly)
		e.runNegotiation(0)
	case StepNegotiationMessage:
		if c.Index < 0 || c.Index != e.negotiation {
			return false
		}
		n := stage.Negotiations[c.Index]
		e.appendAgent(ctx, n.From, n.Message)
	case StepNegotiationAdvance:
		if c.Index < 0 || c.Index != e.negotiation {
			return false
		}
		if c.Index+1 < len(stage.Negotiations) {
			e.runNegotiation(c.Index + 1)
		} else {
			e.negotiation = noNegotiation
			e.stageDone()
		}
	default:
		return false
	}
	return true
}

func (e *Engine) enterStage(ctx context.Context, idx int) {
	if idx >= len(e.script.Stages) {
		e.finish(ctx)
		return
	}
	stage := e.script.Stages[idx]
	e.stage = idx
	e.question = 0
	e.answered = false
	e.negotiation = noNegotiation

	introduced, err := e.agents.Introduce(stage.AgentsToIntroduce...)
	if err != nil {
		e.logger.LogAttrs(ctx, slog.LevelError, "introduce agents", errors.SlogError(err), slog.Int("stage", idx))
	}
	for _, a := range introduced {
		e.appendAgent(ctx, e.script.Coordinator, e.script.IntroductionText(a.Role))
	}

	switch {
	case len(stage.Questions) > 0:
		e.schedule(e.script.Timing.StageLeadIn, StepAskQuestion, 0, 0)
	case len(stage.Negotiations) > 0:
		e.schedule(e.script.Timing.StageLeadIn, StepOpenNegotiation, idx, 0)
	default:
		e.stageDone()
	}
}

func (e *Engine) ask(ctx context.Context) {
	e.phase = PhaseQuestions
	q := e.script.Stages[e.stage].Questions[e.question]
	e.appendAgent(ctx, q.Agent, q.Text)
}

func (e *Engine) afterAnswer(ctx context.Context) {
	stage := e.script.Stages[e.stage]
	switch {
	case e.question+1 < len(stage.Questions):
		e.question++
		e.answered = false
		e.ask(ctx)
	case len(stage.Negotiations) > 0:
		e.phase = PhaseNegotiation
		e.appendSystem(e.script.Messages.NegotiationAfterQuestions)
		e.runNegotiation(0)
	default:
		e.stageDone()
	}
}

func (e *Engine) runNegotiation(k int) {
	e.negotiation = k
	e.schedule(e.script.Timing.NegotiationMessage, StepNegotiationMessage, k, 0)
	e.schedule(e.script.Timing.NegotiationAdvance, StepNegotiationAdvance, k, 0)
}

func (e *Engine) stageDone() {
	e.phase = PhaseStageDone
	e.schedule(e.script.Timing.StageDone, StepAdvanceStage, e.stage+1, 0)
}

func (e *Engine) finish(ctx context.Context) {
	e.phase = PhaseFinished
	e.negotiation = noNegotiation
	e.appendSystem(e.script.Messages.Finished)
	e.logger.LogAttrs(ctx, slog.LevelInfo, "run finished",
		slog.Uint64("generation", e.generation), slog.Int("planScore", e.scores.PlanScore()))
}

func (e *Engine) schedule(after script.Duration, step Step, index, option int) {
	e.scheduler.Schedule(time.Duration(after), Continuation{
		Generation: e.generation,
		Step:       step,
		Index:      index,
		Option:     option,
	})
}

func (e *Engine) currentQuestion() (script.Question, bool) {
	questions := e.script.Stages[e.stage].Questions
	if e.phase != PhaseQuestions || e.question >= len(questions) {
		return script.Question{}, false
	}
	return questions[e.question], true
}

func (e *Engine) appendAgent(ctx context.Context, id, text string) {
	a, ok := e.agents.Lookup(id)
	if !ok {
		e.logger.LogAttrs(ctx, slog.LevelError, "unknown sender",
			errors.SlogError(errors.Wrap(agents.ErrUnknownAgent, "append transcript entry", slog.String("agent", id))))
		return
	}
	e.transcript.Append(transcript.Entry{Kind: transcript.KindAgent, Sender: a.ShortRole, Text: text, Color: a.Color})
}

func (e *Engine) appendSystem(text string) {
	e.transcript.Append(transcript.Entry{
		Kind:   transcript.KindSystem,
		Sender: e.script.System.Name,
		Text:   text,
		Color:  e.script.System.Color,
	})
}

func (e *Engine) appendUser(text string) {
	e.transcript.Append(transcript.Entry{
		Kind:   transcript.KindUser,
		Sender: e.script.User.Name,
		Text:   text,
		Color:  e.script.User.Color,
	})
}

// currentAgentID is the agent highlighted in the workspace.
func (e *Engine) currentAgentID() string {
	stage := e.script.Stages[e.stage]
	switch e.phase {
	case PhaseQuestions:
		if q, ok := e.currentQuestion(); ok {
			return q.Agent
		}
	case PhaseNegotiation:
		if e.negotiation != noNegotiation {
			return stage.Negotiations[e.negotiation].From
		}
	case PhaseIdle, PhaseIntro, PhaseStageDone, PhaseFinished:
	}
	if len(stage.AgentsToIntroduce) > 0 {
		return stage.AgentsToIntroduce[0]
	}
	return e.script.Coordinator
}
