package timeline

import (
	"cmp"
	"context"
	"math"
	"slices"
	"time"
)

// Step names the transition a continuation performs when it fires.
type Step int

const (
	StepIntroLine Step = iota + 1
	StepEnterStage
	StepAskQuestion
	StepAcknowledge
	StepAfterAnswer
	StepOpenNegotiation
	StepNegotiationMessage
	StepNegotiationAdvance
	StepAdvanceStage
)

var stepNames = map[Step]string{
	StepIntroLine:          "intro-line",
	StepEnterStage:         "enter-stage",
	StepAskQuestion:        "ask-question",
	StepAcknowledge:        "acknowledge",
	StepAfterAnswer:        "after-answer",
	StepOpenNegotiation:    "open-negotiation",
	StepNegotiationMessage: "negotiation-message",
	StepNegotiationAdvance: "negotiation-advance",
	StepAdvanceStage:       "advance-stage",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "unknown"
}

// Continuation is a deferred transition. It is plain data so that schedulers can hold it without capturing
// engine state. Index is the intro line, stage, question, or negotiation the step refers to and Option is the
// chosen option of an acknowledged answer.
type Continuation struct {
	Generation uint64
	Step       Step
	Index      int
	Option     int
}

// Scheduler delivers a continuation back to the engine once the delay has passed.
type Scheduler interface {
	Schedule(after time.Duration, c Continuation)
}

// Firer applies continuations. [Engine] is the only implementation outside tests.
type Firer interface {
	Fire(ctx context.Context, c Continuation) bool
}

type virtualTimer struct {
	due time.Duration
	seq uint64
	c   Continuation
}

// VirtualClock is a [Scheduler] whose time only moves when told to. Continuations fire in due order and
// continuations due at the same instant fire in the order they were scheduled.
type VirtualClock struct {
	now     time.Duration
	seq     uint64
	pending []virtualTimer
}

func NewVirtualClock() *VirtualClock {
	return &VirtualClock{}
}

// Schedule implements [Scheduler].
func (v *VirtualClock) Schedule(after time.Duration, c Continuation) {
	v.pending = append(v.pending, virtualTimer{due: v.now + max(after, 0), seq: v.seq, c: c})
	v.seq++
}

// Now is the time elapsed since the clock was created.
func (v *VirtualClock) Now() time.Duration {
	return v.now
}

// Pending returns the continuations that have not fired yet in firing order.
func (v *VirtualClock) Pending() []Continuation {
	v.sort()
	pending := make([]Continuation, len(v.pending))
	for i, t := range v.pending {
		pending[i] = t.c
	}
	return pending
}

// Advance moves the clock forward by d and fires everything that falls due on the way, including continuations
// scheduled by the firings themselves. It returns the number of continuations fired.
func (v *VirtualClock) Advance(ctx context.Context, target Firer, d time.Duration) int {
	deadline := v.now + d
	fired := v.fireUntil(ctx, target, deadline)
	v.now = deadline
	return fired
}

// RunUntilIdle fires continuations until none are pending, jumping the clock to each due time.
func (v *VirtualClock) RunUntilIdle(ctx context.Context, target Firer) int {
	return v.fireUntil(ctx, target, time.Duration(math.MaxInt64))
}

func (v *VirtualClock) fireUntil(ctx context.Context, target Firer, deadline time.Duration) int {
	fired := 0
	for len(v.pending) > 0 {
		v.sort()
		next := v.pending[0]
		if next.due > deadline {
			break
		}
		v.pending = v.pending[1:]
		v.now = next.due
		target.Fire(ctx, next.c)
		fired++
	}
	return fired
}

func (v *VirtualClock) sort() {
	slices.SortFunc(v.pending, func(a, b virtualTimer) int {
		if c := cmp.Compare(a.due, b.due); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
}
