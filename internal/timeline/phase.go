package timeline

// Phase is the engine's position in a run. Exactly one phase is active at a time.
type Phase string

const (
	PhaseIdle        Phase = "idle"        // Waiting for start
	PhaseIntro       Phase = "intro"       // Scripted opening lines
	PhaseQuestions   Phase = "questions"   // Waiting for an answer
	PhaseNegotiation Phase = "negotiation" // Agents exchange messages
	PhaseStageDone   Phase = "stage-done"  // Pause before the next stage
	PhaseFinished    Phase = "finished"    // Past the last stage
)

// IsTerminal reports whether only a restart can leave the phase.
func (p Phase) IsTerminal() bool {
	return p == PhaseFinished
}

// AcceptsAnswers reports whether answers are considered at all in the phase.
func (p Phase) AcceptsAnswers() bool {
	return p == PhaseQuestions
}

func (p Phase) IsValid() bool {
	switch p {
	case PhaseIdle, PhaseIntro, PhaseQuestions, PhaseNegotiation, PhaseStageDone, PhaseFinished:
		return true
	default:
		return false
	}
}

func (p Phase) String() string {
	return string(p)
}
