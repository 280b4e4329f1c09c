package timeline

import (
	"fmt"

	"github.com/myrjola/mavis/internal/agents"
	"github.com/myrjola/mavis/internal/scores"
	"github.com/myrjola/mavis/internal/transcript"
)

// Snapshot is a read-only copy of everything a presentation sink shows. It shares no memory with the engine.
type Snapshot struct {
	// RunID identifies the run across restarts. Only set by [Runner].
	RunID            string             `json:"runId,omitempty"`
	Generation       uint64             `json:"generation"`
	Task             string             `json:"task"`
	Phase            Phase              `json:"phase"`
	StageIndex       int                `json:"stageIndex"`
	StageCount       int                `json:"stageCount"`
	StageName        string             `json:"stageName"`
	StageDescription string             `json:"stageDescription"`
	Question         *QuestionView      `json:"question,omitempty"`
	Negotiation      *NegotiationView   `json:"negotiation,omitempty"`
	Transcript       []transcript.Entry `json:"transcript"`
	// TranscriptAppended counts the entries appended during the run, including the ones evicted from Transcript.
	TranscriptAppended int            `json:"transcriptAppended"`
	Scores             []scores.Score `json:"scores"`
	PreviousScores     []scores.Score `json:"previousScores"`
	PlanScore          int            `json:"planScore"`
	Agents             []agents.Agent `json:"agents"`
	CurrentAgentID     string         `json:"currentAgentId"`
	// Summary is only set once the run is finished.
	Summary string `json:"summary,omitempty"`
}

// QuestionView is the question waiting for an answer.
type QuestionView struct {
	Index    int      `json:"index"`
	Count    int      `json:"count"`
	AgentID  string   `json:"agentId"`
	Asker    string   `json:"asker"`
	Text     string   `json:"text"`
	Options  []string `json:"options"`
	Answered bool     `json:"answered"`
}

// NegotiationView is the negotiation event currently playing.
type NegotiationView struct {
	Index   int    `json:"index"`
	Count   int    `json:"count"`
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message"`
}

// Snapshot copies the current state.
func (e *Engine) Snapshot() Snapshot {
	stage := e.script.Stages[e.stage]
	snap := Snapshot{
		RunID:              "",
		Generation:         e.generation,
		Task:               e.script.Task,
		Phase:              e.phase,
		StageIndex:         e.stage,
		StageCount:         len(e.script.Stages),
		StageName:          stage.Name,
		StageDescription:   stage.Description,
		Question:           nil,
		Negotiation:        nil,
		Transcript:         e.transcript.Entries(),
		TranscriptAppended: e.transcript.Appended(),
		Scores:             e.scores.Scores(),
		PreviousScores:     append([]scores.Score(nil), e.previous...),
		PlanScore:          e.scores.PlanScore(),
		Agents:             e.agents.Agents(),
		CurrentAgentID:     e.currentAgentID(),
		Summary:            "",
	}
	if q, ok := e.currentQuestion(); ok {
		options := make([]string, len(q.Options))
		for i, o := range q.Options {
			options[i] = o.Label
		}
		asker, _ := e.agents.Lookup(q.Agent)
		snap.Question = &QuestionView{
			Index:    e.question,
			Count:    len(stage.Questions),
			AgentID:  q.Agent,
			Asker:    asker.Role,
			Text:     q.Text,
			Options:  options,
			Answered: e.answered,
		}
	}
	if e.phase == PhaseNegotiation && e.negotiation != noNegotiation {
		n := stage.Negotiations[e.negotiation]
		snap.Negotiation = &NegotiationView{
			Index:   e.negotiation,
			Count:   len(stage.Negotiations),
			From:    n.From,
			To:      n.To,
			Message: n.Message,
		}
	}
	if e.phase == PhaseFinished {
		snap.Summary = fmt.Sprintf("%d agents collaborated across %d stages to produce a preference-aligned plan "+
			"with score %d.", e.agents.Introduced(), len(e.script.Stages), snap.PlanScore)
	}
	return snap
}

// Score returns the value of the named dimension.
func (s Snapshot) Score(name string) (int, bool) {
	for _, score := range s.Scores {
		if score.Name == name {
			return score.Value, true
		}
	}
	return 0, false
}

// Agent looks up an agent of the snapshot by id.
func (s Snapshot) Agent(id string) (agents.Agent, bool) {
	for _, a := range s.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return agents.Agent{}, false
}

// NewEntries returns the entries appended since a snapshot whose TranscriptAppended was seen. Entries already evicted
// from the bounded transcript are lost.
func (s Snapshot) NewEntries(seen int) []transcript.Entry {
	fresh := s.TranscriptAppended - seen
	if fresh <= 0 {
		return nil
	}
	if fresh > len(s.Transcript) {
		fresh = len(s.Transcript)
	}
	return s.Transcript[len(s.Transcript)-fresh:]
}

// CanAnswer reports whether an answer would currently be accepted for some option.
func (s Snapshot) CanAnswer() bool {
	return s.Phase.AcceptsAnswers() && s.Question != nil && !s.Question.Answered
}
