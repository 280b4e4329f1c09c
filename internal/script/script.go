// Package script describes a scripted planning session: who takes part, what they ask, how answers move the
// preference scores, and how long every scripted beat takes. Scripts are loaded once and never mutated.
package script

import (
	"bytes"
	_ "embed"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/myrjola/mavis/internal/agents"
	"github.com/myrjola/mavis/internal/errors"
	"github.com/myrjola/mavis/internal/scores"
	"gopkg.in/yaml.v3"
)

//go:embed mavis.yaml
var defaultScript []byte

// SystemSender is the reserved sender id of lines spoken by the system identity.
const SystemSender = "system"

var ErrInvalidScript = errors.NewSentinel("invalid script")

// Script is the immutable configuration of a planning session.
type Script struct {
	Task               string             `yaml:"task"`
	Coordinator        string             `yaml:"coordinator"`
	TranscriptCapacity int                `yaml:"transcript_capacity"`
	System             Identity           `yaml:"system"`
	User               Identity           `yaml:"user"`
	Dimensions         []scores.Dimension `yaml:"dimensions"`
	Agents             []agents.Agent     `yaml:"agents"`
	Messages           Messages           `yaml:"messages"`
	Timing             Timing             `yaml:"timing"`
	Intro              Intro              `yaml:"intro"`
	Stages             []Stage            `yaml:"stages"`
}

// Identity is a transcript sender that is not an agent.
type Identity struct {
	Name  string `yaml:"name"`
	Color string `yaml:"color"`
}

// Messages are the templates of the lines the engine composes itself.
// {role} and {label} are replaced by the introduced agent's role and the chosen option's label.
type Messages struct {
	Introduction              string `yaml:"introduction"`
	Acknowledgement           string `yaml:"acknowledgement"`
	NegotiationAfterQuestions string `yaml:"negotiation_after_questions"`
	NegotiationOnly           string `yaml:"negotiation_only"`
	Finished                  string `yaml:"finished"`
}

// Timing holds the delays between scripted beats.
type Timing struct {
	StageLeadIn        Duration `yaml:"stage_lead_in"`
	Acknowledge        Duration `yaml:"acknowledge"`
	AnswerAdvance      Duration `yaml:"answer_advance"`
	NegotiationMessage Duration `yaml:"negotiation_message"`
	NegotiationAdvance Duration `yaml:"negotiation_advance"`
	StageDone          Duration `yaml:"stage_done"`
}

// Intro is played when a run starts. Offsets are measured from the start of the run.
type Intro struct {
	EnterFirstStageAt Duration    `yaml:"enter_first_stage_at"`
	Lines             []IntroLine `yaml:"lines"`
}

type IntroLine struct {
	At   Duration `yaml:"at"`
	From string   `yaml:"from"`
	Text string   `yaml:"text"`
}

// Stage is one scripted step. Stage 0 is played by the intro and carries no interaction.
type Stage struct {
	Name              string        `yaml:"name"`
	Description       string        `yaml:"description"`
	AgentsToIntroduce []string      `yaml:"agents_to_introduce"`
	Questions         []Question    `yaml:"questions"`
	Negotiations      []Negotiation `yaml:"negotiations"`
}

// Question is a preference question asked by one agent.
type Question struct {
	Agent   string   `yaml:"agent"`
	Text    string   `yaml:"question"`
	Options []Option `yaml:"options"`
}

// Option is an answer to a question and its effect on the scores.
type Option struct {
	Label  string         `yaml:"label"`
	Effect map[string]int `yaml:"effect"`
}

// Negotiation is a directed message between two agents.
type Negotiation struct {
	From    string `yaml:"from"`
	To      string `yaml:"to"`
	Message string `yaml:"message"`
}

// Duration is a [time.Duration] written as a Go duration string, e.g. "1200ms".
type Duration time.Duration

// UnmarshalYAML implements [yaml.Unmarshaler].
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return errors.Wrap(err, "decode duration", slog.Int("line", value.Line))
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrap(err, "parse duration", slog.Int("line", value.Line))
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements [yaml.Marshaler].
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the embedded MAVIS promo video script.
func Default() (*Script, error) {
	s, err := Load(bytes.NewReader(defaultScript))
	if err != nil {
		return nil, errors.Wrap(err, "load embedded script")
	}
	return s, nil
}

// LoadFile loads and validates the script at path.
func LoadFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open script", slog.String("path", path))
	}
	defer f.Close()
	s, err := Load(f)
	if err != nil {
		return nil, errors.Wrap(err, "load script", slog.String("path", path))
	}
	return s, nil
}

// LoadFileOrDefault loads the script at path, or the embedded one when path is empty.
func LoadFileOrDefault(path string) (*Script, error) {
	if path == "" {
		return Default()
	}
	return LoadFile(path)
}

// Load decodes a YAML script and validates it. Unknown fields are rejected.
func Load(r io.Reader) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, errors.Wrap(err, "decode script")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that every reference in the script resolves and that every beat can be played.
// All problems are reported at once, each wrapping [ErrInvalidScript].
func (s *Script) Validate() error {
	var errs []error
	invalid := func(msg string, attrs ...slog.Attr) {
		errs = append(errs, errors.Wrap(ErrInvalidScript, msg, attrs...))
	}

	model, err := scores.NewModel(s.Dimensions)
	if err != nil {
		errs = append(errs, errors.Wrap(err, "invalid dimensions"))
	}
	registry, err := agents.NewRegistry(s.Agents)
	if err != nil {
		errs = append(errs, errors.Wrap(err, "invalid agents"))
	}
	if model == nil || registry == nil {
		return errors.Wrap(errors.Join(errs...), "validate script")
	}

	if _, ok := registry.Lookup(s.Coordinator); !ok {
		invalid("unknown coordinator", slog.String("agent", s.Coordinator))
	}
	if s.System.Name == "" || s.User.Name == "" {
		invalid("system and user identities need a name")
	}
	if s.TranscriptCapacity < 0 {
		invalid("negative transcript capacity", slog.Int("capacity", s.TranscriptCapacity))
	}
	for name, template := range map[string]string{
		"introduction":                s.Messages.Introduction,
		"acknowledgement":             s.Messages.Acknowledgement,
		"negotiation_after_questions": s.Messages.NegotiationAfterQuestions,
		"negotiation_only":            s.Messages.NegotiationOnly,
		"finished":                    s.Messages.Finished,
	} {
		if strings.TrimSpace(template) == "" {
			invalid("empty message template", slog.String("message", name))
		}
	}
	for name, d := range map[string]Duration{
		"stage_lead_in":        s.Timing.StageLeadIn,
		"acknowledge":          s.Timing.Acknowledge,
		"answer_advance":       s.Timing.AnswerAdvance,
		"negotiation_message":  s.Timing.NegotiationMessage,
		"negotiation_advance":  s.Timing.NegotiationAdvance,
		"stage_done":           s.Timing.StageDone,
		"enter_first_stage_at": s.Intro.EnterFirstStageAt,
	} {
		if d < 0 {
			invalid("negative delay", slog.String("timing", name))
		}
	}
	// The acknowledgement has to land before the engine moves on.
	if s.Timing.Acknowledge > s.Timing.AnswerAdvance {
		invalid("acknowledge must not come after answer_advance")
	}
	if s.Timing.NegotiationMessage > s.Timing.NegotiationAdvance {
		invalid("negotiation_message must not come after negotiation_advance")
	}

	for i, line := range s.Intro.Lines {
		attr := slog.Int("introLine", i)
		if line.From != SystemSender {
			if _, ok := registry.Lookup(line.From); !ok {
				invalid("unknown intro sender", attr, slog.String("agent", line.From))
			}
		}
		if line.At < 0 || line.At > s.Intro.EnterFirstStageAt {
			invalid("intro line outside the intro", attr)
		}
	}

	errs = append(errs, s.validateStages(model, registry)...)

	if len(errs) > 0 {
		return errors.Wrap(errors.Join(errs...), "validate script")
	}
	return nil
}

func (s *Script) validateStages(model *scores.Model, registry *agents.Registry) []error {
	var errs []error
	invalid := func(msg string, attrs ...slog.Attr) {
		errs = append(errs, errors.Wrap(ErrInvalidScript, msg, attrs...))
	}

	if len(s.Stages) == 0 {
		invalid("no stages")
		return errs
	}
	first := s.Stages[0]
	if len(first.AgentsToIntroduce) > 0 || len(first.Questions) > 0 || len(first.Negotiations) > 0 {
		invalid("the first stage is played by the intro and cannot introduce agents, ask, or negotiate")
	}

	// Agents must join before they speak.
	present := map[string]bool{}
	for _, a := range s.Agents {
		present[a.ID] = a.Introduced
	}
	joined := func(id string) bool {
		return present[id]
	}

	for i, stage := range s.Stages {
		stageAttr := slog.Int("stage", i)
		if stage.Name == "" {
			invalid("unnamed stage", stageAttr)
		}
		for _, id := range stage.AgentsToIntroduce {
			if _, ok := registry.Lookup(id); !ok {
				invalid("unknown agent to introduce", stageAttr, slog.String("agent", id))
				continue
			}
			present[id] = true
		}
		for j, q := range stage.Questions {
			questionAttr := slog.Int("question", j)
			if !joined(q.Agent) {
				invalid("question asked by an agent that has not joined", stageAttr, questionAttr,
					slog.String("agent", q.Agent))
			}
			if strings.TrimSpace(q.Text) == "" {
				invalid("empty question", stageAttr, questionAttr)
			}
			if len(q.Options) == 0 {
				invalid("question without options", stageAttr, questionAttr)
			}
			for k, o := range q.Options {
				optionAttr := slog.Int("option", k)
				if strings.TrimSpace(o.Label) == "" {
					invalid("option without label", stageAttr, questionAttr, optionAttr)
				}
				if err := model.Validate(o.Effect); err != nil {
					errs = append(errs, errors.Wrap(err, "invalid option effect", stageAttr, questionAttr, optionAttr))
				}
			}
		}
		for j, n := range stage.Negotiations {
			negotiationAttr := slog.Int("negotiation", j)
			if !joined(n.From) || !joined(n.To) {
				invalid("negotiation between agents that have not joined", stageAttr, negotiationAttr,
					slog.String("from", n.From), slog.String("to", n.To))
			}
			if strings.TrimSpace(n.Message) == "" {
				invalid("empty negotiation message", stageAttr, negotiationAttr)
			}
		}
	}
	return errs
}

// IntroductionText renders the coordinator's line announcing role.
func (s *Script) IntroductionText(role string) string {
	return strings.ReplaceAll(s.Messages.Introduction, "{role}", role)
}

// AcknowledgementText renders the asking agent's reply to the chosen option label.
func (s *Script) AcknowledgementText(label string) string {
	return strings.ReplaceAll(s.Messages.Acknowledgement, "{label}", label)
}

// QuestionCount is the number of questions across all stages.
func (s *Script) QuestionCount() int {
	n := 0
	for _, stage := range s.Stages {
		n += len(stage.Questions)
	}
	return n
}
