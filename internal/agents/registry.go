// Package agents holds the fixed roster of planning agents and tracks which of them joined the session.
package agents

import (
	"log/slog"

	"github.com/myrjola/mavis/internal/errors"
)

var (
	ErrUnknownAgent    = errors.NewSentinel("unknown agent")
	ErrDuplicateAgent  = errors.NewSentinel("duplicate agent")
	ErrInvalidPosition = errors.NewSentinel("agent position outside the unit square")
	ErrIncompleteAgent = errors.NewSentinel("agent is missing display metadata")
	ErrNoInitialAgent  = errors.NewSentinel("no agent is introduced initially")
)

// Agent is one participant of the simulated planning session.
//
// X and Y are normalized workspace coordinates in [0, 1].
type Agent struct {
	ID         string  `yaml:"id" json:"id"`
	Role       string  `yaml:"role" json:"role"`
	ShortRole  string  `yaml:"short_role" json:"shortRole"`
	Color      string  `yaml:"color" json:"color"`
	Avatar     string  `yaml:"avatar" json:"avatar"`
	X          float64 `yaml:"x" json:"x"`
	Y          float64 `yaml:"y" json:"y"`
	Introduced bool    `yaml:"introduced" json:"introduced"`
}

// Registry is the roster together with the introduced flags of the current run.
type Registry struct {
	roster []Agent
	agents []Agent
	index  map[string]int
}

// NewRegistry validates roster and returns a registry in its initial state.
func NewRegistry(roster []Agent) (*Registry, error) {
	var (
		errs       []error
		index      = make(map[string]int, len(roster))
		anyInitial bool
	)
	for i, a := range roster {
		attr := slog.String("agent", a.ID)
		if a.ID == "" || a.Role == "" || a.ShortRole == "" {
			errs = append(errs, errors.Wrap(ErrIncompleteAgent, "validate agent", attr, slog.Int("position", i)))
		}
		if _, ok := index[a.ID]; ok {
			errs = append(errs, errors.Wrap(ErrDuplicateAgent, "validate agent", attr))
		}
		if a.X < 0 || a.X > 1 || a.Y < 0 || a.Y > 1 {
			errs = append(errs, errors.Wrap(ErrInvalidPosition, "validate agent", attr,
				slog.Float64("x", a.X), slog.Float64("y", a.Y)))
		}
		index[a.ID] = i
		anyInitial = anyInitial || a.Introduced
	}
	if len(roster) > 0 && !anyInitial {
		errs = append(errs, errors.Wrap(ErrNoInitialAgent, "validate roster"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	r := &Registry{
		roster: make([]Agent, len(roster)),
		agents: make([]Agent, len(roster)),
		index:  index,
	}
	copy(r.roster, roster)
	copy(r.agents, roster)
	return r, nil
}

// Introduce marks the agents with the given ids as introduced and returns the ones that were not introduced
// before, in the order of ids. Introducing an already introduced agent is a no-op.
//
// An unknown id fails the whole call without changing any flag.
func (r *Registry) Introduce(ids ...string) ([]Agent, error) {
	for _, id := range ids {
		if _, ok := r.index[id]; !ok {
			return nil, errors.Wrap(ErrUnknownAgent, "introduce agents", slog.String("agent", id))
		}
	}
	var introduced []Agent
	for _, id := range ids {
		a := &r.agents[r.index[id]]
		if a.Introduced {
			continue
		}
		a.Introduced = true
		introduced = append(introduced, *a)
	}
	return introduced, nil
}

// Lookup returns the agent with the given id.
func (r *Registry) Lookup(id string) (Agent, bool) {
	i, ok := r.index[id]
	if !ok {
		return Agent{}, false
	}
	return r.agents[i], true
}

// Agents returns a copy of the roster with the current introduced flags.
func (r *Registry) Agents() []Agent {
	agents := make([]Agent, len(r.agents))
	copy(agents, r.agents)
	return agents
}

// Introduced counts the agents that joined the session.
func (r *Registry) Introduced() int {
	n := 0
	for _, a := range r.agents {
		if a.Introduced {
			n++
		}
	}
	return n
}

// Reset restores the initial introduced flags.
func (r *Registry) Reset() {
	copy(r.agents, r.roster)
}
