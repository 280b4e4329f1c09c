// Package scores holds the preference dimensions of a planning run and the derived plan score.
package scores

import (
	"log/slog"
	"math"

	"github.com/myrjola/mavis/internal/errors"
)

// Values stay within [Min, Max] after every update.
const (
	Min = 5
	Max = 100
)

var (
	ErrUnknownDimension = errors.NewSentinel("unknown dimension")
	ErrInvalidBaseline  = errors.NewSentinel("invalid dimension baseline")
)

// Dimension is a named preference axis with the value it starts from on every reset.
type Dimension struct {
	Name     string `yaml:"name"`
	Baseline int    `yaml:"baseline"`
}

// Score is the current value of one dimension.
type Score struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// Model is a closed set of dimensions updated only by additive, clamped deltas.
//
// Model is not safe for concurrent use; the timeline engine owns it.
type Model struct {
	dimensions []Dimension
	values     map[string]int
}

// NewModel creates a Model positioned at the baselines of dims. The dimension set is fixed from here on.
func NewModel(dims []Dimension) (*Model, error) {
	if len(dims) == 0 {
		return nil, errors.Wrap(ErrUnknownDimension, "no dimensions")
	}
	m := &Model{
		dimensions: make([]Dimension, 0, len(dims)),
		values:     make(map[string]int, len(dims)),
	}
	for _, d := range dims {
		if d.Name == "" {
			return nil, errors.Wrap(ErrUnknownDimension, "empty dimension name")
		}
		if _, ok := m.values[d.Name]; ok {
			return nil, errors.Wrap(ErrUnknownDimension, "duplicate dimension", slog.String("dimension", d.Name))
		}
		if d.Baseline < Min || d.Baseline > Max {
			return nil, errors.Wrap(ErrInvalidBaseline, "baseline out of range",
				slog.String("dimension", d.Name), slog.Int("baseline", d.Baseline))
		}
		m.dimensions = append(m.dimensions, d)
		m.values[d.Name] = d.Baseline
	}
	return m, nil
}

// Validate reports effect keys that are not part of the dimension set.
func (m *Model) Validate(effect map[string]int) error {
	var errs []error
	for name := range effect {
		if _, ok := m.values[name]; !ok {
			errs = append(errs, errors.Wrap(ErrUnknownDimension, "unknown effect key", slog.String("dimension", name)))
		}
	}
	return errors.Join(errs...)
}

// Apply adds each delta of effect to its dimension and clamps the result to [Min, Max].
// Dimensions not mentioned are unchanged. Keys outside the dimension set are ignored; scripts are validated
// against the set before they reach the engine.
func (m *Model) Apply(effect map[string]int) {
	for name, delta := range effect {
		old, ok := m.values[name]
		if !ok {
			continue
		}
		m.values[name] = Clamp(old + delta)
	}
}

// Reset restores every dimension to its baseline.
func (m *Model) Reset() {
	for _, d := range m.dimensions {
		m.values[d.Name] = d.Baseline
	}
}

// Value returns the current value of the named dimension.
func (m *Model) Value(name string) (int, bool) {
	v, ok := m.values[name]
	return v, ok
}

// Dimensions returns the dimensions in declaration order.
func (m *Model) Dimensions() []Dimension {
	dims := make([]Dimension, len(m.dimensions))
	copy(dims, m.dimensions)
	return dims
}

// Scores returns the current values in declaration order.
func (m *Model) Scores() []Score {
	scores := make([]Score, len(m.dimensions))
	for i, d := range m.dimensions {
		scores[i] = Score{Name: d.Name, Value: m.values[d.Name]}
	}
	return scores
}

// PlanScore is derived from the current values on every call; see [PlanScore].
func (m *Model) PlanScore() int {
	return PlanScore(m.Scores())
}

// Clamp bounds v to [Min, Max].
func Clamp(v int) int {
	return min(max(v, Min), Max)
}

// PlanScore rewards a high average and penalises the spread between the strongest and weakest dimension:
// round(mean*0.6 + (100-(max-min))*0.4).
func PlanScore(scores []Score) int {
	if len(scores) == 0 {
		return 0
	}
	lo, hi, sum := scores[0].Value, scores[0].Value, 0
	for _, s := range scores {
		sum += s.Value
		lo = min(lo, s.Value)
		hi = max(hi, s.Value)
	}
	mean := float64(sum) / float64(len(scores))
	balanced := float64(100 - (hi - lo)) //nolint:mnd // full balance is worth 100 points.
	// Half-up rounding; the operand is always positive.
	return int(math.Floor(mean*0.6 + balanced*0.4 + 0.5)) //nolint:mnd // weights of the plan score.
}
