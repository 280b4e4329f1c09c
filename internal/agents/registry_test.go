package agents_test

import (
	"testing"

	"github.com/myrjola/mavis/internal/agents"
	"github.com/stretchr/testify/require"
)

func roster() []agents.Agent {
	return []agents.Agent{
		{ID: "pm", Role: "Project Manager", ShortRole: "PM", X: 0.5, Y: 0.18, Introduced: true},
		{ID: "concept", Role: "Concept Developer", ShortRole: "Concept", X: 0.22, Y: 0.38},
		{ID: "script", Role: "Scriptwriter", ShortRole: "Script", X: 0.78, Y: 0.38},
	}
}

func TestNewRegistry(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func([]agents.Agent) []agents.Agent
		wantErr error
	}{
		{name: "valid", mutate: func(a []agents.Agent) []agents.Agent { return a }},
		{
			name:    "duplicate id",
			mutate:  func(a []agents.Agent) []agents.Agent { a[2].ID = "concept"; return a },
			wantErr: agents.ErrDuplicateAgent,
		},
		{
			name:    "position outside unit square",
			mutate:  func(a []agents.Agent) []agents.Agent { a[1].X = 1.2; return a },
			wantErr: agents.ErrInvalidPosition,
		},
		{
			name:    "missing role",
			mutate:  func(a []agents.Agent) []agents.Agent { a[1].Role = ""; return a },
			wantErr: agents.ErrIncompleteAgent,
		},
		{
			name:    "nobody introduced initially",
			mutate:  func(a []agents.Agent) []agents.Agent { a[0].Introduced = false; return a },
			wantErr: agents.ErrNoInitialAgent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := agents.NewRegistry(tt.mutate(roster()))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRegistry_Introduce(t *testing.T) {
	r, err := agents.NewRegistry(roster())
	require.NoError(t, err)
	require.Equal(t, 1, r.Introduced())

	introduced, err := r.Introduce("concept", "pm")
	require.NoError(t, err)
	require.Len(t, introduced, 1, "pm was introduced from the start")
	require.Equal(t, "concept", introduced[0].ID)
	require.True(t, introduced[0].Introduced)

	introduced, err = r.Introduce("concept")
	require.NoError(t, err)
	require.Empty(t, introduced, "introducing twice is a no-op")
	require.Equal(t, 2, r.Introduced())

	_, err = r.Introduce("script", "ghost")
	require.ErrorIs(t, err, agents.ErrUnknownAgent)
	script, ok := r.Lookup("script")
	require.True(t, ok)
	require.False(t, script.Introduced, "a failed call must not introduce anybody")
}

func TestRegistry_Reset(t *testing.T) {
	r, err := agents.NewRegistry(roster())
	require.NoError(t, err)
	initial := r.Agents()

	_, err = r.Introduce("concept", "script")
	require.NoError(t, err)
	require.NotEqual(t, initial, r.Agents())

	r.Reset()
	require.Equal(t, initial, r.Agents())
}

func TestRegistry_Lookup(t *testing.T) {
	r, err := agents.NewRegistry(roster())
	require.NoError(t, err)

	a, ok := r.Lookup("concept")
	require.True(t, ok)
	require.Equal(t, "Concept Developer", a.Role)

	_, ok = r.Lookup("ghost")
	require.False(t, ok)
}
