package play

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/myrjola/mavis/internal/script"
	"github.com/myrjola/mavis/internal/testhelpers"
	"github.com/myrjola/mavis/internal/timeline"
	"github.com/stretchr/testify/require"
)

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s), Alt: false, Paste: false}
}

func newTestModel(t *testing.T) *Model {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	s, err := script.Default()
	require.NoError(t, err)
	m, err := NewModel(ctx, s, testhelpers.NewLogger(testhelpers.NewWriter(t)), 1000)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

// press runs the command of a key press to completion and feeds its result back.
func press(t *testing.T, m *Model, k string) {
	t.Helper()
	cmd := m.handleKey(k)
	require.NotNil(t, cmd)
	m.Update(cmd())
}

// awaitSnapshot feeds broker updates into the model until done reports true.
func awaitSnapshot(t *testing.T, m *Model, done func(timeline.Snapshot) bool) {
	t.Helper()
	for !done(m.Snapshot()) {
		msg := m.waitForSnapshot()()
		require.NotNil(t, msg, "timed out in phase %s", m.Snapshot().Phase)
		m.Update(msg)
	}
}

func TestModel_playThrough(t *testing.T) {
	m := newTestModel(t)
	require.Equal(t, timeline.PhaseIdle, m.Snapshot().Phase)
	require.Contains(t, m.View(), "s start")

	press(t, m, "s")
	require.Equal(t, timeline.PhaseIntro, m.Snapshot().Phase)

	answered := 0
	for m.Snapshot().Phase != timeline.PhaseFinished {
		awaitSnapshot(t, m, func(snap timeline.Snapshot) bool {
			return snap.CanAnswer() || snap.Phase == timeline.PhaseFinished
		})
		if m.Snapshot().CanAnswer() {
			require.Contains(t, m.View(), m.Snapshot().Question.Text)
			press(t, m, "1")
			answered++
		}
	}
	require.Equal(t, 5, answered)

	snap := m.Snapshot()
	require.NotEmpty(t, snap.Summary)
	require.Len(t, m.stamps, snap.TranscriptAppended)
	view := m.View()
	require.Contains(t, view, snap.Summary)
	require.Contains(t, view, "[00:")

	press(t, m, "r")
	require.Equal(t, timeline.PhaseIdle, m.Snapshot().Phase)
	require.Greater(t, m.Snapshot().Generation, snap.Generation)
	require.Empty(t, m.stamps)
}

func TestModel_keys(t *testing.T) {
	m := newTestModel(t)

	// Answers before the start are ignored.
	press(t, m, "2")
	require.Equal(t, timeline.PhaseIdle, m.Snapshot().Phase)

	require.Nil(t, m.handleKey("x"))
	require.Nil(t, m.handleKey("0"))

	_, cmd := m.Update(key("q"))
	require.IsType(t, tea.QuitMsg{}, cmd())
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC, Runes: nil, Alt: false, Paste: false})
	require.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_ignoresStaleSnapshots(t *testing.T) {
	m := newTestModel(t)
	idle := m.Snapshot()

	press(t, m, "s")
	started := m.Snapshot()
	require.Greater(t, started.Generation, idle.Generation)

	m.Update(snapshotMsg(idle))
	require.Equal(t, started.Generation, m.Snapshot().Generation)
	require.Equal(t, timeline.PhaseIntro, m.Snapshot().Phase)
}
