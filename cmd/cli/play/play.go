// Package play runs a planning session in real time in the terminal.
package play

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/myrjola/mavis/cmd/cli/termview"
	"github.com/myrjola/mavis/internal/broker"
	"github.com/myrjola/mavis/internal/errors"
	"github.com/myrjola/mavis/internal/script"
	"github.com/myrjola/mavis/internal/timeline"
	"github.com/spf13/cobra"
)

// visibleEntries is how many transcript lines the view shows.
const visibleEntries = 12

// session is the broker topic of the single local run.
const session = "local"

func init() {
	Command.Flags().String("script", "", "path to a timeline script, the embedded MAVIS script when empty")
	Command.Flags().Int("speedup", 1, "divides every scripted delay")
}

var Command = &cobra.Command{
	Use:     "play",
	GroupID: "timeline",
	Short:   "Play a planning session in the terminal",
	Long:    `Plays the timeline in real time. Press s to start, 1-9 to answer, r to restart and q to quit.`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		scriptPath, _ := cmd.Flags().GetString("script")
		speedup, _ := cmd.Flags().GetInt("speedup")
		s, err := script.LoadFileOrDefault(scriptPath)
		if err != nil {
			return errors.Wrap(err, "load script")
		}
		// The terminal belongs to the program, so logs are dropped below warnings.
		logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
			AddSource:   false,
			Level:       slog.LevelWarn,
			ReplaceAttr: nil,
		}))
		return Run(cmd.Context(), s, logger, speedup)
	},
}

// Run hosts a runner and drives it from a bubbletea program until the user quits.
func Run(ctx context.Context, s *script.Script, logger *slog.Logger, speedup int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m, err := NewModel(ctx, s, logger, speedup)
	if err != nil {
		return err
	}
	defer m.Close()

	if _, err = tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen()).Run(); err != nil {
		return errors.Wrap(err, "run terminal program")
	}
	return nil
}

type snapshotMsg timeline.Snapshot

type errMsg struct {
	err error
}

// Model is the bubbletea model of a local run.
type Model struct {
	ctx     context.Context
	runner  *timeline.Runner
	updates <-chan timeline.Snapshot
	stop    func()
	started time.Time

	snap timeline.Snapshot
	// stamps holds the arrival offset of every transcript entry of the current generation.
	stamps []time.Duration
	err    error
}

// NewModel starts a runner whose snapshots flow into the model. Call Close when done.
func NewModel(ctx context.Context, s *script.Script, logger *slog.Logger, speedup int) (*Model, error) {
	b := broker.New[string, timeline.Snapshot]()
	go b.Start()
	r, err := timeline.NewRunner(s, logger, timeline.RunnerOptions{
		Speedup: speedup,
		OnSnapshot: func(snap timeline.Snapshot) {
			b.Publish(session, snap)
		},
		OnFinished: nil,
	})
	if err != nil {
		b.Stop()
		return nil, errors.Wrap(err, "new runner")
	}
	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		if runErr := r.Run(runCtx); runErr != nil {
			logger.LogAttrs(runCtx, slog.LevelError, "runner failed", errors.SlogError(runErr))
		}
	}()
	snap, err := r.Snapshot(ctx)
	if err != nil {
		cancel()
		b.Stop()
		return nil, errors.Wrap(err, "initial snapshot")
	}
	updates, unsubscribe := b.Subscribe(session)
	return &Model{
		ctx:     ctx,
		runner:  r,
		updates: updates,
		stop: func() {
			unsubscribe()
			cancel()
			<-r.Done()
			b.Stop()
		},
		started: time.Time{},
		snap:    snap,
		stamps:  nil,
		err:     nil,
	}, nil
}

// Close stops the runner.
func (m *Model) Close() {
	m.stop()
}

func (m *Model) Init() tea.Cmd {
	return m.waitForSnapshot()
}

func (m *Model) waitForSnapshot() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.ctx.Done():
			return nil
		case snap, ok := <-m.updates:
			if !ok {
				return nil
			}
			return snapshotMsg(snap)
		}
	}
}

// command runs fn off the update loop and reports the resulting snapshot.
func (m *Model) command(fn func(ctx context.Context) (timeline.Snapshot, error)) tea.Cmd {
	return func() tea.Msg {
		snap, err := fn(m.ctx)
		if err != nil {
			return errMsg{err: err}
		}
		return snapshotMsg(snap)
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg.String())
	case snapshotMsg:
		snap := timeline.Snapshot(msg)
		// Replies to commands and broker updates interleave; older generations and states never win.
		if snap.Generation < m.snap.Generation ||
			(snap.Generation == m.snap.Generation && snap.TranscriptAppended < m.snap.TranscriptAppended) {
			return m, m.waitForSnapshot()
		}
		seen := len(m.stamps)
		if snap.Generation != m.snap.Generation {
			seen = 0
			m.stamps = m.stamps[:0]
			m.started = time.Time{}
		}
		if m.started.IsZero() && snap.Phase != timeline.PhaseIdle {
			m.started = time.Now()
		}
		for range snap.NewEntries(seen) {
			m.stamps = append(m.stamps, m.elapsed())
		}
		m.snap = snap
		return m, m.waitForSnapshot()
	case errMsg:
		m.err = msg.err
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKey(key string) tea.Cmd {
	switch key {
	case "q", "ctrl+c":
		return tea.Quit
	case "s":
		return m.command(func(ctx context.Context) (timeline.Snapshot, error) {
			snap, _, err := m.runner.Start(ctx)
			return snap, err //nolint:wrapcheck // shown as is
		})
	case "r":
		return m.command(m.runner.Restart)
	}
	if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
		option := int(key[0] - '1')
		return m.command(func(ctx context.Context) (timeline.Snapshot, error) {
			snap, _, err := m.runner.Answer(ctx, option)
			return snap, err //nolint:wrapcheck // shown as is
		})
	}
	return nil
}

func (m *Model) elapsed() time.Duration {
	if m.started.IsZero() {
		return 0
	}
	return time.Since(m.started)
}

// Snapshot is the state the view currently shows.
func (m *Model) Snapshot() timeline.Snapshot {
	return m.snap
}

func (m *Model) View() string {
	snap := m.snap
	var b strings.Builder
	b.WriteString(termview.Header.Render(snap.Task) + "\n")
	b.WriteString(termview.Status(snap) + "\n")
	b.WriteString(termview.Muted.Render(snap.StageDescription) + "\n\n")

	first := max(len(snap.Transcript)-visibleEntries, 0)
	offset := snap.TranscriptAppended - len(snap.Transcript)
	for i, e := range snap.Transcript[first:] {
		at := time.Duration(0)
		if n := offset + first + i; n >= 0 && n < len(m.stamps) {
			at = m.stamps[n]
		}
		b.WriteString(termview.Entry(at, e) + "\n")
	}
	b.WriteString("\n")

	if q := snap.Question; q != nil && snap.CanAnswer() {
		b.WriteString(termview.Question(*q) + "\n")
	}
	if n := snap.Negotiation; n != nil {
		b.WriteString(termview.Muted.Render(fmt.Sprintf("negotiation %d/%d: %s → %s", n.Index+1, n.Count, n.From, n.To)))
		b.WriteString("\n\n")
	}
	b.WriteString(termview.Scores(snap.Scores, snap.PreviousScores))
	if snap.Summary != "" {
		b.WriteString("\n" + termview.Success.Render(snap.Summary) + "\n")
	}
	if m.err != nil {
		b.WriteString("\n" + termview.Loss.Render(m.err.Error()) + "\n")
	}
	b.WriteString("\n" + termview.Muted.Render("s start · 1-9 answer · r restart · q quit") + "\n")
	return b.String()
}
