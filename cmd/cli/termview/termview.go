// Package termview renders timeline snapshots for the terminal with lipgloss.
package termview

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/myrjola/mavis/internal/scores"
	"github.com/myrjola/mavis/internal/timeline"
	"github.com/myrjola/mavis/internal/transcript"
)

const barWidth = 20

var (
	Muted   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	Header  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	Active  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62"))
	Success = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#a3e635"))
	Gain    = lipgloss.NewStyle().Foreground(lipgloss.Color("#a3e635"))
	Loss    = lipgloss.NewStyle().Foreground(lipgloss.Color("#f87171"))
	userTag = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230"))
)

// Color converts a script color to a terminal color. Script colors are CSS colors such as "hsl(190, 95%, 50%)" or
// "#6366f1"; anything else is passed through for lipgloss to interpret.
func Color(css string) lipgloss.Color {
	var h, s, l float64
	if _, err := fmt.Sscanf(css, "hsl(%g, %g%%, %g%%)", &h, &s, &l); err == nil {
		return lipgloss.Color(colorful.Hsl(h, s/100, l/100).Clamped().Hex()) //nolint:mnd // percentages
	}
	return lipgloss.Color(css)
}

// Entry renders one transcript line. at is the time since the start of the run.
func Entry(at time.Duration, e transcript.Entry) string {
	sender := lipgloss.NewStyle().Bold(true).Foreground(Color(e.Color)).Render(e.Sender)
	if e.Kind == transcript.KindUser {
		sender = userTag.Render(e.Sender)
	}
	text := e.Text
	if e.Kind == transcript.KindSystem {
		text = Muted.Render(text)
	}
	return fmt.Sprintf("%s %s: %s", Muted.Render(Clock(at)), sender, text)
}

// Clock formats a run offset as [mm:ss.s].
func Clock(at time.Duration) string {
	minutes := int(at / time.Minute)
	seconds := (at % time.Minute).Seconds()
	return fmt.Sprintf("[%02d:%04.1f]", minutes, seconds)
}

// Scores renders one bar per dimension with the change since the previous scores.
func Scores(current, previous []scores.Score) string {
	width := 0
	for _, s := range current {
		width = max(width, len(s.Name))
	}
	var b strings.Builder
	for i, s := range current {
		filled := s.Value * barWidth / scores.Max
		bar := strings.Repeat("█", filled) + Muted.Render(strings.Repeat("░", barWidth-filled))
		fmt.Fprintf(&b, "%-*s %s %3d", width, s.Name, bar, s.Value)
		if i < len(previous) && previous[i].Name == s.Name {
			b.WriteString(Delta(s.Value - previous[i].Value))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Delta renders a score change, or nothing when there is none.
func Delta(d int) string {
	switch {
	case d > 0:
		return " " + Gain.Render(fmt.Sprintf("+%d", d))
	case d < 0:
		return " " + Loss.Render(fmt.Sprintf("%d", d))
	default:
		return ""
	}
}

// Status renders the stage line.
func Status(snap timeline.Snapshot) string {
	return fmt.Sprintf("%s  stage %d/%d %s  %s",
		Active.Render(" "+snap.Phase.String()+" "),
		snap.StageIndex+1, snap.StageCount, Header.Render(snap.StageName),
		Muted.Render(fmt.Sprintf("plan score %d", snap.PlanScore)))
}

// Question renders the pending question with numbered options, starting from 1.
func Question(q timeline.QuestionView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s asks (%d/%d): %s\n", Header.Render(q.Asker), q.Index+1, q.Count, q.Text)
	for i, option := range q.Options {
		fmt.Fprintf(&b, "  %s %s\n", Active.Render(fmt.Sprintf(" %d ", i+1)), option)
	}
	return b.String()
}
