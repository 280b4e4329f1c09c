// Package replay plays a timeline script on a virtual clock with scripted answers. The output is the same on
// every run, which makes replays suitable for reviewing script changes.
package replay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/myrjola/mavis/cmd/cli/termview"
	"github.com/myrjola/mavis/internal/errors"
	"github.com/myrjola/mavis/internal/logging"
	"github.com/myrjola/mavis/internal/script"
	"github.com/myrjola/mavis/internal/timeline"
	"github.com/spf13/cobra"
)

// step is how far the virtual clock moves between transcript checks. It is shorter than any scripted delay.
const step = 50 * time.Millisecond

var (
	ErrTooManyAnswers = errors.NewSentinel("more answers than questions")
	ErrAnswerRejected = errors.NewSentinel("answer rejected")
	ErrStalled        = errors.NewSentinel("timeline stalled")
)

var Group = &cobra.Group{
	ID:    "timeline",
	Title: "Timeline",
}

func init() {
	Command.Flags().String("script", "", "path to a timeline script, the embedded MAVIS script when empty")
	Command.Flags().String("answers", "", "comma separated option indexes starting from 0, missing answers pick 0")
	Command.Flags().Bool("verbose", false, "log engine transitions to stderr")
}

var Command = &cobra.Command{
	Use:     "replay",
	GroupID: "timeline",
	Short:   "Replay a planning session",
	Long: `Plays the whole timeline script on a virtual clock, answering every question with the given options,
and prints the transcript, the final scores and the plan score.`,
	Example: "mavis-cli replay --answers 0,1,2,0,1",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		scriptPath, _ := cmd.Flags().GetString("script")
		rawAnswers, _ := cmd.Flags().GetString("answers")
		verbose, _ := cmd.Flags().GetBool("verbose")

		s, err := script.LoadFileOrDefault(scriptPath)
		if err != nil {
			return errors.Wrap(err, "load script")
		}
		answers, err := ParseAnswers(rawAnswers)
		if err != nil {
			return err
		}
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
			AddSource:   false,
			Level:       level,
			ReplaceAttr: nil,
		})))
		_, err = Run(cmd.Context(), cmd.OutOrStdout(), logger, s, answers)
		return err
	},
}

// ParseAnswers parses comma separated option indexes. An empty string means no answers.
func ParseAnswers(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	answers := make([]int, len(parts))
	for i, part := range parts {
		option, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.Wrap(err, "parse answer", slog.Int("position", i), slog.String("answer", part))
		}
		answers[i] = option
	}
	return answers, nil
}

// Run plays s to the end and writes the transcript followed by the final scores to w.
func Run(
	ctx context.Context,
	w io.Writer,
	logger *slog.Logger,
	s *script.Script,
	answers []int,
) (timeline.Snapshot, error) {
	if len(answers) > s.QuestionCount() {
		return timeline.Snapshot{}, errors.Wrap(ErrTooManyAnswers, "replay",
			slog.Int("answers", len(answers)), slog.Int("questions", s.QuestionCount()))
	}
	clock := timeline.NewVirtualClock()
	engine, err := timeline.NewEngine(s, clock, logger)
	if err != nil {
		return timeline.Snapshot{}, errors.Wrap(err, "new engine")
	}

	fmt.Fprintln(w, termview.Header.Render(s.Task))
	engine.Start(ctx)

	seen := 0
	flush := func() timeline.Snapshot {
		snap := engine.Snapshot()
		for _, entry := range snap.NewEntries(seen) {
			fmt.Fprintln(w, termview.Entry(clock.Now(), entry))
		}
		seen = snap.TranscriptAppended
		return snap
	}

	next := 0
	snap := flush()
	for snap.Phase != timeline.PhaseFinished {
		switch {
		case len(clock.Pending()) > 0:
			clock.Advance(ctx, engine, step)
		case snap.CanAnswer():
			option := 0
			if next < len(answers) {
				option = answers[next]
			}
			if !engine.Answer(ctx, option) {
				return snap, errors.Wrap(ErrAnswerRejected, "replay",
					slog.Int("question", next), slog.Int("option", option),
					slog.Int("options", len(snap.Question.Options)))
			}
			next++
		default:
			return snap, errors.Wrap(ErrStalled, "replay", slog.String("phase", snap.Phase.String()))
		}
		snap = flush()
	}

	fmt.Fprintln(w)
	fmt.Fprint(w, termview.Scores(snap.Scores, nil))
	fmt.Fprintf(w, "%s %d\n", termview.Header.Render("Plan score"), snap.PlanScore)
	fmt.Fprintln(w, termview.Success.Render(snap.Summary))
	return snap, nil
}
