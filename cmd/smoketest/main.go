package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/myrjola/mavis/internal/e2etest"
	"github.com/myrjola/mavis/internal/errors"
	"github.com/myrjola/mavis/internal/logging"
	"github.com/myrjola/mavis/internal/timeline"
)

// TestPlanningSession plays one full run, always picking the last option, and checks that it finishes.
func TestPlanningSession(ctx context.Context, client *e2etest.Client) (timeline.Snapshot, error) {
	// The script plays in real time on a deployed server.
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute) //nolint:mnd // 2 minutes
	defer cancel()

	snap, err := client.PlayThrough(ctx, func(q timeline.QuestionView) int {
		return len(q.Options) - 1
	})
	if err != nil {
		return snap, errors.Wrap(err, "play through")
	}
	if snap.Phase != timeline.PhaseFinished {
		return snap, errors.New("run did not finish", slog.String("phase", snap.Phase.String()))
	}
	if err = client.Restart(ctx); err != nil {
		return snap, errors.Wrap(err, "restart")
	}
	return snap, nil
}

func main() {
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)
	ctx := context.Background()

	if len(os.Args) != 2 { //nolint:mnd // we expect only the base URL to be passed as argument.
		logger.LogAttrs(ctx, slog.LevelError, "usage: smoketest <base-url>")
		os.Exit(1)
	}

	var (
		url    = strings.TrimSuffix(os.Args[1], "/")
		client *e2etest.Client
		err    error
	)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}
	ctx = logging.WithAttrs(ctx, slog.String("url", url))

	if client, err = e2etest.NewClient(url); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating client", errors.SlogError(err))
		os.Exit(1)
	}
	if err = client.WaitForReady(ctx, "/api/healthy"); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "server not ready", errors.SlogError(err))
		os.Exit(1)
	}
	var snap timeline.Snapshot
	if snap, err = TestPlanningSession(ctx, client); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error testing planning session", errors.SlogError(err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test successful 🙌", slog.Int("plan_score", snap.PlanScore))
	os.Exit(0)
}
