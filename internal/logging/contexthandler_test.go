package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/myrjola/mavis/internal/logging"
	"github.com/stretchr/testify/require"
)

func TestContextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(&buf, nil))).With("source", "test")

	ctx := logging.WithAttrs(context.Background(), slog.String("visitor_id", "v1"))
	runCtx := logging.WithAttrs(ctx, slog.String("run_id", "r1"))
	otherCtx := logging.WithAttrs(ctx, slog.String("run_id", "r2"))

	logger.LogAttrs(runCtx, slog.LevelInfo, "run started")
	require.Contains(t, buf.String(), "visitor_id=v1")
	require.Contains(t, buf.String(), "run_id=r1")
	require.Contains(t, buf.String(), "source=test")

	buf.Reset()
	logger.LogAttrs(otherCtx, slog.LevelInfo, "run started")
	require.Contains(t, buf.String(), "run_id=r2")
	require.NotContains(t, buf.String(), "run_id=r1")
}
