// Command migratetest synchronizes the schema of a copy of the production database and checks that the sessions
// survived.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/myrjola/mavis/internal/errors"
	"github.com/myrjola/mavis/internal/sqlite"
	"github.com/myrjola/mavis/internal/testhelpers"
)

func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	var (
		err       error
		start     = time.Now()
		ctx       context.Context
		sqliteURL string
		ok        bool
		cancel    context.CancelFunc
	)
	ctx = context.Background()
	ctx, cancel = context.WithTimeout(ctx, 5*time.Second) //nolint:mnd // 5 seconds

	if sqliteURL, ok = os.LookupEnv("MAVIS_SQLITE_URL"); !ok {
		logger.LogAttrs(ctx, slog.LevelError, "MAVIS_SQLITE_URL not set")
		cancel()
		os.Exit(1)
	}

	var db *sqlite.Database
	if db, err = sqlite.NewDatabase(ctx, sqliteURL, logger); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating database",
			slog.String("url", sqliteURL), errors.SlogError(err))
		cancel()
		os.Exit(1)
	}

	// Count the sessions as a simple smoke test that the migrated table answers queries.
	var count int
	if count, err = db.CountSessions(ctx); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error fetching session count", errors.SlogError(err))
		cancel()
		os.Exit(1)
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "session count", slog.Int("count", count))

	if err = db.Close(); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error closing database", errors.SlogError(err))
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "Migration test successful 🙌", slog.Duration("duration", time.Since(start)))
	cancel()
	os.Exit(0)
}
