package sqlite

import (
	"context"
	"log/slog"
	"time"

	"github.com/myrjola/mavis/internal/errors"
)

// optimizeInterval is how often the session store is analysed.
const optimizeInterval = time.Hour

// StartDatabaseOptimizer keeps the query planner statistics of the session store fresh until ctx is cancelled. Each
// pass also logs the number of stored sessions. See https://www.sqlite.org/pragma.html#pragma_optimize.
func (db *Database) StartDatabaseOptimizer(ctx context.Context) {
	ticker := time.NewTicker(optimizeInterval)
	defer ticker.Stop()
	for {
		if err := db.optimize(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to optimize session store", errors.SlogError(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (db *Database) optimize(ctx context.Context) error {
	start := time.Now()
	if _, err := db.ReadWrite.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
		return errors.Wrap(err, "optimize")
	}
	sessions, err := db.CountSessions(ctx)
	if err != nil {
		return err
	}
	db.logger.LogAttrs(ctx, slog.LevelDebug, "optimized session store",
		slog.Duration("duration", time.Since(start)), slog.Int("sessions", sessions))
	return nil
}
