package sqlite

import (
	"bytes"
	"context"
	"testing"

	"github.com/myrjola/mavis/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

func TestDatabase_optimize(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	db, err := connect(":memory:", testhelpers.NewLogger(&logs))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	// Without the schema there is no session table to count.
	require.Error(t, db.optimize(ctx))

	require.NoError(t, db.migrateTo(ctx, schemaDefinition))
	require.NoError(t, db.optimize(ctx))
	require.Contains(t, logs.String(), "optimized session store")
	require.Contains(t, logs.String(), "sessions=0")
}

func TestDatabase_StartDatabaseOptimizer_stopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	db, err := connect(":memory:", testhelpers.NewLogger(testhelpers.NewWriter(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.migrateTo(ctx, schemaDefinition))

	done := make(chan struct{})
	go func() {
		defer close(done)
		db.StartDatabaseOptimizer(ctx)
	}()
	cancel()
	<-done
}
