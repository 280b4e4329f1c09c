package sqlite

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/myrjola/mavis/internal/errors"
	"github.com/myrjola/mavis/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

func TestDatabase_migrate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name              string
		schemaDefinitions []string
		testQueries       []string
		wantErr           bool
	}{
		{
			name:              "empty schema",
			schemaDefinitions: []string{""},
			testQueries:       []string{"SELECT * FROM sqlite_schema"},
			wantErr:           false,
		},
		{
			name:              "session schema",
			schemaDefinitions: []string{schemaDefinition, schemaDefinition},
			testQueries: []string{
				"INSERT INTO sessions (token, data, expiry) VALUES ('visitor', x'00', julianday('now'))",
				"SELECT data FROM sessions WHERE token = 'visitor' AND julianday('now') < expiry + 1",
			},
			wantErr: false,
		},
		{
			name: "drop table",
			schemaDefinitions: []string{
				"CREATE TABLE sessions (token TEXT PRIMARY KEY, data BLOB)",
				"", // drop table
			},
			testQueries: []string{"INSERT INTO sessions (token) VALUES ('visitor')"},
			wantErr:     true,
		},
		{
			name: "add column",
			schemaDefinitions: []string{
				"CREATE TABLE sessions (token TEXT PRIMARY KEY)",
				"CREATE TABLE sessions (token TEXT PRIMARY KEY, expiry REAL)",
			},
			testQueries: []string{"INSERT INTO sessions (token, expiry) VALUES ('visitor', 1.5)"},
			wantErr:     false,
		},
		{
			name: "remove column",
			schemaDefinitions: []string{
				"CREATE TABLE sessions (token TEXT PRIMARY KEY)",
				"CREATE TABLE sessions (token TEXT PRIMARY KEY, expiry REAL)",
				"CREATE TABLE sessions (token TEXT PRIMARY KEY)",
			},
			testQueries: []string{"INSERT INTO sessions (token, expiry) VALUES ('visitor', 1.5)"},
			wantErr:     true,
		},
		{
			name: "change column keeps data",
			schemaDefinitions: []string{
				"CREATE TABLE sessions (token TEXT PRIMARY KEY, data BLOB)",
				"CREATE TABLE sessions (token TEXT PRIMARY KEY, data BLOB NOT NULL DEFAULT x'', expiry REAL)",
			},
			testQueries: []string{"INSERT INTO sessions (token, expiry) VALUES ('visitor', 1.5)"},
			wantErr:     false,
		},
		{
			name: "create index",
			schemaDefinitions: []string{
				"CREATE TABLE sessions (token TEXT PRIMARY KEY, expiry REAL); CREATE INDEX by_expiry ON sessions (expiry)",
			},
			testQueries: []string{"DROP INDEX by_expiry"},
			wantErr:     false,
		},
		{
			name: "drop index",
			schemaDefinitions: []string{
				"CREATE TABLE sessions (token TEXT PRIMARY KEY, expiry REAL); CREATE INDEX by_expiry ON sessions (expiry)",
				"CREATE TABLE sessions (token TEXT PRIMARY KEY, expiry REAL)",
			},
			testQueries: []string{"DROP INDEX by_expiry"},
			wantErr:     true,
		},
		{
			name: "update index",
			schemaDefinitions: []string{
				"CREATE TABLE sessions (token TEXT PRIMARY KEY, expiry REAL); CREATE INDEX by_expiry ON sessions (expiry)",
				"CREATE TABLE sessions (token TEXT PRIMARY KEY, expiry REAL); CREATE INDEX by_expiry ON sessions (expiry, token)",
			},
			testQueries: []string{"DROP INDEX by_expiry"},
			wantErr:     false,
		},
		{
			name: "create trigger",
			schemaDefinitions: []string{
				`CREATE TABLE sessions (token TEXT PRIMARY KEY, expiry REAL);
                 CREATE TRIGGER no_expired_sessions BEFORE INSERT ON sessions WHEN NEW.expiry < 0
                 BEGIN SELECT RAISE(FAIL, 'expired'); END;`,
			},
			testQueries: []string{"INSERT INTO sessions (token, expiry) VALUES ('visitor', -1)"},
			wantErr:     true,
		},
		{
			name: "delete trigger",
			schemaDefinitions: []string{
				`CREATE TABLE sessions (token TEXT PRIMARY KEY, expiry REAL);
                 CREATE TRIGGER no_expired_sessions BEFORE INSERT ON sessions WHEN NEW.expiry < 0
                 BEGIN SELECT RAISE(FAIL, 'expired'); END;`,
				"CREATE TABLE sessions (token TEXT PRIMARY KEY, expiry REAL)",
			},
			testQueries: []string{"INSERT INTO sessions (token, expiry) VALUES ('visitor', -1)"},
			wantErr:     false,
		},
		{
			name: "update trigger",
			schemaDefinitions: []string{
				`CREATE TABLE sessions (token TEXT PRIMARY KEY, expiry REAL);
                 CREATE TRIGGER no_expired_sessions BEFORE INSERT ON sessions WHEN NEW.expiry < 0
                 BEGIN SELECT RAISE(FAIL, 'expired'); END;`,
				`CREATE TABLE sessions (token TEXT PRIMARY KEY, expiry REAL);
                 CREATE TRIGGER no_expired_sessions BEFORE INSERT ON sessions WHEN NEW.expiry < -10
                 BEGIN SELECT RAISE(FAIL, 'expired'); END;`,
			},
			testQueries: []string{"INSERT INTO sessions (token, expiry) VALUES ('visitor', -1)"},
			wantErr:     false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			logger := testhelpers.NewLogger(io.Discard)
			db, err := connect(":memory:", logger)
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })
			for _, schemaDefinition := range tt.schemaDefinitions {
				logger.LogAttrs(ctx, slog.LevelInfo, "migrating", slog.String("schema", schemaDefinition))
				err = db.migrateTo(ctx, schemaDefinition)
				require.NoError(t, err)
			}
			var queryErrs []error
			for _, query := range tt.testQueries {
				logger.LogAttrs(ctx, slog.LevelInfo, "executing", slog.String("query", query))
				_, err = db.ReadWrite.ExecContext(ctx, query)
				queryErrs = append(queryErrs, err)
			}
			if tt.wantErr {
				require.Error(t, errors.Join(queryErrs...))
				return
			}
			for _, queryErr := range queryErrs {
				require.NoError(t, queryErr)
			}
		})
	}
}
