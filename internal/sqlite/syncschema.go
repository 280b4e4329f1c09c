package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/myrjola/mavis/internal/errors"
	"github.com/myrjola/mavis/internal/random"
)

// migrateTo ensures that the db schema matches the target schema.
//
// We employ a very simple declarative schema migration that:
//
//  1. Deletes deleted tables,
//  2. Creates new tables,
//  3. Migrates changed tables using 12-step schema migration https://www.sqlite.org/lang_altertable.html#otheralter,
//  4. Synchronizes indexes and triggers.
//
// Inspired by https://david.rothlis.net/declarative-schema-migration-for-sqlite/
func (db *Database) migrateTo(ctx context.Context, schemaDefinition string) (err error) {
	// The pragmas and the attached database are connection state, so everything runs on one connection.
	var conn *sqlx.Conn
	if conn, err = db.ReadWrite.Connx(ctx); err != nil {
		return errors.Wrap(err, "acquire connection")
	}
	defer func() {
		err = errors.Join(err, errors.Wrap(conn.Close(), "release connection"))
	}()

	// Create schema against a temporary database so that we know what has changed.
	var (
		randomID     string
		dbNameLength uint = 20
	)
	if randomID, err = random.Letters(dbNameLength); err != nil {
		return errors.Wrap(err, "generate random ID")
	}
	targetDSN := fmt.Sprintf("file:%s?mode=memory&cache=shared", randomID)
	var target *sqlx.DB
	if target, err = sqlx.Open("sqlite3", targetDSN); err != nil {
		return errors.Wrap(err, "open schema target database")
	}
	// The shared in-memory database lives as long as one connection to it stays open.
	target.SetMaxIdleConns(1)
	target.SetConnMaxLifetime(0)
	defer func() {
		err = errors.Join(err, errors.Wrap(target.Close(), "close schema target database"))
	}()
	if _, err = target.ExecContext(ctx, schemaDefinition); err != nil {
		return errors.Wrap(err, "migrate schema target database")
	}
	if _, err = conn.ExecContext(ctx, "ATTACH DATABASE ? AS schemaTarget", targetDSN); err != nil {
		return errors.Wrap(err, "attach schema target database")
	}
	defer func() {
		_, detachErr := conn.ExecContext(context.WithoutCancel(ctx), "DETACH DATABASE schemaTarget")
		err = errors.Join(err, errors.Wrap(detachErr, "detach schema target database"))
	}()

	// 12-step schema migration starts here. See https://www.sqlite.org/lang_altertable.html#otheralter.

	// Step 1: Disable foreign key validation temporarily.
	if _, err = conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return errors.Wrap(err, "disable foreign key validation")
	}
	// Step 12: Re-enable foreign key validation.
	defer func() {
		_, fkErr := conn.ExecContext(context.WithoutCancel(ctx), "PRAGMA foreign_keys = ON")
		err = errors.Join(err, errors.Wrap(fkErr, "re-enable foreign key validation"))
	}()

	// Step 2: Start transaction.
	var tx *sqlx.Tx
	if tx, err = conn.BeginTxx(ctx, nil); err != nil {
		return errors.Wrap(err, "start transaction")
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to rollback transaction",
				errors.SlogError(rollbackErr))
		}
	}()

	// Step 3-7 migrate tables.
	if err = db.migrateTables(ctx, tx); err != nil {
		return errors.Wrap(err, "migrate tables")
	}

	// Step 8: Recreate indexes and triggers associated with table if needed.
	for _, objectType := range []string{"index", "trigger"} {
		if err = db.syncObjects(ctx, tx, objectType); err != nil {
			return errors.Wrap(err, "synchronize schema objects", slog.String("type", objectType))
		}
	}

	// Step 9: Recreate views associated with table. We don't use views.
	// Step 10: Check foreign key constraints.
	var violations []foreignKeyViolation
	if err = tx.SelectContext(ctx, &violations, "PRAGMA foreign_key_check"); err != nil {
		return errors.Wrap(err, "foreign key check")
	}
	if len(violations) > 0 {
		return errors.New("foreign key violations after migration",
			slog.String("table", violations[0].Table), slog.Int("count", len(violations)))
	}

	// Step 11: Commit transaction from step 2.
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}

	return nil
}

type foreignKeyViolation struct {
	Table  string         `db:"table"`
	RowID  sql.NullInt64  `db:"rowid"`
	Parent string         `db:"parent"`
	FKID   sql.NullString `db:"fkid"`
}

// migrateTables ensures table schema is synchronized between databases.
func (db *Database) migrateTables(ctx context.Context, tx *sqlx.Tx) error {
	var err error

	// Drop deleted tables.
	var deletedTables []string
	if err = tx.SelectContext(ctx, &deletedTables, `SELECT current.name AS deleted_table
FROM sqlite_schema AS current
LEFT JOIN schemaTarget.sqlite_schema AS target ON current.name=target.name AND current.type=target.type
WHERE current.type = 'table' AND target.type IS NULL AND current.name NOT LIKE 'sqlite_%';`); err != nil {
		return errors.Wrap(err, "query deleted tables")
	}
	for _, table := range deletedTables {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "dropping table", slog.String("table", table))
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %q;", table)); err != nil {
			return errors.Wrap(err, "drop table", slog.String("table", table))
		}
	}

	// Create new tables.
	var newTableSQLs []string
	if err = tx.SelectContext(ctx, &newTableSQLs, `SELECT target.sql AS sql
FROM schemaTarget.sqlite_schema AS target
LEFT JOIN sqlite_schema AS current ON current.name=target.name AND current.type=target.type
WHERE target.type = 'table' AND current.type IS NULL AND target.name NOT LIKE 'sqlite_%';`); err != nil {
		return errors.Wrap(err, "query new table SQLs")
	}
	for _, newTableSQL := range newTableSQLs {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "creating table", slog.String("query", newTableSQL))
		if _, err = tx.ExecContext(ctx, newTableSQL); err != nil {
			return errors.Wrap(err, "create table")
		}
	}

	// Identify tables with changed schema and continue the 12-step schema migration with them.
	var changedTables []changedObject
	if err = tx.SelectContext(ctx, &changedTables, `SELECT
    current.name AS name,
    current.sql AS current_sql,
    target.sql AS new_sql
FROM sqlite_schema AS current
         JOIN schemaTarget.sqlite_schema AS target ON current.name=target.name AND current.type=target.type
WHERE current.type = 'table' AND current.name NOT LIKE 'sqlite_%' AND current.sql <> target.sql;`); err != nil {
		return errors.Wrap(err, "query changed tables")
	}

	for _, table := range changedTables {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "migrating table",
			slog.String("table", table.Name),
			slog.String("current_sql", table.CurrentSQL),
			slog.String("new_sql", table.NewSQL))

		// Step 4: Create tables according to new schema on temporary names.
		tempName := table.Name + "_migration_temp"
		tempNameSQL := strings.Replace(table.NewSQL, table.Name, tempName, 1)
		if _, err = tx.ExecContext(ctx, tempNameSQL); err != nil {
			return errors.Wrap(err, "create new table to temporary name", slog.String("query", tempNameSQL))
		}

		// Step 5: Copy common columns between tables.
		// We wrap the column names in with double quotes to handle column names that are SQLite keywords.
		var commonColumns []string
		if err = tx.SelectContext(ctx, &commonColumns, `SELECT '"' || target.name || '"'
FROM PRAGMA_TABLE_INFO(:table_name) AS current
JOIN PRAGMA_TABLE_INFO(:table_name, 'schemaTarget') AS target ON target.name = current.name;`,
			sql.Named("table_name", table.Name)); err != nil {
			return errors.Wrap(err, "query common columns")
		}
		if len(commonColumns) > 0 {
			common := strings.Join(commonColumns, ", ")
			copySQL := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s;", //nolint: gosec // we trust the query.
				tempName, common, common, table.Name)
			db.logger.LogAttrs(ctx, slog.LevelInfo, "copying data", slog.String("query", copySQL))
			if _, err = tx.ExecContext(ctx, copySQL); err != nil {
				return errors.Wrap(err, "copy data")
			}
		}

		// Step 6: Drop the old table.
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %q;", table.Name)); err != nil {
			return errors.Wrap(err, "drop old table")
		}

		// Step 7: Rename new table to old table's name.
		if _, err = tx.ExecContext(ctx,
			fmt.Sprintf("ALTER TABLE %q RENAME TO %q;", tempName, table.Name)); err != nil {
			return errors.Wrap(err, "rename new table")
		}
	}
	return nil
}

// syncObjects drops the indexes or triggers missing from the target schema and (re)creates the ones that are
// new or changed. Dropping a migrated table drops its indexes and triggers too, so this runs after migrateTables.
func (db *Database) syncObjects(ctx context.Context, tx *sqlx.Tx, objectType string) error {
	var (
		deleted []string
		err     error
	)
	if err = tx.SelectContext(ctx, &deleted, `SELECT current.name
FROM sqlite_schema AS current
LEFT JOIN schemaTarget.sqlite_schema AS target ON current.name=target.name AND current.type=target.type
WHERE current.type = :type AND current.sql IS NOT NULL AND target.type IS NULL;`,
		sql.Named("type", objectType)); err != nil {
		return errors.Wrap(err, "query deleted objects")
	}
	for _, name := range deleted {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "dropping "+objectType, slog.String("name", name))
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP %s IF EXISTS %q;", objectType, name)); err != nil {
			return errors.Wrap(err, "drop object", slog.String("name", name))
		}
	}

	var wanted []changedObject
	if err = tx.SelectContext(ctx, &wanted, `SELECT
    target.name AS name,
    coalesce(current.sql, '') AS current_sql,
    target.sql AS new_sql
FROM schemaTarget.sqlite_schema AS target
LEFT JOIN sqlite_schema AS current ON current.name=target.name AND current.type=target.type
WHERE target.type = :type AND target.sql IS NOT NULL AND (current.sql IS NULL OR current.sql <> target.sql);`,
		sql.Named("type", objectType)); err != nil {
		return errors.Wrap(err, "query new objects")
	}
	for _, object := range wanted {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "creating "+objectType,
			slog.String("name", object.Name),
			slog.String("current_sql", object.CurrentSQL),
			slog.String("new_sql", object.NewSQL))
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP %s IF EXISTS %q;", objectType, object.Name)); err != nil {
			return errors.Wrap(err, "drop outdated object", slog.String("name", object.Name))
		}
		if _, err = tx.ExecContext(ctx, object.NewSQL); err != nil {
			return errors.Wrap(err, "create object", slog.String("name", object.Name))
		}
	}
	return nil
}

type changedObject struct {
	Name       string `db:"name"`
	CurrentSQL string `db:"current_sql"`
	NewSQL     string `db:"new_sql"`
}
