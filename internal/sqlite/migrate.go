package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"
)

// migrateTo reconciles the live database with the schema in schema.sql.
//
// The migration is declarative: the wanted schema is built into an attached
// in-memory database and the live schema is diffed against it. Dropped tables
// are deleted, new tables created, and changed tables rebuilt with the
// 12-step procedure from https://www.sqlite.org/lang_altertable.html#otheralter.
// Triggers and indexes are synchronised last.
//
// Inspired by https://david.rothlis.net/declarative-schema-migration-for-sqlite/
func (db *Database) migrateTo(ctx context.Context, schemaDefinition string) error {
	var err error
	start := time.Now()

	detach, err := db.attachWantedSchema(ctx, schemaDefinition)
	if err != nil {
		return fmt.Errorf("attach wanted schema: %w", err)
	}
	defer detach()

	// Step 1: disable foreign key validation for the duration of the rebuild.
	if _, err = db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("disable foreign key validation: %w", err)
	}
	// Step 12: re-enable it. Failing to do so risks corrupting references, so
	// the process goes down instead of serving traffic without validation.
	defer func() {
		if _, err = db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			err = fmt.Errorf("re-enable foreign key validation: %w", err)
			db.logger.LogAttrs(ctx, slog.LevelError, "exit to avoid data corruption", slog.Any("error", err))
			if err = syscall.Kill(syscall.Getpid(), syscall.SIGINT); err != nil {
				os.Exit(1)
			}
		}
	}()

	// Step 2: everything below happens in one transaction.
	var tx *sql.Tx
	if tx, err = db.ReadWrite.BeginTx(ctx, nil); err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	defer db.rollback(ctx, tx)()

	// Steps 3-7.
	if err = db.reconcileTables(ctx, tx); err != nil {
		return fmt.Errorf("reconcile tables: %w", err)
	}

	// Step 8: recreate triggers and indexes.
	if err = db.reconcileSchemaObjects(ctx, tx, objectTypeTrigger); err != nil {
		return fmt.Errorf("reconcile triggers: %w", err)
	}
	if err = db.reconcileSchemaObjects(ctx, tx, objectTypeIndex); err != nil {
		return fmt.Errorf("reconcile indexes: %w", err)
	}

	// Step 9 would recreate views, but the schema has none.
	// Step 10: check foreign key constraints.
	if _, err = tx.ExecContext(ctx, "PRAGMA foreign_key_check"); err != nil {
		return fmt.Errorf("foreign key check: %w", err)
	}

	// Step 11: commit.
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	db.logger.LogAttrs(ctx, slog.LevelInfo, "migrated database", slog.Duration("duration", time.Since(start)))

	return nil
}

// attachWantedSchema builds the wanted schema into a shared in-memory database
// and attaches it as "wanted". The returned function detaches it and must be
// called once the migration finishes.
func (db *Database) attachWantedSchema(ctx context.Context, schemaDefinition string) (func(), error) {
	var err error
	wantedDataSourceName := fmt.Sprintf("file:%s?mode=memory&cache=shared", rand.Text())
	wantedDatabase, err := sql.Open("sqlite3", wantedDataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open wanted schema database: %w", err)
	}
	defer func() {
		if err = wantedDatabase.Close(); err != nil {
			err = fmt.Errorf("close wanted schema database: %w", err)
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to close wanted schema database",
				slog.Any("error", err))
		}
	}()
	if _, err = wantedDatabase.ExecContext(ctx, schemaDefinition); err != nil {
		return nil, fmt.Errorf("execute wanted schema: %w", err)
	}
	if _, err = db.ReadWrite.ExecContext(ctx, "ATTACH DATABASE ? AS wanted",
		wantedDataSourceName); err != nil {
		return nil, fmt.Errorf("attach wanted schema database: %w", err)
	}
	return func() {
		if _, err = db.ReadWrite.ExecContext(ctx, "DETACH DATABASE wanted"); err != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to detach wanted schema database", slog.Any("error", err))
		}
	}, nil
}

func (db *Database) rollback(ctx context.Context, tx *sql.Tx) func() {
	return func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			err = fmt.Errorf("rollback transaction: %w", err)
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to rollback transaction", slog.Any("error", err))
		}
	}
}

// reconcileTables brings the live tables in line with the wanted schema.
func (db *Database) reconcileTables(ctx context.Context, tx *sql.Tx) error {
	var err error

	// Drop tables that the wanted schema no longer has.
	var droppedTables []string
	if droppedTables, err = db.queryDroppedTables(ctx, tx); err != nil {
		return fmt.Errorf("query dropped tables: %w", err)
	}
	for _, table := range droppedTables {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "dropping table", slog.String("table", table))
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", table)); err != nil {
			return fmt.Errorf("DROP TABLE %s: %w", table, err)
		}
	}

	// Create tables the live schema lacks.
	var createTableSQLs []string
	if createTableSQLs, err = db.queryCreateTableSQLs(ctx, tx); err != nil {
		return fmt.Errorf("query create table SQLs: %w", err)
	}
	for _, createSQL := range createTableSQLs {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "creating table", slog.String("query", createSQL))
		if _, err = tx.ExecContext(ctx, createSQL); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	// Rebuild tables whose definitions differ.
	var diffs []schemaDiff
	if diffs, err = db.querySchemaDiffs(ctx, tx, `SELECT live.name AS changed_table,
       live.sql   AS live_sql,
       wanted.sql AS wanted_sql
FROM sqlite_schema AS live
         JOIN wanted.sqlite_schema AS wanted ON live.name = wanted.name AND live.type = wanted.type
WHERE live.type = 'table'
  AND live.name NOT LIKE 'sqlite_%'
  AND live.name NOT LIKE '_litestream_%'
  -- ALTER TABLE ... RENAME quotes the table name, strip quotes before diffing.
  AND REPLACE(live.sql, '"', '') <> REPLACE(wanted.sql, '"', '')
`); err != nil {
		return fmt.Errorf("query changed tables: %w", err)
	}

	for _, diff := range diffs {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "rebuilding table",
			slog.String("table", diff.name),
			slog.String("live_sql", diff.liveSQL),
			slog.String("wanted_sql", diff.wantedSQL))

		// Step 4: create the wanted table under a temporary name.
		tempName := diff.name + "_migration_temp"
		tempNameSQL := strings.Replace(diff.wantedSQL, diff.name, tempName, 1)
		db.logger.LogAttrs(ctx, slog.LevelInfo, "creating replacement table",
			slog.String("query", tempNameSQL))
		if _, err = tx.ExecContext(ctx, tempNameSQL); err != nil {
			return fmt.Errorf("create replacement table %s: %w", tempNameSQL, err)
		}

		// Step 5: copy the columns both versions share.
		var sharedColumns []string
		if sharedColumns, err = db.querySharedColumns(ctx, tx, diff.name); err != nil {
			return fmt.Errorf("query shared columns: %w", err)
		}
		columns := strings.Join(sharedColumns, ", ")
		copySQL := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s;", //nolint: gosec // we trust the query.
			tempName, columns, columns, diff.name)
		db.logger.LogAttrs(ctx, slog.LevelInfo, "copying data", slog.String("query", copySQL))
		if _, err = tx.ExecContext(ctx, copySQL); err != nil {
			return fmt.Errorf("copy data: %w", err)
		}

		// Step 6: drop the old table.
		dropSQL := fmt.Sprintf("DROP TABLE %s;", diff.name)
		db.logger.LogAttrs(ctx, slog.LevelInfo, "dropping old table", slog.String("query", dropSQL))
		if _, err = tx.ExecContext(ctx, dropSQL); err != nil {
			return fmt.Errorf("drop old table: %w", err)
		}

		// Step 7: move the replacement into place.
		renameSQL := fmt.Sprintf("ALTER TABLE %s RENAME TO %s;", tempName, diff.name)
		db.logger.LogAttrs(ctx, slog.LevelInfo, "renaming replacement table", slog.String("query", renameSQL))
		if _, err = tx.ExecContext(ctx, renameSQL); err != nil {
			return fmt.Errorf("rename replacement table: %w", err)
		}
	}
	return nil
}

// queryDroppedTables lists tables present in the live schema but absent from
// the wanted one.
func (db *Database) queryDroppedTables(ctx context.Context, tx *sql.Tx) ([]string, error) {
	droppedTables, err := db.queryStrings(ctx, tx, `SELECT live.name AS dropped_table
FROM sqlite_schema AS live
         LEFT JOIN wanted.sqlite_schema AS wanted ON live.name = wanted.name AND live.type = wanted.type
WHERE live.type = 'table'
  AND wanted.type IS NULL
  AND live.name NOT LIKE 'sqlite_%'
  AND live.name NOT LIKE '_litestream_%'`)
	if err != nil {
		return nil, fmt.Errorf("query strings: %w", err)
	}
	return droppedTables, nil
}

// queryCreateTableSQLs lists CREATE TABLE statements for tables present in the
// wanted schema but absent from the live one.
func (db *Database) queryCreateTableSQLs(ctx context.Context, tx *sql.Tx) ([]string, error) {
	createTableSQLs, err := db.queryStrings(ctx, tx, `SELECT wanted.sql AS sql
FROM sqlite_schema AS live RIGHT JOIN wanted.sqlite_schema AS wanted
ON live.name=wanted.name AND live.type=wanted.type
WHERE wanted.type = 'table'
  AND live.type IS NULL
  AND wanted.name NOT LIKE 'sqlite_%'
  AND wanted.name NOT LIKE '_litestream_%'`)
	if err != nil {
		return nil, fmt.Errorf("query strings: %w", err)
	}
	return createTableSQLs, nil
}

func (db *Database) querySharedColumns(ctx context.Context, tx *sql.Tx, table string) ([]string, error) {
	// Column names are double quoted in case they collide with SQLite keywords.
	sharedColumns, err := db.queryStrings(ctx, tx, `SELECT '"' || wanted.name || '"'
FROM PRAGMA_TABLE_INFO(:table_name) AS live
JOIN PRAGMA_TABLE_INFO(:table_name, 'wanted') AS wanted ON wanted.name = live.name`,
		sql.Named("table_name", table))
	if err != nil {
		return nil, fmt.Errorf("query strings: %w", err)
	}
	return sharedColumns, nil
}

// queryStrings runs a single-column query and collects the values.
func (db *Database) queryStrings(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	var (
		results []string
		rows    *sql.Rows
		err     error
	)
	if rows, err = tx.QueryContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			err = fmt.Errorf("close rows: %w", err)
			db.logger.Error("could not close rows", slog.Any("error", err))
		}
	}()
	for rows.Next() {
		var result string
		if err = rows.Scan(&result); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		results = append(results, result)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return results, nil
}

// schemaDiff is a schema object whose live and wanted definitions differ.
type schemaDiff struct {
	name      string
	liveSQL   string
	wantedSQL string
}

func (db *Database) querySchemaDiffs(
	ctx context.Context,
	tx *sql.Tx,
	query string,
	args ...any,
) ([]schemaDiff, error) {
	var (
		diffs []schemaDiff
		rows  *sql.Rows
		err   error
	)
	if rows, err = tx.QueryContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			err = fmt.Errorf("close rows: %w", err)
			db.logger.Error("could not close rows", slog.Any("error", err))
		}
	}()
	for rows.Next() {
		var diff schemaDiff
		if err = rows.Scan(&diff.name, &diff.liveSQL, &diff.wantedSQL); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		diffs = append(diffs, diff)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return diffs, nil
}

type objectType string

const (
	objectTypeTrigger objectType = "trigger"
	objectTypeIndex   objectType = "index"
)

// reconcileSchemaObjects synchronises all triggers or indexes with the wanted
// schema. Unlike tables they carry no data, so changed ones are dropped and
// recreated.
func (db *Database) reconcileSchemaObjects(ctx context.Context, tx *sql.Tx, typ objectType) error {
	var (
		err     error
		dropped []string
		logger  = db.logger.With(slog.String("objectType", string(typ)))
	)

	if dropped, err = db.queryStrings(ctx, tx, `SELECT live.name AS dropped
FROM sqlite_schema AS live
         LEFT JOIN wanted.sqlite_schema AS wanted ON live.name = wanted.name AND live.type = wanted.type
WHERE live.type = ?
  AND wanted.type IS NULL
  AND live.name NOT LIKE 'sqlite_%'`, typ); err != nil {
		return fmt.Errorf("query dropped %s: %w", string(typ), err)
	}
	for _, name := range dropped {
		dropQuery := fmt.Sprintf("DROP %s %s;", strings.ToUpper(string(typ)), name)
		logger.LogAttrs(ctx, slog.LevelInfo, "dropping", slog.String("name", name), slog.String("query", dropQuery))
		if _, err = tx.ExecContext(ctx, dropQuery, name); err != nil {
			return fmt.Errorf("drop %s %s: %w", string(typ), name, err)
		}
	}

	var created []string
	if created, err = db.queryStrings(ctx, tx, `SELECT wanted.sql AS created_sql
FROM sqlite_schema AS live
         RIGHT JOIN wanted.sqlite_schema AS wanted ON live.name = wanted.name AND live.type = wanted.type
WHERE wanted.type = ?
  AND live.type IS NULL
  AND wanted.name NOT LIKE 'sqlite_%'`, typ); err != nil {
		return fmt.Errorf("query created %s: %w", string(typ), err)
	}
	for _, createSQL := range created {
		logger.LogAttrs(ctx, slog.LevelInfo, "creating", slog.String("query", createSQL))
		if _, err = tx.ExecContext(ctx, createSQL); err != nil {
			return fmt.Errorf("create %s: %w", string(typ), err)
		}
	}

	var diffs []schemaDiff
	if diffs, err = db.querySchemaDiffs(ctx, tx, `SELECT live.name  AS changed,
       live.sql   AS live_sql,
       wanted.sql AS wanted_sql
FROM sqlite_schema AS live
         JOIN wanted.sqlite_schema AS wanted ON live.name = wanted.name AND live.type = wanted.type
WHERE live.type = ?
  AND live.name NOT LIKE 'sqlite_%'
  AND live.sql <> wanted.sql`, typ); err != nil {
		return fmt.Errorf("query changed %s: %w", string(typ), err)
	}

	for _, diff := range diffs {
		logger.LogAttrs(ctx, slog.LevelInfo, "rebuilding",
			slog.String("changed", diff.name),
			slog.String("live_sql", diff.liveSQL),
			slog.String("wanted_sql", diff.wantedSQL))

		dropSQL := fmt.Sprintf("DROP %s %s;", strings.ToUpper(string(typ)), diff.name)
		logger.LogAttrs(ctx, slog.LevelInfo, "dropping changed",
			slog.String("name", diff.name), slog.String("query", dropSQL))
		if _, err = tx.ExecContext(ctx, dropSQL); err != nil {
			return fmt.Errorf("drop changed %s %s: %w", string(typ), diff.name, err)
		}
		logger.LogAttrs(ctx, slog.LevelInfo, "creating changed", slog.String("query", diff.wantedSQL))
		if _, err = tx.ExecContext(ctx, diff.wantedSQL); err != nil {
			return fmt.Errorf("create changed %s %s: %w", string(typ), diff.name, err)
		}
	}
	return nil
}
