package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
)

const usersTableName = "users"

// ExportUserDB writes everything the database holds about one user into a
// standalone SQLite file under basePath and returns the file path. This backs
// the GDPR data export on the preferences page.
func (db *Database) ExportUserDB(ctx context.Context, userID int, basePath string) (string, error) {
	return db.createUserDB(ctx, userID, basePath)
}

// createUserDB builds the per-user export database. Tables are discovered by
// walking foreign keys from the users table, so new tables join the export
// without code changes.
func (db *Database) createUserDB(ctx context.Context, userID int, basePath string) (_ string, err error) {
	exportPath := filepath.Join(basePath, fmt.Sprintf("user-db-%d.sqlite3", userID))
	exportDsn := fmt.Sprintf("file:%s?mode=rwc", exportPath)

	conn, err := db.setupExportConnection(ctx)
	if err != nil {
		return "", fmt.Errorf("setup export connection: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close db connection: %w", closeErr)
		}
	}()

	return db.runExport(ctx, conn, exportDsn, userID, exportPath)
}

// setupExportConnection checks out a read connection and relaxes its pragmas
// so the export database can be attached and written.
func (db *Database) setupExportConnection(ctx context.Context) (*sql.Conn, error) {
	conn, err := db.ReadOnly.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db connection: %w", err)
	}

	if pragmaErr := db.configurePragmas(ctx, conn, false); pragmaErr != nil {
		if closeErr := conn.Close(); closeErr != nil {
			return nil, fmt.Errorf("configure pragmas: %w (close error: %w)", pragmaErr, closeErr)
		}
		return nil, fmt.Errorf("configure pragmas: %w", pragmaErr)
	}

	return conn, nil
}

// configurePragmas toggles the connection between normal read-only operation
// and the writable mode the export needs.
func (db *Database) configurePragmas(ctx context.Context, conn *sql.Conn, readOnly bool) error {
	var queryOnlyMode, foreignKeysMode string
	var modeErr, fkErr string

	if readOnly {
		queryOnlyMode = "TRUE"
		foreignKeysMode = "ON"
		modeErr = "enable read only mode"
		fkErr = "enable foreign keys"
	} else {
		queryOnlyMode = "FALSE"
		foreignKeysMode = "OFF"
		modeErr = "disable read only mode"
		fkErr = "disable foreign keys"
	}

	if _, err := conn.ExecContext(ctx, `PRAGMA QUERY_ONLY = `+queryOnlyMode); err != nil {
		return fmt.Errorf("%s: %w", modeErr, err)
	}
	if _, err := conn.ExecContext(ctx, `PRAGMA FOREIGN_KEYS = `+foreignKeysMode); err != nil {
		return fmt.Errorf("%s: %w", fkErr, err)
	}
	return nil
}

// runExport copies schemas and rows into the attached export database inside
// one transaction.
func (db *Database) runExport(
	ctx context.Context, conn *sql.Conn, exportDsn string, userID int, exportPath string,
) (string, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback() // keep the original error
		}
		_ = db.configurePragmas(ctx, conn, true) // restore read-only mode
	}()

	_, err = tx.ExecContext(ctx, `ATTACH DATABASE ? AS export`, exportDsn)
	if err != nil {
		return "", fmt.Errorf("create export database: %w", err)
	}

	err = db.validateUsersTable(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("validate users table: %w", err)
	}

	userRelatedTables, err := db.collectUserTables(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("find user related tables: %w", err)
	}

	err = db.copyTableSchemas(ctx, tx, userRelatedTables)
	if err != nil {
		return "", fmt.Errorf("copy table schemas: %w", err)
	}

	err = db.copyTableData(ctx, tx, userRelatedTables, userID)
	if err != nil {
		return "", fmt.Errorf("copy table data: %w", err)
	}

	_, err = tx.ExecContext(ctx, `PRAGMA export.foreign_keys = ON`)
	if err != nil {
		return "", fmt.Errorf("re-enable foreign keys in export database: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return "", fmt.Errorf("commit export database: %w", err)
	}
	committed = true

	return exportPath, nil
}

// validateUsersTable ensures the schema has a users table to walk from.
func (db *Database) validateUsersTable(ctx context.Context, tx *sql.Tx) error {
	var count int
	query := `SELECT COUNT(*) FROM sqlite_schema WHERE type = 'table' AND name = ?`
	if err := tx.QueryRowContext(ctx, query, usersTableName).Scan(&count); err != nil {
		return fmt.Errorf("check users table existence: %w", err)
	}
	if count == 0 {
		return errors.New("users table does not exist")
	}
	return nil
}

// copyTableSchemas recreates each discovered table in the export database.
func (db *Database) copyTableSchemas(ctx context.Context, tx *sql.Tx, tables []userTable) error {
	for _, table := range tables {
		if err := db.copyTableSchema(ctx, tx, table.name); err != nil {
			return fmt.Errorf("copy schema for table %s: %w", table.name, err)
		}
	}
	return nil
}

// copyTableData copies rows in dependency order so that foreign keys in the
// export database resolve.
func (db *Database) copyTableData(ctx context.Context, tx *sql.Tx, tables []userTable, userID int) error {
	// Lookup tables without a user column path go first.
	for _, table := range tables {
		if table.userColumnPath == nil {
			if err := db.copyUserTableData(ctx, tx, table, userID); err != nil {
				return fmt.Errorf("copy data for table %s: %w", table.name, err)
			}
		}
	}

	// Then the tables filtered down to the user.
	for _, table := range tables {
		if table.userColumnPath != nil {
			if err := db.copyUserTableData(ctx, tx, table, userID); err != nil {
				return fmt.Errorf("copy data for table %s: %w", table.name, err)
			}
		}
	}

	return nil
}

// userTable is a table together with how it relates to the users table.
type userTable struct {
	name string
	// userColumnPath is the column chain leading to users.id, e.g.
	// ["user_id"] or ["run_user_id", "user_id"]. Nil for lookup tables that
	// hold no per-user rows.
	userColumnPath []string
}

// collectUserTables lists every table that must appear in the export: the
// users table, tables reachable from it through foreign keys, and the lookup
// tables those reference.
func (db *Database) collectUserTables(ctx context.Context, tx *sql.Tx) ([]userTable, error) {
	const initialCapacity = 16
	result := make([]userTable, 0, initialCapacity)

	result = append(result, userTable{name: usersTableName, userColumnPath: []string{"id"}})

	tables, err := db.listTableNames(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("get all table names: %w", err)
	}

	discovered, err := db.walkForeignKeysToUsers(ctx, tx, tables)
	if err != nil {
		return nil, fmt.Errorf("discover user related tables: %w", err)
	}

	for tableName, path := range discovered {
		if tableName != usersTableName {
			result = append(result, userTable{name: tableName, userColumnPath: path})
		}
	}

	lookupTables, err := db.collectLookupTables(ctx, tx, result, discovered)
	if err != nil {
		return nil, fmt.Errorf("find referenced tables: %w", err)
	}

	for tableName := range lookupTables {
		result = append(result, userTable{name: tableName, userColumnPath: nil})
	}

	return result, nil
}

// listTableNames retrieves every table name apart from users.
func (db *Database) listTableNames(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT name FROM sqlite_schema WHERE type = 'table' AND name != ?`, usersTableName)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			if err == nil {
				err = fmt.Errorf("close rows: %w", closeErr)
			}
		}
	}()

	var tables []string
	for rows.Next() {
		var tableName string
		err = rows.Scan(&tableName)
		if err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, tableName)
	}
	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate over tables: %w", err)
	}

	return tables, nil
}

// walkForeignKeysToUsers repeatedly scans the undiscovered tables until no
// new table can be connected to users through a foreign key.
func (db *Database) walkForeignKeysToUsers(
	ctx context.Context, tx *sql.Tx, tables []string,
) (map[string][]string, error) {
	discovered := map[string][]string{usersTableName: {"id"}}

	changed := true
	for changed {
		changed = false

		for _, tableName := range tables {
			if _, alreadyDiscovered := discovered[tableName]; alreadyDiscovered {
				continue
			}

			found, path, err := db.foreignKeyPathToUsers(ctx, tx, tableName, discovered)
			if err != nil {
				return nil, fmt.Errorf("check foreign keys for table %s: %w", tableName, err)
			}

			if found {
				discovered[tableName] = path
				changed = true
			}
		}
	}

	return discovered, nil
}

// foreignKeyPathToUsers reports whether tableName references an already
// discovered table and, if so, the column path to users.id.
func (db *Database) foreignKeyPathToUsers(
	ctx context.Context, tx *sql.Tx, tableName string, discovered map[string][]string,
) (bool, []string, error) {
	fkRows, err := tx.QueryContext(ctx, `SELECT "table", "from", "to" FROM pragma_foreign_key_list(?)`, tableName)
	if err != nil {
		return false, nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer func() {
		if closeErr := fkRows.Close(); closeErr != nil {
			if err == nil {
				err = fmt.Errorf("close foreign key rows: %w", closeErr)
			}
		}
	}()

	for fkRows.Next() {
		var referencedTable, fromColumn, toColumn string
		err = fkRows.Scan(&referencedTable, &fromColumn, &toColumn)
		if err != nil {
			return false, nil, fmt.Errorf("scan foreign key: %w", err)
		}

		if userPath, exists := discovered[referencedTable]; exists {
			if referencedTable == usersTableName && toColumn == "id" {
				return true, []string{fromColumn}, nil
			}
			if len(userPath) > 0 && userPath[len(userPath)-1] == toColumn {
				var newPath []string
				newPath = append(newPath, fromColumn)
				newPath = append(newPath, userPath[:len(userPath)-1]...)
				return true, newPath, nil
			}
		}
	}

	err = fkRows.Err()
	if err != nil {
		return false, nil, fmt.Errorf("iterate foreign key rows: %w", err)
	}

	return false, nil, nil
}

// collectLookupTables finds the tables referenced by the user tables that are
// not themselves user related, such as shared lookup data.
func (db *Database) collectLookupTables(
	ctx context.Context, tx *sql.Tx, userTables []userTable, discovered map[string][]string,
) (map[string]bool, error) {
	lookupTables := make(map[string]bool)

	for _, table := range userTables {
		refs, err := db.referencedTables(ctx, tx, table.name)
		if err != nil {
			return nil, fmt.Errorf("get references for table %s: %w", table.name, err)
		}

		for _, ref := range refs {
			if _, alreadyDiscovered := discovered[ref]; !alreadyDiscovered {
				lookupTables[ref] = true
			}
		}
	}

	return lookupTables, nil
}

// referencedTables lists the tables the given table has foreign keys into.
func (db *Database) referencedTables(ctx context.Context, tx *sql.Tx, tableName string) ([]string, error) {
	fkRows, err := tx.QueryContext(ctx, `SELECT "table", "from", "to" FROM pragma_foreign_key_list(?)`, tableName)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer func() {
		if closeErr := fkRows.Close(); closeErr != nil {
			if err == nil {
				err = fmt.Errorf("close foreign key rows: %w", closeErr)
			}
		}
	}()

	var references []string
	for fkRows.Next() {
		var referencedTable, fromColumn, toColumn string
		err = fkRows.Scan(&referencedTable, &fromColumn, &toColumn)
		if err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		references = append(references, referencedTable)
	}

	err = fkRows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate foreign key rows: %w", err)
	}

	return references, nil
}

// copyTableSchema recreates one table in the export database from its live
// CREATE TABLE statement.
func (db *Database) copyTableSchema(ctx context.Context, tx *sql.Tx, tableName string) error {
	var createSQL string
	schemaQuery := `SELECT sql FROM sqlite_schema WHERE type = 'table' AND name = ?`
	err := tx.QueryRowContext(ctx, schemaQuery, tableName).Scan(&createSQL)
	if err != nil {
		return fmt.Errorf("get schema for table %s: %w", tableName, err)
	}

	// Point the statement at the attached export database.
	exportSQL := fmt.Sprintf("CREATE TABLE export.%s%s", tableName, createSQL[len("CREATE TABLE "+tableName):])
	_, err = tx.ExecContext(ctx, exportSQL)
	if err != nil {
		return fmt.Errorf("create table schema in export db: %w", err)
	}

	return nil
}

// copyUserTableData copies the rows of one table, filtered down to the user
// where the table has a user column.
func (db *Database) copyUserTableData(ctx context.Context, tx *sql.Tx, table userTable, userID int) error {
	var whereClause string
	var args []any

	switch {
	case table.userColumnPath == nil:
		// Lookup table, copy everything.
		whereClause = ""
	case table.name == usersTableName:
		whereClause = "WHERE id = ?"
		args = append(args, userID)
	default:
		// The first column on the path carries the user ID directly, which
		// holds for both direct references and composite keys like
		// route_runs.run_user_id.
		whereClause = "WHERE " + table.userColumnPath[0] + " = ?"
		args = append(args, userID)
	}

	var query string
	if whereClause == "" {
		query = "INSERT INTO export." + table.name + " SELECT * FROM main." + table.name
	} else {
		query = "INSERT INTO export." + table.name + " SELECT * FROM main." + table.name + " " + whereClause
	}
	_, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("copy data: %w", err)
	}

	return nil
}
