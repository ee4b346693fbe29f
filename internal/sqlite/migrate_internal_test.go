package sqlite

import (
	"log/slog"
	"testing"

	"github.com/myrjola/runplan/internal/testhelpers"
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
			name:              "create table",
			schemaDefinitions: []string{"CREATE TABLE runs (id INTEGER PRIMARY KEY, title TEXT)"},
			testQueries: []string{
				"INSERT INTO runs (title) VALUES ('Morning Run')",
				"SELECT * FROM runs",
			},
			wantErr: false,
		},
		{
			name: "drop table",
			schemaDefinitions: []string{
				"CREATE TABLE runs (id INTEGER PRIMARY KEY, title TEXT)",
				"", // drop table
			},
			testQueries: []string{"INSERT INTO runs (title) VALUES ('Morning Run')"},
			wantErr:     true,
		},
		{
			name: "add column",
			schemaDefinitions: []string{
				"CREATE TABLE runs (id INTEGER PRIMARY KEY)",
				"CREATE TABLE runs (id INTEGER PRIMARY KEY, title TEXT)",
			},
			testQueries: []string{"INSERT INTO runs (title) VALUES ('Morning Run')"},
			wantErr:     false,
		},
		{
			name: "remove column",
			schemaDefinitions: []string{
				"CREATE TABLE runs (id INTEGER PRIMARY KEY)",
				"CREATE TABLE runs (id INTEGER PRIMARY KEY, title TEXT)",
				"CREATE TABLE runs (id INTEGER PRIMARY KEY)",
			},
			testQueries: []string{"INSERT INTO runs (title) VALUES ('Morning Run')"},
			wantErr:     true,
		},
		{
			name: "create index",
			schemaDefinitions: []string{
				"CREATE TABLE runs (id INTEGER PRIMARY KEY, title TEXT); CREATE INDEX runs_title ON runs (title)",
			},
			testQueries: []string{"DROP INDEX runs_title"},
			wantErr:     false,
		},
		{
			name: "drop index",
			schemaDefinitions: []string{
				"CREATE TABLE runs (id INTEGER PRIMARY KEY, title TEXT); CREATE INDEX runs_title ON runs (title)",
				"CREATE TABLE runs (id INTEGER PRIMARY KEY, title TEXT)",
			},
			testQueries: []string{"DROP INDEX runs_title"},
			wantErr:     true,
		},
		{
			name: "update index",
			schemaDefinitions: []string{
				"CREATE TABLE runs (id INTEGER PRIMARY KEY, title TEXT); CREATE INDEX runs_title ON runs (title)",
				"CREATE TABLE runs (id INTEGER PRIMARY KEY, title TEXT); CREATE INDEX runs_title ON runs (id, title)",
			},
			testQueries: []string{"DROP INDEX runs_title"},
			wantErr:     false,
		},
		{
			name: "create trigger",
			schemaDefinitions: []string{
				`CREATE TABLE runs ( id   INTEGER PRIMARY KEY, title TEXT );
                 CREATE TRIGGER runs_trigger AFTER INSERT ON runs BEGIN SELECT RAISE ( FAIL, 'fail' ); END;`,
			},
			testQueries: []string{"INSERT INTO runs (title) VALUES ('Morning Run')"},
			wantErr:     true,
		},
		{
			name: "delete trigger",
			schemaDefinitions: []string{
				`CREATE TABLE runs ( id   INTEGER PRIMARY KEY, title TEXT );
                 CREATE TRIGGER runs_trigger AFTER INSERT ON runs BEGIN SELECT RAISE ( FAIL, 'fail' ); END;`,
				"CREATE TABLE runs ( id   INTEGER PRIMARY KEY, title TEXT )",
			},
			testQueries: []string{"INSERT INTO runs (title) VALUES ('Morning Run')"},
			wantErr:     false,
		},
		{
			name: "update trigger",
			schemaDefinitions: []string{
				`CREATE TABLE runs ( id   INTEGER PRIMARY KEY, title TEXT );
                 CREATE TRIGGER runs_trigger AFTER INSERT ON runs BEGIN SELECT RAISE ( FAIL, 'fail' ); END;`,
				`CREATE TABLE runs ( id   INTEGER PRIMARY KEY, title TEXT );
                 CREATE TRIGGER runs_trigger AFTER INSERT ON runs BEGIN SELECT 1; END;`,
			},
			testQueries: []string{"INSERT INTO runs (title) VALUES ('Morning Run')"},
			wantErr:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := t.Context()
			logger := testhelpers.NewLogger(testhelpers.NewWriter(t))
			db, err := connect(ctx, ":memory:", logger)
			if err != nil {
				t.Fatalf("Failed to connect to database: %v", err)
			}
			defer func(db *Database) {
				err = db.Close()
				if err != nil {
					t.Errorf("Failed to close database: %v", err)
				}
			}(db)

			for _, schemaDefinition := range tt.schemaDefinitions {
				logger.LogAttrs(ctx, slog.LevelInfo, "migrating", slog.String("schema", schemaDefinition))
				err = db.migrateTo(ctx, schemaDefinition)
				if err != nil {
					t.Fatalf("Failed to migrate: %v", err)
				}
			}

			for _, query := range tt.testQueries {
				logger.LogAttrs(ctx, slog.LevelInfo, "executing", slog.String("query", query))
				_, err = db.ReadWrite.ExecContext(ctx, query)
				if tt.wantErr && err == nil {
					t.Errorf("Expected error for query %q, but got none", query)
				}
				if !tt.wantErr && err != nil {
					t.Errorf("Unexpected error for query %q: %v", query, err)
				}
			}
		})
	}
}
