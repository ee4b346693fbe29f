package program

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/myrjola/runplan/internal/sqlite"
)

// sqliteGuideRepository caches generated workout guides. Guides are keyed by
// workout title and shared between users.
type sqliteGuideRepository struct {
	baseRepository
}

func newSQLiteGuideRepository(db *sqlite.Database, logger *slog.Logger) *sqliteGuideRepository {
	return &sqliteGuideRepository{
		baseRepository: newBaseRepository(db, logger),
	}
}

// Get retrieves the cached guide markdown for a workout title.
func (r *sqliteGuideRepository) Get(ctx context.Context, title string) (string, error) {
	var markdown string
	err := r.db.ReadOnly.QueryRowContext(ctx, `
		SELECT description_markdown
		FROM workout_guides
		WHERE title = ?`, title).Scan(&markdown)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("query workout guide: %w", err)
	}
	return markdown, nil
}

// Set stores the guide markdown for a workout title.
func (r *sqliteGuideRepository) Set(ctx context.Context, title, markdown string) error {
	_, err := r.db.ReadWrite.ExecContext(ctx, `
		INSERT INTO workout_guides (title, description_markdown)
		VALUES (?, ?)
		ON CONFLICT (title) DO UPDATE SET
			description_markdown = excluded.description_markdown`,
		title, markdown)
	if err != nil {
		return fmt.Errorf("save workout guide: %w", err)
	}
	return nil
}
