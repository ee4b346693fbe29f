package program

import (
	"log/slog"
	"time"

	"github.com/myrjola/runplan/internal/errors"
	"github.com/myrjola/runplan/internal/sqlite"
)

const dateFormat = time.DateOnly

// ErrNotFound marks lookups that matched no row for the authenticated user.
var ErrNotFound = errors.NewSentinel("not found")

// baseRepository carries the dependencies shared by all repositories.
type baseRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func newBaseRepository(db *sqlite.Database, logger *slog.Logger) baseRepository {
	return baseRepository{
		db:     db,
		logger: logger,
	}
}

// repository bundles the per-aggregate repositories behind one handle.
type repository struct {
	profiles *sqliteProfileRepository
	programs *sqliteProgramRepository
	guides   *sqliteGuideRepository
}

type repositoryFactory struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func newRepositoryFactory(db *sqlite.Database, logger *slog.Logger) *repositoryFactory {
	return &repositoryFactory{
		db:     db,
		logger: logger,
	}
}

func (f *repositoryFactory) newRepository() *repository {
	programs := newSQLiteProgramRepository(f.db, f.logger)
	return &repository{
		profiles: newSQLiteProfileRepository(f.db, f.logger, programs),
		programs: programs,
		guides:   newSQLiteGuideRepository(f.db, f.logger),
	}
}

func formatDate(date time.Time) string {
	return date.Format(dateFormat)
}

func parseDate(dateStr string) (time.Time, error) {
	date, err := time.Parse(dateFormat, dateStr)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parse date", slog.String("date", dateStr))
	}
	return date, nil
}
