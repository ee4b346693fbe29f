package program

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/myrjola/runplan/internal/contexthelpers"
	"github.com/myrjola/runplan/internal/sqlite"
)

// sqliteProgramRepository persists generated plans as week and day rows.
type sqliteProgramRepository struct {
	baseRepository
}

func newSQLiteProgramRepository(db *sqlite.Database, logger *slog.Logger) *sqliteProgramRepository {
	return &sqliteProgramRepository{
		baseRepository: newBaseRepository(db, logger),
	}
}

// Get reconstructs the full program for the authenticated user. Returns
// ErrNotFound when no program has been generated yet.
func (r *sqliteProgramRepository) Get(ctx context.Context) (Program, error) {
	userID := contexthelpers.AuthenticatedUserID(ctx)

	weeks, err := r.loadWeeks(ctx, userID)
	if err != nil {
		return Program{}, err
	}
	if len(weeks) == 0 {
		return Program{}, ErrNotFound
	}

	var daysPerWeek int
	err = r.db.ReadOnly.QueryRowContext(ctx, `
		SELECT days_per_week
		FROM profiles
		WHERE user_id = ?`, userID).Scan(&daysPerWeek)
	if err != nil {
		return Program{}, fmt.Errorf("query plan parameters: %w", err)
	}

	return Program{
		StartDate:     weeks[0].Days[0].Date,
		DurationWeeks: len(weeks),
		DaysPerWeek:   daysPerWeek,
		Weeks:         weeks,
	}, nil
}

// GetWeek retrieves a single week. Returns ErrNotFound when the week does not
// exist in the stored program.
func (r *sqliteProgramRepository) GetWeek(ctx context.Context, weekNumber int) (Week, error) {
	userID := contexthelpers.AuthenticatedUserID(ctx)

	var (
		week      Week
		statusStr string
	)
	err := r.db.ReadOnly.QueryRowContext(ctx, `
		SELECT week_number, status
		FROM program_weeks
		WHERE user_id = ? AND week_number = ?`, userID, weekNumber).Scan(&week.Number, &statusStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Week{}, ErrNotFound
		}
		return Week{}, fmt.Errorf("query week: %w", err)
	}
	week.ID = weekID(week.Number)
	week.Status = WeekStatus(statusStr)

	var durationWeeks int
	err = r.db.ReadOnly.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM program_weeks
		WHERE user_id = ?`, userID).Scan(&durationWeeks)
	if err != nil {
		return Week{}, fmt.Errorf("count weeks: %w", err)
	}
	week.Phase = phaseFor(week.Number, durationWeeks)

	if week.Days, err = r.loadDays(ctx, userID, weekNumber); err != nil {
		return Week{}, err
	}
	return week, nil
}

// GetDay retrieves a single day. Returns ErrNotFound when the day does not
// exist in the stored program.
func (r *sqliteProgramRepository) GetDay(ctx context.Context, weekNumber, dayNumber int) (Day, error) {
	userID := contexthelpers.AuthenticatedUserID(ctx)

	row := r.db.ReadOnly.QueryRowContext(ctx, `
		SELECT week_number, day_number, day_date, kind, title, duration_minutes, status, proof_image
		FROM program_days
		WHERE user_id = ? AND week_number = ? AND day_number = ?`,
		userID, weekNumber, dayNumber)

	day, err := scanDay(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Day{}, ErrNotFound
		}
		return Day{}, fmt.Errorf("query day: %w", err)
	}
	return day, nil
}

// CompleteDay marks a day complete and rolls the owning week up to complete
// once every day of the week is complete. A non-empty proofImage replaces the
// stored one. Repeating the call is a no-op apart from the proof image.
func (r *sqliteProgramRepository) CompleteDay(ctx context.Context, weekNumber, dayNumber int, proofImage string) error {
	userID := contexthelpers.AuthenticatedUserID(ctx)

	tx, err := r.db.ReadWrite.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			r.logger.LogAttrs(ctx, slog.LevelError, "rollback transaction", slog.Any("error", rollbackErr))
		}
	}(tx)

	result, err := tx.ExecContext(ctx, `
		UPDATE program_days
		SET status = ?,
			proof_image = CASE WHEN ? = '' THEN proof_image ELSE ? END
		WHERE user_id = ? AND week_number = ? AND day_number = ?`,
		string(DayComplete), proofImage, proofImage, userID, weekNumber, dayNumber)
	if err != nil {
		return fmt.Errorf("complete day: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	var pending int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM program_days
		WHERE user_id = ? AND week_number = ? AND status != ?`,
		userID, weekNumber, string(DayComplete)).Scan(&pending)
	if err != nil {
		return fmt.Errorf("count pending days: %w", err)
	}
	if pending == 0 {
		if _, err = tx.ExecContext(ctx, `
			UPDATE program_weeks
			SET status = ?
			WHERE user_id = ? AND week_number = ?`,
			string(WeekComplete), userID, weekNumber); err != nil {
			return fmt.Errorf("complete week: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ActivateWeek transitions a locked week to active.
func (r *sqliteProgramRepository) ActivateWeek(ctx context.Context, weekNumber int) error {
	userID := contexthelpers.AuthenticatedUserID(ctx)

	result, err := r.db.ReadWrite.ExecContext(ctx, `
		UPDATE program_weeks
		SET status = ?
		WHERE user_id = ? AND week_number = ? AND status = ?`,
		string(WeekActive), userID, weekNumber, string(WeekLocked))
	if err != nil {
		return fmt.Errorf("activate week: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// replaceTx swaps the stored program inside an existing transaction.
func (r *sqliteProgramRepository) replaceTx(ctx context.Context, tx *sql.Tx, userID int, prog Program) error {
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM program_days
		WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete days: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM program_weeks
		WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete weeks: %w", err)
	}

	for _, week := range prog.Weeks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO program_weeks (user_id, week_number, status)
			VALUES (?, ?, ?)`,
			userID, week.Number, string(week.Status)); err != nil {
			return fmt.Errorf("insert week: %w", err)
		}
		for _, day := range week.Days {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO program_days (
					user_id, week_number, day_number, day_date, kind, title, duration_minutes, status, proof_image
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				userID, week.Number, day.DayNumber, formatDate(day.Date),
				string(day.Kind), day.Title, day.DurationMinutes, string(day.Status), day.ProofImage); err != nil {
				return fmt.Errorf("insert day: %w", err)
			}
		}
	}
	return nil
}

func (r *sqliteProgramRepository) loadWeeks(ctx context.Context, userID int) (_ []Week, err error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT week_number, status
		FROM program_weeks
		WHERE user_id = ?
		ORDER BY week_number`, userID)
	if err != nil {
		return nil, fmt.Errorf("query weeks: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()

	var weeks []Week
	for rows.Next() {
		var (
			week      Week
			statusStr string
		)
		if err = rows.Scan(&week.Number, &statusStr); err != nil {
			return nil, fmt.Errorf("scan week row: %w", err)
		}
		week.ID = weekID(week.Number)
		week.Status = WeekStatus(statusStr)
		weeks = append(weeks, week)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for i := range weeks {
		weeks[i].Phase = phaseFor(weeks[i].Number, len(weeks))
		if weeks[i].Days, err = r.loadDays(ctx, userID, weeks[i].Number); err != nil {
			return nil, err
		}
	}
	return weeks, nil
}

func (r *sqliteProgramRepository) loadDays(ctx context.Context, userID int, weekNumber int) (_ []Day, err error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT week_number, day_number, day_date, kind, title, duration_minutes, status, proof_image
		FROM program_days
		WHERE user_id = ? AND week_number = ?
		ORDER BY day_number`, userID, weekNumber)
	if err != nil {
		return nil, fmt.Errorf("query days: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()

	var days []Day
	for rows.Next() {
		var day Day
		if day, err = scanDay(rows); err != nil {
			return nil, fmt.Errorf("scan day row: %w", err)
		}
		days = append(days, day)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return days, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDay(row rowScanner) (Day, error) {
	var (
		day        Day
		dayDateStr string
		kindStr    string
		statusStr  string
	)
	err := row.Scan(
		&day.WeekNumber,
		&day.DayNumber,
		&dayDateStr,
		&kindStr,
		&day.Title,
		&day.DurationMinutes,
		&statusStr,
		&day.ProofImage,
	)
	if err != nil {
		return Day{}, err
	}
	day.ID = dayID(day.WeekNumber, day.DayNumber)
	day.Kind = Kind(kindStr)
	day.Status = DayStatus(statusStr)
	if day.Date, err = parseDate(dayDateStr); err != nil {
		return Day{}, fmt.Errorf("parse day date: %w", err)
	}
	return day, nil
}
