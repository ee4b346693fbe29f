package program

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/myrjola/runplan/internal/contexthelpers"
	"github.com/myrjola/runplan/internal/sqlite"
	"github.com/myrjola/runplan/internal/units"
)

const (
	defaultDurationWeeks = 12
	defaultDaysPerWeek   = 4
)

// sqliteProfileRepository persists the runner profile and personal bests.
type sqliteProfileRepository struct {
	baseRepository
	programRepo *sqliteProgramRepository
}

func newSQLiteProfileRepository(
	db *sqlite.Database,
	logger *slog.Logger,
	programRepo *sqliteProgramRepository,
) *sqliteProfileRepository {
	return &sqliteProfileRepository{
		baseRepository: newBaseRepository(db, logger),
		programRepo:    programRepo,
	}
}

// Get retrieves the profile for the authenticated user. A user without a
// stored profile gets the defaults.
func (r *sqliteProfileRepository) Get(ctx context.Context) (Profile, error) {
	userID := contexthelpers.AuthenticatedUserID(ctx)

	var (
		profile      Profile
		unitStr      string
		startDateStr sql.NullString
	)
	err := r.db.ReadOnly.QueryRowContext(ctx, `
		SELECT vo2_max, hr_max, lt1_hr, lt2_hr, preferred_unit, duration_weeks, days_per_week, start_date
		FROM profiles
		WHERE user_id = ?`, userID).Scan(
		&profile.VO2Max,
		&profile.HRMax,
		&profile.LT1HR,
		&profile.LT2HR,
		&unitStr,
		&profile.DurationWeeks,
		&profile.DaysPerWeek,
		&startDateStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{ //nolint:exhaustruct // physiology fields default to zero.
			PreferredUnit: units.Metric,
			DurationWeeks: defaultDurationWeeks,
			DaysPerWeek:   defaultDaysPerWeek,
		}, nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("query profile: %w", err)
	}

	profile.PreferredUnit = units.System(unitStr)
	if startDateStr.Valid {
		if profile.StartDate, err = parseDate(startDateStr.String); err != nil {
			return Profile{}, fmt.Errorf("parse start date: %w", err)
		}
	}
	return profile, nil
}

// Set upserts the profile without touching the program.
func (r *sqliteProfileRepository) Set(ctx context.Context, profile Profile) error {
	tx, err := r.db.ReadWrite.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			r.logger.LogAttrs(ctx, slog.LevelError, "rollback transaction", slog.Any("error", rollbackErr))
		}
	}(tx)

	if err = r.upsertTx(ctx, tx, profile); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// SetWithProgram upserts the profile and swaps the stored program in a single
// transaction so that a plan-parameter change never leaves a stale program
// behind.
func (r *sqliteProfileRepository) SetWithProgram(ctx context.Context, profile Profile, prog Program) error {
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

	if err = r.upsertTx(ctx, tx, profile); err != nil {
		return err
	}
	if err = r.programRepo.replaceTx(ctx, tx, userID, prog); err != nil {
		return fmt.Errorf("replace program: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *sqliteProfileRepository) upsertTx(ctx context.Context, tx *sql.Tx, profile Profile) error {
	userID := contexthelpers.AuthenticatedUserID(ctx)

	var startDate any
	if !profile.StartDate.IsZero() {
		startDate = formatDate(profile.StartDate)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO profiles (
			user_id, vo2_max, hr_max, lt1_hr, lt2_hr, preferred_unit, duration_weeks, days_per_week, start_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			vo2_max = excluded.vo2_max,
			hr_max = excluded.hr_max,
			lt1_hr = excluded.lt1_hr,
			lt2_hr = excluded.lt2_hr,
			preferred_unit = excluded.preferred_unit,
			duration_weeks = excluded.duration_weeks,
			days_per_week = excluded.days_per_week,
			start_date = excluded.start_date`,
		userID,
		profile.VO2Max,
		profile.HRMax,
		profile.LT1HR,
		profile.LT2HR,
		string(profile.PreferredUnit),
		profile.DurationWeeks,
		profile.DaysPerWeek,
		startDate,
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// PersonalBests retrieves the recorded race times ordered by distance.
func (r *sqliteProfileRepository) PersonalBests(ctx context.Context) (_ []PersonalBest, err error) {
	userID := contexthelpers.AuthenticatedUserID(ctx)

	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT distance, pre_time, post_time
		FROM personal_bests
		WHERE user_id = ?
		ORDER BY rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("query personal bests: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()

	var bests []PersonalBest
	for rows.Next() {
		var best PersonalBest
		if err = rows.Scan(&best.Distance, &best.PreTime, &best.PostTime); err != nil {
			return nil, fmt.Errorf("scan personal best row: %w", err)
		}
		bests = append(bests, best)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return bests, nil
}

// SetPersonalBests replaces the recorded race times.
func (r *sqliteProfileRepository) SetPersonalBests(ctx context.Context, bests []PersonalBest) error {
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

	if _, err = tx.ExecContext(ctx, `
		DELETE FROM personal_bests
		WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete personal bests: %w", err)
	}

	for _, best := range bests {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO personal_bests (user_id, distance, pre_time, post_time)
			VALUES (?, ?, ?, ?)`,
			userID, best.Distance, best.PreTime, best.PostTime); err != nil {
			return fmt.Errorf("insert personal best: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
