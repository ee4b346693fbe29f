package program

import (
	"log/slog"
	"time"

	"github.com/myrjola/runplan/internal/errors"
)

// ErrInvalidConfig marks plan parameters that cannot produce a program.
var ErrInvalidConfig = errors.NewSentinel("invalid program configuration")

const (
	minDaysPerWeek = 3
	maxDaysPerWeek = 7
)

// workoutRotation is the fixed cycle of running workouts. A day picks its
// workout with (week + day) mod len(workoutRotation).
var workoutRotation = []struct {
	title   string
	minutes int
}{
	{title: "Aerobic Base", minutes: 45},
	{title: "Tempo Run", minutes: 30},
	{title: "Intervals", minutes: 40},
	{title: "Recovery Run", minutes: 25},
	{title: "Long Run", minutes: 60},
}

// Generate builds a deterministic running plan. Monday is always a rest day,
// Friday rests when fewer than six days are trained, and no week schedules
// more runs than daysPerWeek. Rest days start out complete so that week
// progress only tracks the runs.
func Generate(durationWeeks int, daysPerWeek int, startDate time.Time) (Program, error) {
	if err := validateConfig(durationWeeks, daysPerWeek); err != nil {
		return Program{}, err
	}

	weeks := make([]Week, 0, durationWeeks)
	for w := 1; w <= durationWeeks; w++ {
		status := WeekLocked
		if w == 1 {
			status = WeekActive
		}
		week := Week{
			ID:     weekID(w),
			Number: w,
			Phase:  phaseFor(w, durationWeeks),
			Status: status,
			Days:   make([]Day, 0, daysInWeek),
		}

		runCount := 0
		for d := 1; d <= daysInWeek; d++ {
			day := Day{ //nolint:exhaustruct // kind-specific fields are set below.
				ID:         dayID(w, d),
				WeekNumber: w,
				DayNumber:  d,
				Date:       startDate.AddDate(0, 0, (w-1)*daysInWeek+(d-1)),
			}
			if isRestDay(d, daysPerWeek, runCount) {
				day.Kind = KindRest
				day.Title = "Rest"
				day.Status = DayComplete
			} else {
				workout := workoutRotation[(w+d)%len(workoutRotation)]
				day.Kind = KindRun
				day.Title = workout.title
				day.DurationMinutes = workout.minutes
				day.Status = DayPending
				runCount++
			}
			week.Days = append(week.Days, day)
		}
		weeks = append(weeks, week)
	}

	return Program{
		StartDate:     startDate,
		DurationWeeks: durationWeeks,
		DaysPerWeek:   daysPerWeek,
		Weeks:         weeks,
	}, nil
}

func validateConfig(durationWeeks, daysPerWeek int) error {
	if durationWeeks < 1 {
		return errors.Wrap(ErrInvalidConfig, "duration must be at least one week",
			slog.Int("duration_weeks", durationWeeks))
	}
	if daysPerWeek < minDaysPerWeek || daysPerWeek > maxDaysPerWeek {
		return errors.Wrap(ErrInvalidConfig, "training days must be between 3 and 7",
			slog.Int("days_per_week", daysPerWeek))
	}
	return nil
}

// isRestDay applies the rest rules in order: Monday always rests, Friday
// rests on plans below six training days, and once the week has scheduled
// daysPerWeek runs the remaining days rest.
func isRestDay(day int, daysPerWeek int, runCount int) bool {
	const (
		monday = 1
		friday = 5
	)
	if day == monday {
		return true
	}
	if day == friday && daysPerWeek < 6 {
		return true
	}
	return runCount >= daysPerWeek
}

// phaseFor splits the plan into thirds. The comparisons are strict so that
// e.g. week 4 of a 12-week plan is still Base.
func phaseFor(week int, durationWeeks int) Phase {
	switch {
	case float64(week) > 2.0/3.0*float64(durationWeeks): //nolint:mnd // final third.
		return PhasePeak
	case float64(week) > 1.0/3.0*float64(durationWeeks): //nolint:mnd // middle third.
		return PhaseBuild
	default:
		return PhaseBase
	}
}
