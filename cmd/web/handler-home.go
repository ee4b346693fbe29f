package main

import (
	"net/http"
	"time"

	"github.com/myrjola/runplan/internal/errors"
	"github.com/myrjola/runplan/internal/program"
)

const percentMultiplier = 100

type homeTemplateData struct {
	BaseTemplateData
	// HasProgram indicates whether the user has generated a training plan.
	HasProgram bool
	// Week is the training week containing today, or the closest one.
	Week weekView
}

// weekView is the template representation of a training week.
type weekView struct {
	ID              string
	Number          int
	Phase           string
	Status          string
	CompletedRuns   int
	TotalRuns       int
	ProgressPercent int
	Days            []dayView
}

// dayView is the template representation of a single training day.
type dayView struct {
	ID              string
	WeekID          string
	Date            time.Time
	Weekday         string
	IsToday         bool
	IsRest          bool
	Title           string
	DurationMinutes int
	Completed       bool
}

func toWeekView(week program.Week) weekView {
	days := make([]dayView, len(week.Days))
	today := time.Now().Format(time.DateOnly)
	for i, day := range week.Days {
		days[i] = dayView{
			ID:              day.ID,
			WeekID:          week.ID,
			Date:            day.Date,
			Weekday:         day.Date.Format("Monday"),
			IsToday:         day.Date.Format(time.DateOnly) == today,
			IsRest:          day.Kind == program.KindRest,
			Title:           day.Title,
			DurationMinutes: day.DurationMinutes,
			Completed:       day.Status == program.DayComplete,
		}
	}
	completedRuns := week.CompletedRuns()
	totalRuns := week.TotalRuns()
	progressPercent := 0
	if totalRuns > 0 {
		progressPercent = (completedRuns * percentMultiplier) / totalRuns
	}
	return weekView{
		ID:              week.ID,
		Number:          week.Number,
		Phase:           string(week.Phase),
		Status:          string(week.Status),
		CompletedRuns:   completedRuns,
		TotalRuns:       totalRuns,
		ProgressPercent: progressPercent,
		Days:            days,
	}
}

func (app *application) home(w http.ResponseWriter, r *http.Request) {
	data := homeTemplateData{ //nolint:exhaustruct // Week is filled below.
		BaseTemplateData: newBaseTemplateData(r),
	}

	// Only fetch the training week for authenticated users.
	if data.Authenticated {
		week, err := app.programService.CurrentWeek(r.Context())
		switch {
		case err == nil:
			data.HasProgram = true
			data.Week = toWeekView(week)
		case errors.Is(err, program.ErrNotFound):
			// No plan yet, the page links to the preferences.
		default:
			app.serverError(w, r, err)
			return
		}
	}

	app.render(w, r, http.StatusOK, "home", data)
}
