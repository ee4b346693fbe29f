package main

import (
	"net/http"
	"time"

	"github.com/myrjola/runplan/internal/errors"
	"github.com/myrjola/runplan/internal/program"
)

type programTemplateData struct {
	BaseTemplateData
	HasProgram    bool
	StartDate     time.Time
	DurationWeeks int
	DaysPerWeek   int
	Weeks         []weekView
}

func (app *application) programGET(w http.ResponseWriter, r *http.Request) {
	data := programTemplateData{ //nolint:exhaustruct // plan fields are filled below.
		BaseTemplateData: newBaseTemplateData(r),
	}

	prog, err := app.programService.Program(r.Context())
	switch {
	case err == nil:
		data.HasProgram = true
		data.StartDate = prog.StartDate
		data.DurationWeeks = prog.DurationWeeks
		data.DaysPerWeek = prog.DaysPerWeek
		data.Weeks = make([]weekView, len(prog.Weeks))
		for i, week := range prog.Weeks {
			data.Weeks[i] = toWeekView(week)
		}
	case errors.Is(err, program.ErrNotFound):
		// No plan yet, the page links to the preferences.
	default:
		app.serverError(w, r, err)
		return
	}

	app.render(w, r, http.StatusOK, "program", data)
}
