package main

import (
	"fmt"
	"net/http"

	"github.com/myrjola/runplan/internal/program"
)

type sessionTemplateData struct {
	BaseTemplateData
	WeekID        string
	Day           dayView
	GuideMarkdown string
}

func (app *application) sessionGET(w http.ResponseWriter, r *http.Request) {
	var (
		weekID = r.PathValue("weekID")
		dayID  = r.PathValue("dayID")
		ctx    = r.Context()
	)
	day, err := app.programService.Day(ctx, weekID, dayID)
	if err != nil {
		app.handleServiceError(w, r, fmt.Errorf("get day: %w", err))
		return
	}

	data := sessionTemplateData{ //nolint:exhaustruct // GuideMarkdown only applies to runs.
		BaseTemplateData: newBaseTemplateData(r),
		WeekID:           weekID,
		Day: dayView{
			ID:              day.ID,
			WeekID:          weekID,
			Date:            day.Date,
			Weekday:         day.Date.Format("Monday"),
			IsRest:          day.Kind == program.KindRest,
			Title:           day.Title,
			DurationMinutes: day.DurationMinutes,
			Completed:       day.Status == program.DayComplete,
		},
	}

	if day.Kind == program.KindRun {
		if data.GuideMarkdown, err = app.programService.Guide(ctx, day.Title, day.DurationMinutes); err != nil {
			app.serverError(w, r, fmt.Errorf("get workout guide: %w", err))
			return
		}
	}

	app.render(w, r, http.StatusOK, "session", data)
}

func (app *application) sessionCompletePOST(w http.ResponseWriter, r *http.Request) {
	var (
		weekID = r.PathValue("weekID")
		dayID  = r.PathValue("dayID")
	)
	if err := r.ParseForm(); err != nil {
		app.serverError(w, r, fmt.Errorf("parse form: %w", err))
		return
	}
	proofImage := r.Form.Get("proof_image")

	if err := app.programService.MarkSessionComplete(r.Context(), weekID, dayID, proofImage); err != nil {
		app.handleServiceError(w, r, fmt.Errorf("mark session complete: %w", err))
		return
	}

	redirect(w, r, fmt.Sprintf("/weeks/%s", weekID))
}
