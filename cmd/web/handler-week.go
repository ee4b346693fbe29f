package main

import (
	"fmt"
	"net/http"
)

type weekTemplateData struct {
	BaseTemplateData
	Week weekView
}

func (app *application) weekGET(w http.ResponseWriter, r *http.Request) {
	weekID := r.PathValue("weekID")
	week, err := app.programService.Week(r.Context(), weekID)
	if err != nil {
		app.handleServiceError(w, r, fmt.Errorf("get week: %w", err))
		return
	}

	data := weekTemplateData{
		BaseTemplateData: newBaseTemplateData(r),
		Week:             toWeekView(week),
	}

	app.render(w, r, http.StatusOK, "week", data)
}

func (app *application) weekActivatePOST(w http.ResponseWriter, r *http.Request) {
	weekID := r.PathValue("weekID")
	if err := app.programService.ActivateWeek(r.Context(), weekID); err != nil {
		app.handleServiceError(w, r, fmt.Errorf("activate week: %w", err))
		return
	}

	redirect(w, r, fmt.Sprintf("/weeks/%s", weekID))
}
