package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/myrjola/runplan/internal/errors"
	"github.com/myrjola/runplan/internal/program"
	"github.com/myrjola/runplan/internal/ptr"
	"github.com/myrjola/runplan/internal/units"
)

type planLengthOption struct {
	Value int    // Number of weeks
	Label string // Display label
}

type preferencesTemplateData struct {
	BaseTemplateData
	DurationWeeks     int
	DaysPerWeek       int
	StartDate         string
	PreferredUnit     string
	PlanLengthOptions []planLengthOption
	TrainingDays      []int
	Error             string
}

func getPlanLengthOptions() []planLengthOption {
	return []planLengthOption{
		{Value: 6, Label: "6 weeks"},
		{Value: 8, Label: "8 weeks"},
		{Value: 10, Label: "10 weeks"},
		{Value: 12, Label: "12 weeks"},
		{Value: 16, Label: "16 weeks"},
	}
}

func (app *application) preferencesTemplateData(r *http.Request) (preferencesTemplateData, error) {
	profile, err := app.programService.Profile(r.Context())
	if err != nil {
		return preferencesTemplateData{}, fmt.Errorf("get profile: %w", err)
	}

	startDate := ""
	if !profile.StartDate.IsZero() {
		startDate = profile.StartDate.Format(time.DateOnly)
	}

	return preferencesTemplateData{ //nolint:exhaustruct // Error is only set on failed submits.
		BaseTemplateData:  newBaseTemplateData(r),
		DurationWeeks:     profile.DurationWeeks,
		DaysPerWeek:       profile.DaysPerWeek,
		StartDate:         startDate,
		PreferredUnit:     string(profile.PreferredUnit),
		PlanLengthOptions: getPlanLengthOptions(),
		TrainingDays:      []int{3, 4, 5, 6, 7},
	}, nil
}

func (app *application) preferencesGET(w http.ResponseWriter, r *http.Request) {
	data, err := app.preferencesTemplateData(r)
	if err != nil {
		app.serverError(w, r, err)
		return
	}

	app.render(w, r, http.StatusOK, "preferences", data)
}

func parsePreferencesForm(r *http.Request) (program.ProfileUpdate, error) {
	var update program.ProfileUpdate

	durationWeeks, err := strconv.Atoi(r.Form.Get("duration_weeks"))
	if err != nil {
		return update, fmt.Errorf("parse plan length: %w", err)
	}
	update.DurationWeeks = ptr.Ref(durationWeeks)

	daysPerWeek, err := strconv.Atoi(r.Form.Get("days_per_week"))
	if err != nil {
		return update, fmt.Errorf("parse training days: %w", err)
	}
	update.DaysPerWeek = ptr.Ref(daysPerWeek)

	if startDateStr := r.Form.Get("start_date"); startDateStr != "" {
		var startDate time.Time
		if startDate, err = time.Parse(time.DateOnly, startDateStr); err != nil {
			return update, fmt.Errorf("parse start date: %w", err)
		}
		update.StartDate = ptr.Ref(startDate)
	}

	switch unit := r.Form.Get("preferred_unit"); unit {
	case string(units.Metric), string(units.Imperial):
		update.PreferredUnit = ptr.Ref(units.System(unit))
	case "":
	default:
		return update, fmt.Errorf("unknown unit system: %s", unit)
	}

	return update, nil
}

func (app *application) preferencesPOST(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		app.serverError(w, r, fmt.Errorf("parse form: %w", err))
		return
	}

	update, err := parsePreferencesForm(r)
	if err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelDebug, "invalid preferences form", slog.Any("error", err))
		app.renderPreferencesError(w, r, "Please check the plan settings and try again.")
		return
	}

	if err = app.programService.UpdateProfile(r.Context(), update); err != nil {
		if errors.Is(err, program.ErrInvalidConfig) {
			app.renderPreferencesError(w, r, "Please check the plan settings and try again.")
			return
		}
		app.serverError(w, r, fmt.Errorf("update profile: %w", err))
		return
	}

	redirect(w, r, "/")
}

func (app *application) renderPreferencesError(w http.ResponseWriter, r *http.Request, message string) {
	data, err := app.preferencesTemplateData(r)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	data.Error = message

	app.render(w, r, http.StatusUnprocessableEntity, "preferences", data)
}

func (app *application) deleteUserPOST(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Delete the user and all their data
	if err := app.webAuthnHandler.DeleteUser(ctx); err != nil {
		app.serverError(w, r, fmt.Errorf("delete user: %w", err))
		return
	}

	// Log the user out by clearing the session and redirect to home
	if err := app.webAuthnHandler.Logout(ctx); err != nil {
		app.serverError(w, r, fmt.Errorf("logout after user deletion: %w", err))
		return
	}

	redirect(w, r, "/")
}

func (app *application) exportUserDataGET(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Create the user database export
	exportPath, err := app.programService.ExportData(ctx, os.TempDir())
	if err != nil {
		app.serverError(w, r, fmt.Errorf("export user data: %w", err))
		return
	}

	// Clean up the temporary file when done
	defer func() {
		if removeErr := os.Remove(exportPath); removeErr != nil {
			app.logger.LogAttrs(ctx, slog.LevelWarn, "failed to remove temporary export file",
				slog.String("path", exportPath), slog.Any("error", removeErr))
		}
	}()

	// Open the file for reading
	file, err := os.Open(exportPath)
	if err != nil {
		app.serverError(w, r, fmt.Errorf("open export file: %w", err))
		return
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			app.logger.LogAttrs(ctx, slog.LevelWarn, "failed to close export file",
				slog.String("path", exportPath), slog.Any("error", closeErr))
		}
	}()

	// Set headers for file download
	filename := filepath.Base(exportPath)
	w.Header().Set("Content-Type", "application/x-sqlite3")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))

	// Stream the file to the client
	_, err = io.Copy(w, file)
	if err != nil {
		app.logger.LogAttrs(ctx, slog.LevelError, "failed to stream export file to client",
			slog.String("path", exportPath), slog.Any("error", err))
		return
	}
}
