package main

import (
	"log/slog"
	"net/http"

	"github.com/myrjola/runplan/internal/errors"
	"github.com/myrjola/runplan/internal/program"
)

func (app *application) serverError(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.LogAttrs(r.Context(), slog.LevelError, "server error", slog.Any("error", err))
	app.render(w, r, http.StatusInternalServerError, "error", newBaseTemplateData(r))
}

func (app *application) notFound(w http.ResponseWriter, r *http.Request) {
	app.render(w, r, http.StatusNotFound, "not-found", newBaseTemplateData(r))
}

// handleServiceError renders a 404 for missing resources and a 500 for
// everything else.
func (app *application) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, program.ErrNotFound) {
		app.notFound(w, r)
		return
	}
	app.serverError(w, r, err)
}

// redirect detects if the request is originating from a fetch API call or a top-level navigation and points the user
// to the correct URL.
func redirect(w http.ResponseWriter, r *http.Request, path string) {
	if r.Header.Get("Sec-Fetch-Dest") == "empty" {
		w.Header().Set("Content-Location", path)
		w.WriteHeader(http.StatusOK)
		return
	}

	http.Redirect(w, r, path, http.StatusSeeOther)
}
