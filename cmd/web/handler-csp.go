package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// CSPViolationReport is the report-uri payload a browser posts when the
// Content-Security-Policy blocks something.
type CSPViolationReport struct {
	CSPReport struct {
		DocumentURI        string `json:"document-uri"`
		Referrer           string `json:"referrer"`
		ViolatedDirective  string `json:"violated-directive"`
		EffectiveDirective string `json:"effective-directive"`
		OriginalPolicy     string `json:"original-policy"`
		Disposition        string `json:"disposition"`
		BlockedURI         string `json:"blocked-uri"`
		LineNumber         int    `json:"line-number"`
		ColumnNumber       int    `json:"column-number"`
		SourceFile         string `json:"source-file"`
		StatusCode         int    `json:"status-code"`
		ScriptSample       string `json:"script-sample"`
	} `json:"csp-report"`
}

// cspViolation receives CSP violation reports and logs them.
func (app *application) cspViolation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Browsers send application/csp-report, some send application/json.
	contentType := r.Header.Get("Content-Type")
	if contentType != "" && contentType != "application/csp-report" && contentType != "application/json" {
		app.logger.LogAttrs(r.Context(), slog.LevelWarn, "CSP violation report with unexpected content type",
			slog.String("content_type", contentType))
	}

	// Reports are small, cap the body so a hostile client cannot balloon memory.
	const maxBodySize = 64 * 1024
	limitedReader := io.LimitReader(r.Body, maxBodySize)

	body, err := io.ReadAll(limitedReader)
	if err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelError, "Failed to read CSP violation request body",
			slog.String("error", err.Error()))
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var report CSPViolationReport
	err = json.Unmarshal(body, &report)
	if err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelError, "Failed to parse CSP violation report",
			slog.String("error", err.Error()),
			slog.String("body", string(body)))
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	app.logger.LogAttrs(r.Context(), slog.LevelWarn, "CSP violation detected",
		slog.String("document_uri", report.CSPReport.DocumentURI),
		slog.String("violated_directive", report.CSPReport.ViolatedDirective),
		slog.String("effective_directive", report.CSPReport.EffectiveDirective),
		slog.String("blocked_uri", report.CSPReport.BlockedURI),
		slog.String("source_file", report.CSPReport.SourceFile),
		slog.Int("line_number", report.CSPReport.LineNumber),
		slog.Int("column_number", report.CSPReport.ColumnNumber),
		slog.String("script_sample", report.CSPReport.ScriptSample),
		slog.String("disposition", report.CSPReport.Disposition),
		slog.String("user_agent", r.Header.Get("User-Agent")),
		slog.String("referrer", report.CSPReport.Referrer))

	// The reporting endpoint spec wants 204 No Content.
	w.WriteHeader(http.StatusNoContent)
}
