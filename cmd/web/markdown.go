package main

import (
	"bytes"
	"context"
	"html/template"
	"log/slog"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// renderMarkdownToHTML converts workout guide markdown into HTML for templates.
// Raw HTML in the source is escaped by goldmark.
func (app *application) renderMarkdownToHTML(ctx context.Context, source string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		app.logger.LogAttrs(ctx, slog.LevelError, "failed to render markdown", slog.Any("error", err))
		return ""
	}
	return template.HTML(buf.String()) //nolint:gosec // goldmark escapes raw HTML.
}
