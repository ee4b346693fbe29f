package main

import (
	"context"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/myrjola/runplan/internal/e2etest"
	"github.com/myrjola/runplan/internal/testhelpers"
)

// configurePlan registers the plan settings through the preferences form and
// returns the document after the redirect to the home page.
func configurePlan(
	ctx context.Context,
	t *testing.T,
	client *e2etest.Client,
	weeks, days, startDate string,
) *goquery.Document {
	t.Helper()

	doc, err := client.GetDoc(ctx, "/preferences")
	if err != nil {
		t.Fatalf("Failed to get preferences page: %v", err)
	}

	doc, err = client.SubmitForm(ctx, doc, "/preferences", map[string]string{
		"Plan length":            weeks,
		"Training days per week": days,
		"Plan start date":        startDate,
		"Preferred unit":         "metric",
	})
	if err != nil {
		t.Fatalf("Failed to submit preferences form: %v", err)
	}
	return doc
}

func Test_application_preferences(t *testing.T) {
	ctx := t.Context()
	server, err := e2etest.StartServer(t, testhelpers.NewWriter(t), testLookupEnv, run)
	if err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	client := server.Client()
	if _, err = client.Register(ctx); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}

	t.Run("Defaults are shown", func(t *testing.T) {
		doc, err := client.GetDoc(ctx, "/preferences")
		if err != nil {
			t.Fatalf("Failed to get preferences page: %v", err)
		}

		selected := doc.Find("select#duration_weeks option[selected]")
		if value, _ := selected.Attr("value"); value != "12" {
			t.Errorf("Expected default plan length 12, got %q", value)
		}
		selected = doc.Find("select#days_per_week option[selected]")
		if value, _ := selected.Attr("value"); value != "4" {
			t.Errorf("Expected default training days 4, got %q", value)
		}
	})

	t.Run("Saving the plan generates a program", func(t *testing.T) {
		startDate := time.Now().AddDate(0, 0, -7).Format(time.DateOnly)
		configurePlan(ctx, t, client, "8", "3", startDate)

		doc, err := client.GetDoc(ctx, "/program")
		if err != nil {
			t.Fatalf("Failed to get program page: %v", err)
		}

		weekLinks := doc.Find("ul.week-list a")
		if weekLinks.Length() != 8 {
			t.Errorf("Expected 8 week links, got %d", weekLinks.Length())
		}
	})

	t.Run("Dashboard shows the current week", func(t *testing.T) {
		doc, err := client.GetDoc(ctx, "/")
		if err != nil {
			t.Fatalf("Failed to get home page: %v", err)
		}

		heading := doc.Find("h1").First().Text()
		if !containsWeekHeading(heading) {
			t.Errorf("Expected home page to show a training week, got heading %q", heading)
		}
	})

	t.Run("Changed plan length regenerates the program", func(t *testing.T) {
		startDate := time.Now().AddDate(0, 0, -7).Format(time.DateOnly)
		configurePlan(ctx, t, client, "6", "3", startDate)

		doc, err := client.GetDoc(ctx, "/program")
		if err != nil {
			t.Fatalf("Failed to get program page: %v", err)
		}

		weekLinks := doc.Find("ul.week-list a")
		if weekLinks.Length() != 6 {
			t.Errorf("Expected 6 week links after regeneration, got %d", weekLinks.Length())
		}
	})
}

func containsWeekHeading(heading string) bool {
	return len(heading) > 4 && heading[:4] == "Week"
}
