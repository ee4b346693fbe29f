package main

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/myrjola/runplan/internal/e2etest"
	"github.com/myrjola/runplan/internal/testhelpers"
)

func Test_application_week_completion(t *testing.T) {
	ctx := t.Context()
	server, err := e2etest.StartServer(t, testhelpers.NewWriter(t), testLookupEnv, run)
	if err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	client := server.Client()
	if _, err = client.Register(ctx); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}

	startDate := time.Now().Format(time.DateOnly)
	configurePlan(ctx, t, client, "6", "3", startDate)

	t.Run("Week page lists the training days", func(t *testing.T) {
		doc, err := client.GetDoc(ctx, "/weeks/w1")
		if err != nil {
			t.Fatalf("Failed to get week page: %v", err)
		}

		days := doc.Find("ul.day-list li")
		if days.Length() != 7 {
			t.Errorf("Expected 7 days in the week, got %d", days.Length())
		}

		runLinks := doc.Find("ul.day-list a")
		if runLinks.Length() != 3 {
			t.Errorf("Expected 3 run links for a 3-day plan, got %d", runLinks.Length())
		}
	})

	t.Run("Session page shows a workout guide", func(t *testing.T) {
		doc, err := client.GetDoc(ctx, "/weeks/w1/days/w1d2")
		if err != nil {
			t.Fatalf("Failed to get session page: %v", err)
		}

		if doc.Find("section.guide").Length() == 0 {
			t.Error("Expected session page to contain a workout guide")
		}
		if doc.Find("form button:contains('Mark complete')").Length() != 1 {
			t.Error("Expected session page to contain a completion form")
		}
	})

	t.Run("Completing a session updates week progress", func(t *testing.T) {
		doc, err := client.GetDoc(ctx, "/weeks/w1/days/w1d2")
		if err != nil {
			t.Fatalf("Failed to get session page: %v", err)
		}

		doc, err = client.SubmitForm(ctx, doc, "/weeks/w1/days/w1d2/complete", map[string]string{
			"Proof image URL": "https://example.com/run.jpg",
		})
		if err != nil {
			t.Fatalf("Failed to submit completion form: %v", err)
		}

		progress := doc.Find("p.progress").Text()
		if !strings.Contains(progress, "1/3") {
			t.Errorf("Expected week progress 1/3 after completing a session, got %q", progress)
		}
	})

	t.Run("Completing a session twice is idempotent", func(t *testing.T) {
		doc, err := client.GetDoc(ctx, "/weeks/w1/days/w1d2")
		if err != nil {
			t.Fatalf("Failed to get session page: %v", err)
		}

		doc, err = client.SubmitForm(ctx, doc, "/weeks/w1/days/w1d2/complete", nil)
		if err != nil {
			t.Fatalf("Failed to submit completion form: %v", err)
		}

		progress := doc.Find("p.progress").Text()
		if !strings.Contains(progress, "1/3") {
			t.Errorf("Expected week progress to stay at 1/3, got %q", progress)
		}
	})

	t.Run("Completing every session completes the week", func(t *testing.T) {
		for _, dayID := range []string{"w1d3", "w1d4"} {
			doc, err := client.GetDoc(ctx, "/weeks/w1/days/"+dayID)
			if err != nil {
				t.Fatalf("Failed to get session page for %s: %v", dayID, err)
			}
			if _, err = client.SubmitForm(ctx, doc, "/weeks/w1/days/"+dayID+"/complete", nil); err != nil {
				t.Fatalf("Failed to complete %s: %v", dayID, err)
			}
		}

		doc, err := client.GetDoc(ctx, "/program")
		if err != nil {
			t.Fatalf("Failed to get program page: %v", err)
		}

		firstWeek := doc.Find("ul.week-list li").First()
		if status := firstWeek.Find("span.status").Text(); status != "complete" {
			t.Errorf("Expected first week status complete, got %q", status)
		}
	})

	t.Run("Locked week can be activated", func(t *testing.T) {
		doc, err := client.GetDoc(ctx, "/weeks/w2")
		if err != nil {
			t.Fatalf("Failed to get week page: %v", err)
		}

		if doc.Find("form button:contains('Activate week')").Length() != 1 {
			t.Fatal("Expected locked week to offer activation")
		}

		doc, err = client.SubmitForm(ctx, doc, "/weeks/w2/activate", nil)
		if err != nil {
			t.Fatalf("Failed to activate week: %v", err)
		}

		if doc.Find("form button:contains('Activate week')").Length() != 0 {
			t.Error("Expected activation form to disappear after activating the week")
		}
	})

	t.Run("Unknown week returns 404", func(t *testing.T) {
		resp, err := client.Get(ctx, "/weeks/w9")
		if err != nil {
			t.Fatalf("Failed to get unknown week: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("Expected status %d for unknown week, got %d", http.StatusNotFound, resp.StatusCode)
		}
	})
}
