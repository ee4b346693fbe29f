package main

import (
	"testing"

	"github.com/myrjola/runplan/internal/e2etest"
	"github.com/myrjola/runplan/internal/testhelpers"
)

func Test_application_profile(t *testing.T) {
	ctx := t.Context()
	server, err := e2etest.StartServer(t, testhelpers.NewWriter(t), testLookupEnv, run)
	if err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	client := server.Client()
	if _, err = client.Register(ctx); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}

	t.Run("Saving physiology values", func(t *testing.T) {
		doc, err := client.GetDoc(ctx, "/profile")
		if err != nil {
			t.Fatalf("Failed to get profile page: %v", err)
		}

		doc, err = client.SubmitForm(ctx, doc, "/profile", map[string]string{
			"VO2 max":                        "52.3",
			"Maximum heart rate":             "188",
			"Aerobic threshold heart rate":   "152",
			"Anaerobic threshold heart rate": "172",
		})
		if err != nil {
			t.Fatalf("Failed to submit profile form: %v", err)
		}

		if value, _ := doc.Find("input#vo2_max").Attr("value"); value != "52.3" {
			t.Errorf("Expected VO2 max 52.3 after save, got %q", value)
		}
		if value, _ := doc.Find("input#hr_max").Attr("value"); value != "188" {
			t.Errorf("Expected maximum heart rate 188 after save, got %q", value)
		}
	})

	t.Run("Saving personal bests", func(t *testing.T) {
		doc, err := client.GetDoc(ctx, "/profile")
		if err != nil {
			t.Fatalf("Failed to get profile page: %v", err)
		}

		doc, err = client.SubmitForm(ctx, doc, "/profile", map[string]string{
			"5k before plan": "22:30",
			"5k after plan":  "21:10",
		})
		if err != nil {
			t.Fatalf("Failed to submit personal bests: %v", err)
		}

		if value, _ := doc.Find("input#pb_5k_pre").Attr("value"); value != "22:30" {
			t.Errorf("Expected 5k pre-plan time 22:30 after save, got %q", value)
		}
		if value, _ := doc.Find("input#pb_5k_post").Attr("value"); value != "21:10" {
			t.Errorf("Expected 5k post-plan time 21:10 after save, got %q", value)
		}
	})

	t.Run("Every tracked distance has a row", func(t *testing.T) {
		doc, err := client.GetDoc(ctx, "/profile")
		if err != nil {
			t.Fatalf("Failed to get profile page: %v", err)
		}

		rows := doc.Find("input[name$='_pre']")
		if rows.Length() != 4 {
			t.Errorf("Expected 4 personal best rows, got %d", rows.Length())
		}
	})
}
