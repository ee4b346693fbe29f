package main

import (
	"net/http"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/myrjola/runplan/internal/e2etest"
	"github.com/myrjola/runplan/internal/testhelpers"
)

func Test_application_notFound(t *testing.T) {
	ctx := t.Context()
	server, err := e2etest.StartServer(t, testhelpers.NewWriter(t), testLookupEnv, run)
	if err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	client := server.Client()

	// Register a user first (required for mustSession routes)
	if _, err = client.Register(ctx); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}

	tests := []struct {
		name string
		path string
	}{
		{name: "Malformed week ID", path: "/weeks/not-a-week"},
		{name: "Day outside its week", path: "/weeks/w1/days/w2d3"},
		{name: "Malformed day ID", path: "/weeks/w1/days/banana"},
		{name: "Nonexistent path", path: "/nonexistent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.Get(ctx, tt.path)
			if err != nil {
				t.Fatalf("Failed to get %s: %v", tt.path, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusNotFound {
				t.Errorf("Expected status code %d for %s, got %d", http.StatusNotFound, tt.path, resp.StatusCode)
			}

			doc, err := goquery.NewDocumentFromReader(resp.Body)
			if err != nil {
				t.Fatalf("Failed to parse 404 document for %s: %v", tt.path, err)
			}

			checkCustom404Content(t, doc, tt.path)
		})
	}
}

// checkCustom404Content asserts the custom 404 page layout.
func checkCustom404Content(t *testing.T, doc *goquery.Document, context string) {
	t.Helper()

	title := doc.Find("h1").Text()
	if !strings.Contains(title, "404") {
		t.Errorf("Expected custom 404 page title for %s to contain '404', got: %s", context, title)
	}

	subtitle := doc.Find("h2").Text()
	if !strings.Contains(subtitle, "Page Not Found") {
		t.Errorf("Expected custom 404 page for %s to contain 'Page Not Found', got: %s", context, subtitle)
	}

	homeLinks := doc.Find("section.error-page a[href='/']")
	if homeLinks.Length() == 0 {
		t.Errorf("Expected custom 404 page for %s to contain home link", context)
	} else {
		homeText := homeLinks.First().Text()
		if !strings.Contains(homeText, "Go Home") {
			t.Errorf("Expected home link for %s to say 'Go Home', got: %s", context, homeText)
		}
	}

	backButtons := doc.Find("button:contains('Go Back')")
	if backButtons.Length() == 0 {
		t.Errorf("Expected custom 404 page for %s to contain 'Go Back' button", context)
	}
}
