package program_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/myrjola/runplan/internal/contexthelpers"
	"github.com/myrjola/runplan/internal/program"
	"github.com/myrjola/runplan/internal/ptr"
	"github.com/myrjola/runplan/internal/sqlite"
	"github.com/myrjola/runplan/internal/units"
)

// newTestService spins up an in-memory database with one authenticated user.
func newTestService(t *testing.T) (context.Context, *program.Service) {
	t.Helper()

	ctx := t.Context()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		AddSource:   false,
		ReplaceAttr: nil,
	}))

	db, err := sqlite.NewDatabase(ctx, ":memory:", logger)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Errorf("Failed to close test database: %v", closeErr)
		}
	})

	result, err := db.ReadWrite.ExecContext(ctx,
		"INSERT INTO users (webauthn_id, display_name) VALUES (?, ?)",
		[]byte("test-user-handle"), "Test Runner")
	if err != nil {
		t.Fatalf("Failed to insert test user: %v", err)
	}
	userID, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("Failed to get test user ID: %v", err)
	}

	ctx = context.WithValue(ctx, contexthelpers.AuthenticatedUserIDContextKey, int(userID))
	ctx = context.WithValue(ctx, contexthelpers.IsAuthenticatedContextKey, true)

	return ctx, program.NewService(db, logger, "")
}

func configurePlan(ctx context.Context, t *testing.T, svc *program.Service, weeks, days int) {
	t.Helper()

	startDate, err := time.Parse("2006-01-02", "2026-01-05")
	if err != nil {
		t.Fatalf("Failed to parse start date: %v", err)
	}
	err = svc.UpdateProfile(ctx, program.ProfileUpdate{ //nolint:exhaustruct // partial update.
		DurationWeeks: ptr.Ref(weeks),
		DaysPerWeek:   ptr.Ref(days),
		StartDate:     ptr.Ref(startDate),
	})
	if err != nil {
		t.Fatalf("Failed to configure plan: %v", err)
	}
}

func Test_UpdateProfile_GeneratesProgram(t *testing.T) {
	ctx, svc := newTestService(t)

	// No program before the plan is configured.
	if _, err := svc.Program(ctx); !errors.Is(err, program.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound before configuration, got %v", err)
	}

	configurePlan(ctx, t, svc, 12, 4)

	prog, err := svc.Program(ctx)
	if err != nil {
		t.Fatalf("Failed to get program: %v", err)
	}
	if got, want := len(prog.Weeks), 12; got != want {
		t.Errorf("Expected %d weeks, got %d", want, got)
	}
	if got, want := prog.Weeks[0].Status, program.WeekActive; got != want {
		t.Errorf("Expected first week %s, got %s", want, got)
	}
	if got, want := prog.Weeks[1].Status, program.WeekLocked; got != want {
		t.Errorf("Expected second week %s, got %s", want, got)
	}

	week, err := svc.Week(ctx, "w5")
	if err != nil {
		t.Fatalf("Failed to get week: %v", err)
	}
	if got, want := week.Phase, program.PhaseBuild; got != want {
		t.Errorf("Expected week 5 phase %s, got %s", want, got)
	}

	day, err := svc.Day(ctx, "w1", "w1d2")
	if err != nil {
		t.Fatalf("Failed to get day: %v", err)
	}
	if day.Kind != program.KindRun {
		t.Errorf("Expected w1d2 to be a run, got %s", day.Kind)
	}
}

func Test_UpdateProfile_InvalidConfigRejected(t *testing.T) {
	ctx, svc := newTestService(t)
	configurePlan(ctx, t, svc, 6, 3)

	err := svc.UpdateProfile(ctx, program.ProfileUpdate{ //nolint:exhaustruct // partial update.
		DaysPerWeek: ptr.Ref(8),
	})
	if !errors.Is(err, program.ErrInvalidConfig) {
		t.Fatalf("Expected ErrInvalidConfig, got %v", err)
	}

	// Nothing was written.
	profile, err := svc.Profile(ctx)
	if err != nil {
		t.Fatalf("Failed to get profile: %v", err)
	}
	if profile.DaysPerWeek != 3 {
		t.Errorf("Expected days per week to stay 3, got %d", profile.DaysPerWeek)
	}
}

func Test_UpdateProfile_PartialMergePreservesProgress(t *testing.T) {
	ctx, svc := newTestService(t)
	configurePlan(ctx, t, svc, 6, 3)

	if err := svc.MarkSessionComplete(ctx, "w1", "w1d2", ""); err != nil {
		t.Fatalf("Failed to complete day: %v", err)
	}

	// Physiology-only update must not regenerate the program.
	err := svc.UpdateProfile(ctx, program.ProfileUpdate{ //nolint:exhaustruct // partial update.
		VO2Max:        ptr.Ref(52.5),
		PreferredUnit: ptr.Ref(units.Imperial),
	})
	if err != nil {
		t.Fatalf("Failed to update profile: %v", err)
	}

	profile, err := svc.Profile(ctx)
	if err != nil {
		t.Fatalf("Failed to get profile: %v", err)
	}
	if profile.VO2Max != 52.5 {
		t.Errorf("Expected VO2Max 52.5, got %v", profile.VO2Max)
	}
	if profile.PreferredUnit != units.Imperial {
		t.Errorf("Expected imperial unit, got %s", profile.PreferredUnit)
	}
	if profile.DurationWeeks != 6 || profile.DaysPerWeek != 3 {
		t.Errorf("Expected plan parameters to be preserved, got %d weeks and %d days",
			profile.DurationWeeks, profile.DaysPerWeek)
	}

	day, err := svc.Day(ctx, "w1", "w1d2")
	if err != nil {
		t.Fatalf("Failed to get day: %v", err)
	}
	if day.Status != program.DayComplete {
		t.Errorf("Expected completion to survive the update, got %s", day.Status)
	}
}

func Test_UpdateProfile_RegenerationDiscardsProgress(t *testing.T) {
	ctx, svc := newTestService(t)
	configurePlan(ctx, t, svc, 6, 3)

	if err := svc.MarkSessionComplete(ctx, "w1", "w1d2", "file:///proof.jpg"); err != nil {
		t.Fatalf("Failed to complete day: %v", err)
	}

	// Changing a plan parameter regenerates from scratch.
	err := svc.UpdateProfile(ctx, program.ProfileUpdate{ //nolint:exhaustruct // partial update.
		DurationWeeks: ptr.Ref(4),
	})
	if err != nil {
		t.Fatalf("Failed to update profile: %v", err)
	}

	prog, err := svc.Program(ctx)
	if err != nil {
		t.Fatalf("Failed to get program: %v", err)
	}
	if got, want := len(prog.Weeks), 4; got != want {
		t.Fatalf("Expected %d weeks, got %d", want, got)
	}

	day, err := svc.Day(ctx, "w1", "w1d2")
	if err != nil {
		t.Fatalf("Failed to get day: %v", err)
	}
	if day.Status != program.DayPending {
		t.Errorf("Expected completion to be discarded, got %s", day.Status)
	}
	if day.ProofImage != "" {
		t.Errorf("Expected proof image to be discarded, got %q", day.ProofImage)
	}

	// References into the old program are gone.
	if _, err = svc.Week(ctx, "w6"); !errors.Is(err, program.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for stale week, got %v", err)
	}
}

func Test_MarkSessionComplete_RollsUpWeek(t *testing.T) {
	ctx, svc := newTestService(t)
	configurePlan(ctx, t, svc, 6, 3)

	// With three training days the runs land on Tuesday through Thursday.
	for _, id := range []string{"w1d2", "w1d3", "w1d4"} {
		if err := svc.MarkSessionComplete(ctx, "w1", id, ""); err != nil {
			t.Fatalf("Failed to complete day %s: %v", id, err)
		}
	}

	week, err := svc.Week(ctx, "w1")
	if err != nil {
		t.Fatalf("Failed to get week: %v", err)
	}
	if week.Status != program.WeekComplete {
		t.Errorf("Expected week to roll up to complete, got %s", week.Status)
	}

	// Other weeks are untouched.
	other, err := svc.Week(ctx, "w2")
	if err != nil {
		t.Fatalf("Failed to get week 2: %v", err)
	}
	if other.Status != program.WeekLocked {
		t.Errorf("Expected week 2 to stay locked, got %s", other.Status)
	}
}

func Test_MarkSessionComplete_Idempotent(t *testing.T) {
	ctx, svc := newTestService(t)
	configurePlan(ctx, t, svc, 6, 3)

	if err := svc.MarkSessionComplete(ctx, "w1", "w1d2", "file:///first.jpg"); err != nil {
		t.Fatalf("Failed to complete day: %v", err)
	}
	if err := svc.MarkSessionComplete(ctx, "w1", "w1d2", "file:///second.jpg"); err != nil {
		t.Fatalf("Failed to repeat completion: %v", err)
	}

	day, err := svc.Day(ctx, "w1", "w1d2")
	if err != nil {
		t.Fatalf("Failed to get day: %v", err)
	}
	if day.Status != program.DayComplete {
		t.Errorf("Expected day to stay complete, got %s", day.Status)
	}
	if day.ProofImage != "file:///second.jpg" {
		t.Errorf("Expected proof image to be overwritten, got %q", day.ProofImage)
	}
}

func Test_MarkSessionComplete_NotFound(t *testing.T) {
	ctx, svc := newTestService(t)
	configurePlan(ctx, t, svc, 6, 3)

	tests := []struct {
		name   string
		weekID string
		dayID  string
	}{
		{
			name:   "week beyond plan",
			weekID: "w9",
			dayID:  "w9d2",
		},
		{
			name:   "malformed day id",
			weekID: "w1",
			dayID:  "day-two",
		},
		{
			name:   "day in wrong week",
			weekID: "w1",
			dayID:  "w2d2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.MarkSessionComplete(ctx, tt.weekID, tt.dayID, "")
			if !errors.Is(err, program.ErrNotFound) {
				t.Errorf("Expected ErrNotFound, got %v", err)
			}
		})
	}

	// The failed completions never touched the stored program.
	week, err := svc.Week(ctx, "w1")
	if err != nil {
		t.Fatalf("Failed to get week: %v", err)
	}
	for _, day := range week.Days {
		if day.Kind == program.KindRun && day.Status != program.DayPending {
			t.Errorf("Expected day %s to stay pending, got %s", day.ID, day.Status)
		}
	}
}

func Test_ActivateWeek(t *testing.T) {
	ctx, svc := newTestService(t)
	configurePlan(ctx, t, svc, 6, 3)

	if err := svc.ActivateWeek(ctx, "w2"); err != nil {
		t.Fatalf("Failed to activate week: %v", err)
	}

	week, err := svc.Week(ctx, "w2")
	if err != nil {
		t.Fatalf("Failed to get week: %v", err)
	}
	if week.Status != program.WeekActive {
		t.Errorf("Expected week to be active, got %s", week.Status)
	}

	// Activating a non-locked week reports not found.
	if err = svc.ActivateWeek(ctx, "w2"); !errors.Is(err, program.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on repeated activation, got %v", err)
	}
}

func Test_Guide_StaticFallback(t *testing.T) {
	ctx, svc := newTestService(t)

	// No OpenAI API key configured, so the static guide backs the page.
	guide, err := svc.Guide(ctx, "Tempo Run", 30)
	if err != nil {
		t.Fatalf("Failed to get guide: %v", err)
	}
	if guide == "" {
		t.Error("Expected a non-empty guide")
	}
}

func Test_PersonalBests(t *testing.T) {
	ctx, svc := newTestService(t)

	bests := []program.PersonalBest{
		{Distance: "5k", PreTime: "24:30", PostTime: ""},
		{Distance: "10k", PreTime: "51:00", PostTime: "49:45"},
	}
	if err := svc.UpdatePersonalBests(ctx, bests); err != nil {
		t.Fatalf("Failed to save personal bests: %v", err)
	}

	got, err := svc.PersonalBests(ctx)
	if err != nil {
		t.Fatalf("Failed to get personal bests: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 personal bests, got %d", len(got))
	}
	if got[1].PostTime != "49:45" {
		t.Errorf("Expected post time 49:45, got %q", got[1].PostTime)
	}
}

func Test_ExportData(t *testing.T) {
	ctx, svc := newTestService(t)
	configurePlan(ctx, t, svc, 6, 3)

	path, err := svc.ExportData(ctx, t.TempDir())
	if err != nil {
		t.Fatalf("Failed to export user data: %v", err)
	}
	if _, err = os.Stat(path); err != nil {
		t.Errorf("Expected export file to exist: %v", err)
	}
}
