package program

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/myrjola/runplan/internal/contexthelpers"
	"github.com/myrjola/runplan/internal/errors"
	"github.com/myrjola/runplan/internal/sqlite"
)

// Service handles the business logic for training plans.
type Service struct {
	repo         *repository
	db           *sqlite.Database
	logger       *slog.Logger
	openaiAPIKey string
}

// NewService creates a new program service.
func NewService(db *sqlite.Database, logger *slog.Logger, openaiAPIKey string) *Service {
	factory := newRepositoryFactory(db, logger)
	return &Service{
		repo:         factory.newRepository(),
		db:           db,
		logger:       logger,
		openaiAPIKey: openaiAPIKey,
	}
}

// Profile retrieves the profile for the authenticated user.
func (s *Service) Profile(ctx context.Context) (Profile, error) {
	profile, err := s.repo.profiles.Get(ctx)
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

// UpdateProfile merges the partial update into the stored profile. When a
// plan parameter changes, the program is regenerated and swapped in the same
// transaction, discarding all completion state. Invalid plan parameters are
// rejected before anything is written.
func (s *Service) UpdateProfile(ctx context.Context, update ProfileUpdate) error {
	current, err := s.repo.profiles.Get(ctx)
	if err != nil {
		return fmt.Errorf("get profile: %w", err)
	}
	merged := mergeProfile(current, update)

	if err = validateConfig(merged.DurationWeeks, merged.DaysPerWeek); err != nil {
		return err
	}

	// Without a start date there is nothing to generate yet.
	if merged.StartDate.IsZero() {
		if err = s.repo.profiles.Set(ctx, merged); err != nil {
			return fmt.Errorf("save profile: %w", err)
		}
		return nil
	}

	planChanged := merged.DurationWeeks != current.DurationWeeks ||
		merged.DaysPerWeek != current.DaysPerWeek ||
		!merged.StartDate.Equal(current.StartDate)

	if !planChanged {
		if _, err = s.repo.programs.Get(ctx); err == nil {
			if err = s.repo.profiles.Set(ctx, merged); err != nil {
				return fmt.Errorf("save profile: %w", err)
			}
			return nil
		} else if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("get program: %w", err)
		}
	}

	prog, err := Generate(merged.DurationWeeks, merged.DaysPerWeek, merged.StartDate)
	if err != nil {
		return fmt.Errorf("generate program: %w", err)
	}
	if err = s.repo.profiles.SetWithProgram(ctx, merged, prog); err != nil {
		return fmt.Errorf("save profile with program: %w", err)
	}
	return nil
}

func mergeProfile(current Profile, update ProfileUpdate) Profile {
	merged := current
	if update.VO2Max != nil {
		merged.VO2Max = *update.VO2Max
	}
	if update.HRMax != nil {
		merged.HRMax = *update.HRMax
	}
	if update.LT1HR != nil {
		merged.LT1HR = *update.LT1HR
	}
	if update.LT2HR != nil {
		merged.LT2HR = *update.LT2HR
	}
	if update.PreferredUnit != nil {
		merged.PreferredUnit = *update.PreferredUnit
	}
	if update.DurationWeeks != nil {
		merged.DurationWeeks = *update.DurationWeeks
	}
	if update.DaysPerWeek != nil {
		merged.DaysPerWeek = *update.DaysPerWeek
	}
	if update.StartDate != nil {
		merged.StartDate = *update.StartDate
	}
	return merged
}

// PersonalBests retrieves the recorded race times.
func (s *Service) PersonalBests(ctx context.Context) ([]PersonalBest, error) {
	bests, err := s.repo.profiles.PersonalBests(ctx)
	if err != nil {
		return nil, fmt.Errorf("get personal bests: %w", err)
	}
	return bests, nil
}

// UpdatePersonalBests replaces the recorded race times.
func (s *Service) UpdatePersonalBests(ctx context.Context, bests []PersonalBest) error {
	if err := s.repo.profiles.SetPersonalBests(ctx, bests); err != nil {
		return fmt.Errorf("save personal bests: %w", err)
	}
	return nil
}

// Program retrieves the full program for the authenticated user.
func (s *Service) Program(ctx context.Context) (Program, error) {
	prog, err := s.repo.programs.Get(ctx)
	if err != nil {
		return Program{}, fmt.Errorf("get program: %w", err)
	}
	return prog, nil
}

// CurrentWeek picks the week to show on the dashboard based on today's date.
// The pick never mutates week statuses.
func (s *Service) CurrentWeek(ctx context.Context) (Week, error) {
	prog, err := s.repo.programs.Get(ctx)
	if err != nil {
		return Week{}, fmt.Errorf("get program: %w", err)
	}
	week, ok := prog.WeekFor(time.Now())
	if !ok {
		return Week{}, ErrNotFound
	}
	return week, nil
}

// Week retrieves a single week by its identity, e.g. "w3".
func (s *Service) Week(ctx context.Context, weekIDStr string) (Week, error) {
	weekNumber, ok := parseWeekID(weekIDStr)
	if !ok {
		return Week{}, errors.Wrap(ErrNotFound, "invalid week id", slog.String("week_id", weekIDStr))
	}
	week, err := s.repo.programs.GetWeek(ctx, weekNumber)
	if err != nil {
		return Week{}, fmt.Errorf("get week %s: %w", weekIDStr, err)
	}
	return week, nil
}

// Day retrieves a single day by its identity, e.g. "w3d5". The day must
// belong to the given week.
func (s *Service) Day(ctx context.Context, weekIDStr, dayIDStr string) (Day, error) {
	weekNumber, dayNumber, err := resolveDayID(weekIDStr, dayIDStr)
	if err != nil {
		return Day{}, err
	}
	day, err := s.repo.programs.GetDay(ctx, weekNumber, dayNumber)
	if err != nil {
		return Day{}, fmt.Errorf("get day %s: %w", dayIDStr, err)
	}
	return day, nil
}

// MarkSessionComplete transitions a day to complete and rolls the owning week
// up when all of its days are complete. A non-empty proofImage is attached to
// the day. Completing an already complete day is a no-op apart from the proof
// image.
func (s *Service) MarkSessionComplete(ctx context.Context, weekIDStr, dayIDStr, proofImage string) error {
	weekNumber, dayNumber, err := resolveDayID(weekIDStr, dayIDStr)
	if err != nil {
		return err
	}
	if err = s.repo.programs.CompleteDay(ctx, weekNumber, dayNumber, proofImage); err != nil {
		return fmt.Errorf("complete day %s: %w", dayIDStr, err)
	}
	return nil
}

// ActivateWeek transitions a locked week to active. Weeks never activate on
// their own.
func (s *Service) ActivateWeek(ctx context.Context, weekIDStr string) error {
	weekNumber, ok := parseWeekID(weekIDStr)
	if !ok {
		return errors.Wrap(ErrNotFound, "invalid week id", slog.String("week_id", weekIDStr))
	}
	if err := s.repo.programs.ActivateWeek(ctx, weekNumber); err != nil {
		return fmt.Errorf("activate week %s: %w", weekIDStr, err)
	}
	return nil
}

func resolveDayID(weekIDStr, dayIDStr string) (int, int, error) {
	weekNumber, ok := parseWeekID(weekIDStr)
	if !ok {
		return 0, 0, errors.Wrap(ErrNotFound, "invalid week id", slog.String("week_id", weekIDStr))
	}
	dayWeekNumber, dayNumber, ok := parseDayID(dayIDStr)
	if !ok || dayWeekNumber != weekNumber {
		return 0, 0, errors.Wrap(ErrNotFound, "invalid day id",
			slog.String("week_id", weekIDStr), slog.String("day_id", dayIDStr))
	}
	return weekNumber, dayNumber, nil
}

// Guide returns the markdown coaching guide for a workout title, generating
// and caching it on first use.
func (s *Service) Guide(ctx context.Context, title string, durationMinutes int) (string, error) {
	markdown, err := s.repo.guides.Get(ctx, title)
	if err == nil {
		return markdown, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("get workout guide: %w", err)
	}

	// The static fallback is not cached so that a later configured API key
	// can still upgrade the guide.
	if s.openaiAPIKey == "" {
		return staticGuide(title), nil
	}

	generator := newGuideGenerator(s.openaiAPIKey)
	markdown, err = generator.Generate(ctx, title, durationMinutes)
	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "failed to generate workout guide",
			slog.Any("error", err), slog.String("title", title))
		return staticGuide(title), nil
	}

	if err = s.repo.guides.Set(ctx, title, markdown); err != nil {
		return "", fmt.Errorf("cache workout guide: %w", err)
	}
	return markdown, nil
}

// ExportData exports all data of the authenticated user into a SQLite
// database file under basePath and returns its path.
func (s *Service) ExportData(ctx context.Context, basePath string) (string, error) {
	userID := contexthelpers.AuthenticatedUserID(ctx)
	path, err := s.db.ExportUserDB(ctx, userID, basePath)
	if err != nil {
		return "", fmt.Errorf("export user db: %w", err)
	}
	return path, nil
}
