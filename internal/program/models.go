package program

import (
	"fmt"
	"time"

	"github.com/myrjola/runplan/internal/units"
)

// Phase is the training phase a week belongs to.
type Phase string

const (
	PhaseBase  Phase = "base"
	PhaseBuild Phase = "build"
	PhasePeak  Phase = "peak"
)

// DayStatus tracks the completion state of a single day.
type DayStatus string

const (
	DayPending  DayStatus = "pending"
	DayComplete DayStatus = "complete"
)

// WeekStatus tracks the state of a week within the plan.
type WeekStatus string

const (
	WeekLocked   WeekStatus = "locked"
	WeekActive   WeekStatus = "active"
	WeekComplete WeekStatus = "complete"
)

// Kind distinguishes running days from rest days.
type Kind string

const (
	KindRun  Kind = "run"
	KindRest Kind = "rest"
)

const daysInWeek = 7

// Day is a single calendar day in the plan. DayNumber is 1-based with
// 1 meaning Monday.
type Day struct {
	ID              string
	WeekNumber      int
	DayNumber       int
	Date            time.Time
	Kind            Kind
	Title           string
	DurationMinutes int
	Status          DayStatus
	ProofImage      string
}

// Week is one training week. Days always holds seven entries.
type Week struct {
	ID     string
	Number int
	Phase  Phase
	Status WeekStatus
	Days   []Day
}

// CompletedRuns counts running days that have been marked complete.
func (w Week) CompletedRuns() int {
	count := 0
	for _, day := range w.Days {
		if day.Kind == KindRun && day.Status == DayComplete {
			count++
		}
	}
	return count
}

// TotalRuns counts the running days of the week.
func (w Week) TotalRuns() int {
	count := 0
	for _, day := range w.Days {
		if day.Kind == KindRun {
			count++
		}
	}
	return count
}

// Program is a generated multi-week running plan.
type Program struct {
	StartDate     time.Time
	DurationWeeks int
	DaysPerWeek   int
	Weeks         []Week
}

// WeekFor returns the week whose date range contains the given date. Dates
// before the plan map to the first week and dates after it to the last.
func (p Program) WeekFor(date time.Time) (Week, bool) {
	if len(p.Weeks) == 0 {
		return Week{}, false
	}
	if date.Before(p.StartDate) {
		return p.Weeks[0], true
	}
	for _, week := range p.Weeks {
		last := week.Days[len(week.Days)-1].Date
		if !date.After(last) {
			return week, true
		}
	}
	return p.Weeks[len(p.Weeks)-1], true
}

// Profile holds the runner's physiology and plan configuration. The plan
// parameters here are the single source the generator reads from.
type Profile struct {
	VO2Max        float64
	HRMax         int
	LT1HR         int
	LT2HR         int
	PreferredUnit units.System
	DurationWeeks int
	DaysPerWeek   int
	StartDate     time.Time
}

// ProfileUpdate carries a partial profile change. Nil fields keep their
// current value.
type ProfileUpdate struct {
	VO2Max        *float64
	HRMax         *int
	LT1HR         *int
	LT2HR         *int
	PreferredUnit *units.System
	DurationWeeks *int
	DaysPerWeek   *int
	StartDate     *time.Time
}

// PersonalBest is a race time per distance, recorded before and after the
// plan. Times are free-form strings like "22:30" or "1:45:00".
type PersonalBest struct {
	Distance string
	PreTime  string
	PostTime string
}

// Distances lists the race distances tracked on the profile page.
var Distances = []string{"5k", "10k", "half-marathon", "marathon"}

func weekID(week int) string {
	return fmt.Sprintf("w%d", week)
}

func dayID(week, day int) string {
	return fmt.Sprintf("w%dd%d", week, day)
}

// parseWeekID parses identifiers of the form "w3".
func parseWeekID(id string) (int, bool) {
	var week int
	if _, err := fmt.Sscanf(id, "w%d", &week); err != nil || weekID(week) != id {
		return 0, false
	}
	if week < 1 {
		return 0, false
	}
	return week, true
}

// parseDayID parses identifiers of the form "w3d5" into week and day numbers.
func parseDayID(id string) (int, int, bool) {
	var week, day int
	if _, err := fmt.Sscanf(id, "w%dd%d", &week, &day); err != nil || dayID(week, day) != id {
		return 0, 0, false
	}
	if week < 1 || day < 1 || day > daysInWeek {
		return 0, 0, false
	}
	return week, day, true
}
