// Package units converts and formats distances and paces between the metric
// and imperial systems.
package units

import "fmt"

// System selects the measurement system used for display.
type System string

const (
	Metric   System = "metric"
	Imperial System = "imperial"
)

// KMToMiles is the conversion factor from kilometres to miles.
const KMToMiles = 0.621371

const secondsPerMinute = 60

// ToMiles converts a distance in kilometres to miles.
func ToMiles(km float64) float64 {
	return km * KMToMiles
}

// ToKm converts a distance in miles to kilometres.
func ToKm(miles float64) float64 {
	return miles / KMToMiles
}

// FormatDistance renders a distance stored in kilometres with one decimal and
// the unit suffix of the given system, e.g. "10.0 km" or "6.2 mi".
func FormatDistance(km float64, system System) string {
	if system == Imperial {
		return fmt.Sprintf("%.1f mi", ToMiles(km))
	}
	return fmt.Sprintf("%.1f km", km)
}

// FormatPace renders a pace stored as seconds per kilometre as "M:SS /km" or
// "M:SS /mi". The total seconds are rounded before splitting into minutes so
// that a pace never renders with 60 in the seconds position.
func FormatPace(secondsPerKm float64, system System) string {
	seconds := secondsPerKm
	suffix := "/km"
	if system == Imperial {
		seconds = secondsPerKm / KMToMiles
		suffix = "/mi"
	}
	total := int(seconds + 0.5) //nolint:mnd // round half up.
	return fmt.Sprintf("%d:%02d %s", total/secondsPerMinute, total%secondsPerMinute, suffix)
}
