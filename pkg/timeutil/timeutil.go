// Package timeutil provides pure timezone conversion helpers shared by
// the scanner, ingestor, and aggregation engine. Three zones matter:
// the source site's zone (encoded in filenames and the remote directory
// layout), the remote filesystem clock (UTC instants from SFTP mtimes),
// and the display zone used by the dashboard.
package timeutil

import (
	"fmt"
	"time"
)

// Zones holds the resolved source-site and display locations. Invalid
// zone identifiers are a startup failure; after construction all
// conversions are pure and infallible.
type Zones struct {
	Source  *time.Location
	Display *time.Location
}

// LoadZones resolves the configured zone identifiers.
func LoadZones(sourceID, displayID string) (*Zones, error) {
	source, err := time.LoadLocation(sourceID)
	if err != nil {
		return nil, fmt.Errorf("loading source timezone %q: %w", sourceID, err)
	}

	display, err := time.LoadLocation(displayID)
	if err != nil {
		return nil, fmt.Errorf("loading display timezone %q: %w", displayID, err)
	}

	return &Zones{Source: source, Display: display}, nil
}

// ToAbsolute reinterprets the wall-clock fields of t in loc and returns
// the corresponding absolute instant in UTC.
func ToAbsolute(t time.Time, loc *time.Location) time.Time {
	return time.Date(
		t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(),
		loc,
	).UTC()
}

// ToZoneLocal converts an absolute instant to the wall-clock reading a
// human in loc would see. Inverse of ToAbsolute for any instant,
// including across DST transitions.
func ToZoneLocal(instant time.Time, loc *time.Location) time.Time {
	return instant.In(loc)
}

// SourceDate returns the calendar date of now as observed at the source
// site, truncated to midnight in the source zone.
func (z *Zones) SourceDate(now time.Time) time.Time {
	local := now.In(z.Source)

	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, z.Source)
}

// DayWindow returns the absolute [from, to) window covering one display
// zone calendar day. time.Date normalizes through DST transitions, so a
// 23- or 25-hour day yields the correct window without double-counting
// or gaps.
func (z *Zones) DayWindow(year int, month time.Month, day int) (time.Time, time.Time) {
	from := time.Date(year, month, day, 0, 0, 0, 0, z.Display)
	to := time.Date(year, month, day+1, 0, 0, 0, 0, z.Display)

	return from.UTC(), to.UTC()
}

// HourLabel formats an instant as its display-zone hour bucket key.
func (z *Zones) HourLabel(instant time.Time) string {
	return instant.In(z.Display).Format("2006-01-02 15:00")
}
