/*
timeutil.go - Time and zone conversion utilities

PURPOSE:
  Bridges the three time representations the engine juggles:
    - local wall-clock ISO strings (anchors, user-facing boundaries)
    - zone-aware local instants (time.Time in an IANA zone)
    - canonical UTC ISO-8601 strings with seconds precision (persistence)

ZONE CACHE:
  time.LoadLocation hits the on-disk tz database, so resolved zones are
  cached behind a RWMutex. Unresolvable names fail with ErrZoneResolution;
  there is no silent UTC fallback.

WALL-CLOCK CONTRACT:
  ParseLocal interprets a string AS wall time in the given zone, honoring
  that zone's DST rules at that instant. It refuses strings that carry
  their own UTC offset: the caller's zone, not the string, is the source
  of truth.

CIVIL DATES:
  Plain calendar dates are represented as time.Time at midnight UTC so
  they compare and subtract cleanly regardless of the zone they came from.
*/
package calendar

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	// LayoutLocal is the wall-clock layout for local instants.
	LayoutLocal = "2006-01-02T15:04:05"

	// LayoutDate is the civil-date layout.
	LayoutDate = "2006-01-02"
)

// =============================================================================
// ZONE RESOLUTION
// =============================================================================

var zoneCache = struct {
	sync.RWMutex
	m map[string]*time.Location
}{m: make(map[string]*time.Location)}

// LoadZone resolves an IANA zone name, caching the result.
func LoadZone(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: empty zone name", ErrZoneResolution)
	}

	zoneCache.RLock()
	loc, ok := zoneCache.m[name]
	zoneCache.RUnlock()
	if ok {
		return loc, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrZoneResolution, name, err)
	}

	zoneCache.Lock()
	zoneCache.m[name] = loc
	zoneCache.Unlock()

	return loc, nil
}

// =============================================================================
// PARSING
// =============================================================================

// localLayouts are accepted wall-clock shapes, most specific first.
var localLayouts = []string{
	LayoutLocal,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	LayoutDate,
}

// ParseLocal parses a local ISO wall-clock string in the given zone.
// The string is interpreted as wall time in loc; no offset conversion is
// performed. Strings carrying their own offset are rejected.
func ParseLocal(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		return time.Time{}, fmt.Errorf("%w: nil location", ErrZoneResolution)
	}
	s = strings.TrimSpace(s)
	if _, err := time.Parse(time.RFC3339, s); err == nil {
		return time.Time{}, fmt.Errorf("local wall-clock string %q must not carry a UTC offset", s)
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a local wall-clock instant", s)
}

// ParseUTC parses a canonical UTC ISO-8601 string with seconds precision.
// Both "+00:00" and "Z" suffixes are accepted.
func ParseUTC(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse %q as a UTC instant: %w", s, err)
	}
	return t.UTC(), nil
}

// ParseDate normalizes an ISO date or datetime string to a civil date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(LayoutDate, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(LayoutLocal, s); err == nil {
		return DateOf(t), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOf(t), nil
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date", s)
}

// =============================================================================
// FORMATTING
// =============================================================================

// FormatUTC renders an instant as canonical UTC ISO-8601, seconds
// precision, explicit +00:00 offset.
func FormatUTC(t time.Time) string {
	return t.UTC().Format(LayoutLocal) + "+00:00"
}

// FormatDate renders a civil date.
func FormatDate(t time.Time) string {
	return t.Format(LayoutDate)
}

// FormatLocal renders a UTC instant as its wall-clock string in loc.
func FormatLocal(utc time.Time, loc *time.Location) string {
	return utc.In(loc).Format(LayoutLocal)
}

// =============================================================================
// CIVIL DATE HELPERS
// =============================================================================

// DateOf strips an instant to its calendar date (in the instant's own
// location), represented at midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// LocalDateOf returns the local calendar date of a UTC instant under loc.
func LocalDateOf(utc time.Time, loc *time.Location) time.Time {
	return DateOf(utc.In(loc))
}

// DaysBetween returns the whole days from one civil date to another.
// Negative when to precedes from.
func DaysBetween(from, to time.Time) int {
	return int(DateOf(to).Sub(DateOf(from)).Hours() / 24)
}

// MostRecentSundaySix returns the latest instant at or before now that is
// a Sunday at 06:00:00 wall time in loc.
func MostRecentSundaySix(now time.Time, loc *time.Location) time.Time {
	lt := now.In(loc)
	cand := time.Date(lt.Year(), lt.Month(), lt.Day(), 6, 0, 0, 0, loc)
	cand = cand.AddDate(0, 0, -int(cand.Weekday()))
	if cand.After(lt) {
		cand = cand.AddDate(0, 0, -7)
	}
	return cand
}

// floorDiv divides rounding toward negative infinity, so stepping an
// anchor backward by whole periods lands on the boundary at or before the
// target.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
