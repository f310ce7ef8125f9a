/*
types.go - Core domain types for the pay calendar engine

PURPOSE:
  Defines the persistent entities the engine operates on: versioned pay
  Schedules, materialized pay Periods, and append-only period Overrides.

KEY CONCEPTS:
  Schedule: a versioned configuration for one group (tenant). Versions are
            bounded by [EffectiveFrom, EffectiveTo]; at most one open-ended
            version (EffectiveTo == nil) exists per group at any time.
  Period:   a concrete half-open time span [StartAtUTC, EndAtUTC) owned by
            one schedule. Periods tile contiguously and are never deleted.
  Override: an audit record of an admin forcing a field change on a period.

DATE CONVENTION:
  Civil dates (effective bounds, pay dates, generation windows) are carried
  as time.Time values at midnight UTC. Instants are carried as UTC
  time.Time. Wall-clock anchors are carried as local ISO strings and parsed
  in the schedule's zone on demand (see timeutil.go).

SEE ALSO:
  - service.go: operations over these types
  - store.go: persistence interface
*/
package calendar

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ScheduleID string

type PeriodID string

type OverrideID string

// =============================================================================
// PERIOD STATUS - Strictly forward state machine
// =============================================================================

// PeriodStatus is the lifecycle state of a pay period.
// Transitions are strictly forward and single-step:
// OPEN -> LOCKED -> PAYED. PAYED is terminal.
type PeriodStatus string

const (
	StatusOpen   PeriodStatus = "OPEN"
	StatusLocked PeriodStatus = "LOCKED"
	StatusPayed  PeriodStatus = "PAYED"
)

// CanAdvanceTo reports whether next is the single legal successor of s.
func (s PeriodStatus) CanAdvanceTo(next PeriodStatus) bool {
	switch {
	case s == StatusOpen && next == StatusLocked:
		return true
	case s == StatusLocked && next == StatusPayed:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the three known states.
func (s PeriodStatus) Valid() bool {
	return s == StatusOpen || s == StatusLocked || s == StatusPayed
}

// =============================================================================
// SCHEDULE
// =============================================================================

// Schedule is one version of a group's pay-period configuration.
// Created by explicit admin action, never mutated in place except to close
// its EffectiveTo when a newer version supersedes it, never deleted.
type Schedule struct {
	ID       ScheduleID
	GroupKey string
	Name     string

	// Timezone is an IANA zone name (e.g. "America/Montreal").
	Timezone string

	// PeriodLengthDays is the period length in whole days, in [7, 31].
	PeriodLengthDays int

	// PayDateOffsetDays is how many days after a period's end pay is
	// issued, in [0, 30].
	PayDateOffsetDays int

	// AnchorStartLocal is a local wall-clock ISO string that falls on a
	// Sunday at 06:00:00 in Timezone. Every period boundary of this
	// schedule is the anchor shifted by a whole multiple of
	// PeriodLengthDays.
	AnchorStartLocal string

	// EffectiveFrom / EffectiveTo bound the dates on which this version is
	// authoritative. EffectiveTo == nil means open-ended.
	EffectiveFrom time.Time
	EffectiveTo   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Covers reports whether the schedule version is authoritative for the
// given civil date.
func (s *Schedule) Covers(date time.Time) bool {
	d := DateOf(date)
	if d.Before(DateOf(s.EffectiveFrom)) {
		return false
	}
	if s.EffectiveTo != nil && d.After(DateOf(*s.EffectiveTo)) {
		return false
	}
	return true
}

// Location resolves the schedule's IANA zone.
func (s *Schedule) Location() (*time.Location, error) {
	return LoadZone(s.Timezone)
}

// Anchor parses the schedule's anchor wall-clock string in its zone.
func (s *Schedule) Anchor() (time.Time, error) {
	loc, err := s.Location()
	if err != nil {
		return time.Time{}, err
	}
	return ParseLocal(s.AnchorStartLocal, loc)
}

// =============================================================================
// PERIOD
// =============================================================================

// Period is a materialized pay period: a half-open UTC interval
// [StartAtUTC, EndAtUTC) owned by one schedule.
//
// LabelYear is the calendar year of StartAtUTC and drives the human
// display ID; it is NOT necessarily the year of PayDateLocal.
// SequenceInYear is the 1-based position among periods sharing LabelYear,
// ordered by start, and is recomputed for the whole year whenever a period
// is inserted into it.
type Period struct {
	ID         PeriodID
	ScheduleID ScheduleID

	StartAtUTC time.Time
	EndAtUTC   time.Time

	// PayDateLocal is the civil date pay is issued: the local date of
	// EndAtUTC plus the schedule's pay offset.
	PayDateLocal time.Time

	LabelYear      int
	SequenceInYear int

	// DisplayID is "{LabelYear}-{SequenceInYear:02d}", unique per schedule.
	DisplayID string

	Status      PeriodStatus
	LockedAtUTC *time.Time
	PayedAtUTC  *time.Time
}

// Contains reports whether the UTC instant falls inside the period.
// Start is inclusive, end is exclusive.
func (p *Period) Contains(ts time.Time) bool {
	ts = ts.UTC()
	return !ts.Before(p.StartAtUTC) && ts.Before(p.EndAtUTC)
}

// =============================================================================
// OVERRIDE - Append-only audit of admin field changes
// =============================================================================

// Override records an admin forcing a field change on a period.
// One row per actually-changed field; never mutated or deleted.
type Override struct {
	ID       OverrideID
	PeriodID PeriodID

	Field    string
	OldValue string
	NewValue string

	Reason    string
	Actor     string
	CreatedAt time.Time
}

// OverridableFields is the allow-list of period fields an admin override
// may change.
var OverridableFields = map[string]bool{
	"pay_date_local": true,
}
