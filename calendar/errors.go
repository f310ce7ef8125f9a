/*
errors.go - Centralized error types for the pay calendar engine

PURPOSE:
  All engine errors in one place. Callers classify with errors.Is/As and
  the helpers at the bottom; the HTTP layer maps them to statuses.

ERROR CATEGORIES:
  1. Configuration errors - invalid schedule parameters, no active schedule
  2. State errors         - illegal status transitions, missing rows
  3. Validation errors    - override reason/field rules
  4. Internal errors      - boundary-math defects that should never occur

USAGE:
    if errors.Is(err, calendar.ErrNoActiveSchedule) { ... }

    var terr *calendar.TransitionError
    if errors.As(err, &terr) { ... }
*/
package calendar

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrZoneResolution is returned when an IANA zone name cannot be
	// resolved. The engine never silently falls back to UTC.
	ErrZoneResolution = errors.New("timezone resolution failed")

	// ErrInvalidScheduleConfig is returned for malformed schedule
	// parameters (period length, pay offset, anchor).
	ErrInvalidScheduleConfig = errors.New("invalid schedule configuration")

	// ErrNoActiveSchedule is returned when no schedule version covers the
	// requested date for a group. Callers must provision one (bootstrap).
	ErrNoActiveSchedule = errors.New("no active schedule")

	// ErrScheduleNotFound is returned when a schedule id does not exist.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrPeriodNotFound is returned when a period id does not exist.
	ErrPeriodNotFound = errors.New("period not found")

	// ErrInvalidTransition is returned when a status transition is
	// attempted from the wrong current status. Transitions are never
	// silently ignored.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrReasonRequired is returned when an admin override carries an
	// empty or whitespace-only reason.
	ErrReasonRequired = errors.New("override reason is required")

	// ErrFieldNotAllowed is returned when an override touches a field
	// outside the allow-list.
	ErrFieldNotAllowed = errors.New("override field not allowed")

	// ErrDuplicatePeriodStart is returned by stores when inserting a
	// period whose (schedule_id, start_at_utc) already exists. EnsurePeriods
	// treats it as expected idempotence, not a failure.
	ErrDuplicatePeriodStart = errors.New("duplicate period start")

	// ErrPeriodGenerationGap is returned when a period is still missing
	// after lazy generation around a timestamp. Indicates a defect in the
	// anchor boundary math; never expected in correct operation.
	ErrPeriodGenerationGap = errors.New("period not found after generation")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConfigError details which schedule parameter failed validation.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid schedule configuration: %s: %s", e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidScheduleConfig
}

// TransitionError details a rejected status transition.
type TransitionError struct {
	PeriodID  PeriodID
	Current   PeriodStatus
	Requested PeriodStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition for period %s: %s -> %s",
		e.PeriodID, e.Current, e.Requested)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrScheduleNotFound) ||
		errors.Is(err, ErrPeriodNotFound) ||
		errors.Is(err, ErrNoActiveSchedule)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidScheduleConfig) ||
		errors.Is(err, ErrZoneResolution) ||
		errors.Is(err, ErrReasonRequired) ||
		errors.Is(err, ErrFieldNotAllowed)
}

// IsConflict returns true if the error reflects a state conflict rather
// than bad input.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDuplicatePeriodStart)
}
