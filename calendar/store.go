/*
store.go - Persistence interface for schedules, periods, and overrides

PURPOSE:
  Defines the boundary between the engine and its persistence collaborator.
  The engine owns the semantics (generation, sequencing, lifecycle); the
  store owns durability and the uniqueness constraints the semantics rely
  on:
    - (schedule_id, start_at_utc) unique  -> EnsurePeriods idempotence
    - (schedule_id, display_id)  unique   -> stable human IDs
    - one open-ended schedule per group

MISSING ROWS:
  Single-row lookups return (nil, nil) when no row matches; callers wrap
  with the appropriate sentinel. Stores return raw errors only for real
  failures.

TRANSACTIONS:
  Every mutating Service operation runs inside one WithTx call: all writes
  commit together or roll back entirely, so a period's existence, its
  display ID, and its year re-sequencing are never observed half-applied.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store
*/
package calendar

import (
	"context"
	"time"
)

// Store handles persistence of schedules, periods, and override audits.
type Store interface {
	// --- schedules ---

	// InsertSchedule persists a new schedule version.
	InsertSchedule(ctx context.Context, s *Schedule) error

	// CloseSchedule sets effective_to on an open-ended schedule version.
	CloseSchedule(ctx context.Context, id ScheduleID, effectiveTo, updatedAt time.Time) error

	// ScheduleByID returns the schedule, or (nil, nil) if absent.
	ScheduleByID(ctx context.Context, id ScheduleID) (*Schedule, error)

	// OpenSchedule returns the group's open-ended version, or (nil, nil).
	OpenSchedule(ctx context.Context, groupKey string) (*Schedule, error)

	// ActiveScheduleOn returns the version whose effective range covers
	// the civil date, or (nil, nil).
	ActiveScheduleOn(ctx context.Context, groupKey string, date time.Time) (*Schedule, error)

	// CountSchedules returns how many versions exist for the group.
	CountSchedules(ctx context.Context, groupKey string) (int, error)

	// --- periods ---

	// InsertPeriod persists a new period. Returns ErrDuplicatePeriodStart
	// (possibly wrapped) when (schedule_id, start_at_utc) already exists.
	InsertPeriod(ctx context.Context, p *Period) error

	// PeriodByID returns the period, or (nil, nil) if absent.
	PeriodByID(ctx context.Context, id PeriodID) (*Period, error)

	// PeriodContaining returns the period with start <= ts < end, or
	// (nil, nil).
	PeriodContaining(ctx context.Context, scheduleID ScheduleID, ts time.Time) (*Period, error)

	// PeriodsInYear returns all of a schedule's periods with the given
	// label year, ordered by start ascending.
	PeriodsInYear(ctx context.Context, scheduleID ScheduleID, labelYear int) ([]Period, error)

	// PeriodStartsBetween returns the canonical UTC start strings of
	// existing periods with from <= start < to.
	PeriodStartsBetween(ctx context.Context, scheduleID ScheduleID, from, to time.Time) (map[string]bool, error)

	// ListPeriods returns periods ordered by start descending, paginated.
	ListPeriods(ctx context.Context, scheduleID ScheduleID, limit, offset int) ([]Period, error)

	// UpdatePeriodSequence rewrites a period's sequence number and
	// display ID.
	UpdatePeriodSequence(ctx context.Context, id PeriodID, seq int, displayID string) error

	// UpdatePeriodStatus advances status from an expected current value,
	// stamping locked_at_utc or payed_at_utc as appropriate. Returns
	// ErrInvalidTransition if the row's status is not `from`.
	UpdatePeriodStatus(ctx context.Context, id PeriodID, from, to PeriodStatus, at time.Time) error

	// UpdatePeriodPayDate rewrites a period's pay date.
	UpdatePeriodPayDate(ctx context.Context, id PeriodID, payDate time.Time) error

	// --- overrides ---

	// InsertOverride appends an override audit row.
	InsertOverride(ctx context.Context, o *Override) error

	// OverridesForPeriod returns a period's audit rows, oldest first.
	OverridesForPeriod(ctx context.Context, id PeriodID) ([]Override, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction rolls back, otherwise it commits.
	WithTx(ctx context.Context, fn func(Store) error) error
}
