/*
service.go - Pay calendar service: schedule versioning, period generation,
lifecycle transitions, and audited admin overrides

PURPOSE:
  The core of the engine. Owns schedule versions and the deterministic
  generation of pay periods from an anchor instant, plus the strictly
  forward OPEN -> LOCKED -> PAYED period lifecycle.

ANCHOR MATH:
  Every period boundary is the schedule's anchor (a Sunday 06:00 local
  wall-clock instant) shifted by a whole multiple of PeriodLengthDays.
  The boundary at or before a target date is found in closed form by
  integer division on the elapsed days, not by iterative stepping from the
  anchor, so far-past and far-future windows cost the same. Stepping is
  done in wall-clock space (AddDate in the schedule's zone), so boundaries
  stay at 06:00 local across DST changes.

RE-SEQUENCING:
  After any insertion, every touched label year is re-sequenced: all of
  the year's periods are re-read in start order and their
  sequence_in_year/display_id rewritten. Display IDs therefore stay
  contiguous even when windows are back-filled out of chronological order.
  Correctness over efficiency: a year holds a few dozen periods at most.

TRANSACTIONS:
  Every mutating operation runs inside one store transaction. Duplicate
  period inserts (concurrent generation of overlapping windows) are
  swallowed as expected idempotence.

SEE ALSO:
  - store.go: the persistence contract this service drives
  - timeutil.go: zone and wall-clock conversion
*/
package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Schedule validation bounds.
const (
	MinPeriodLengthDays  = 7
	MaxPeriodLengthDays  = 31
	MaxPayDateOffsetDays = 30
)

// Lazy generation window around a timestamp that missed the materialized
// range. Tunable heuristics, not a protocol guarantee.
const (
	BackfillDays = 180
	ForwardDays  = 365
)

// Service owns schedule versions and period generation for all groups.
// All operations are synchronous; mutating ones are transactional.
type Service struct {
	store TxStore
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the service clock. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a service over the given transactional store.
func NewService(store TxStore, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// SCHEDULE VERSIONING
// =============================================================================

// ScheduleParams are the inputs to CreateScheduleVersion.
type ScheduleParams struct {
	GroupKey          string
	Name              string
	Timezone          string
	PeriodLengthDays  int
	PayDateOffsetDays int

	// AnchorStartLocal is a local ISO wall-clock string; it must fall on
	// a Sunday at 06:00:00 in Timezone.
	AnchorStartLocal string

	// EffectiveFrom is an ISO date; the new version is authoritative from
	// this date onward.
	EffectiveFrom string
}

// CreateScheduleVersion validates and persists a new schedule version,
// closing the group's previous open-ended version the day before the new
// EffectiveFrom. Already-materialized periods are never altered
// retroactively.
func (s *Service) CreateScheduleVersion(ctx context.Context, p ScheduleParams) (*Schedule, error) {
	if p.PeriodLengthDays < MinPeriodLengthDays || p.PeriodLengthDays > MaxPeriodLengthDays {
		return nil, &ConfigError{
			Field:   "period_length_days",
			Message: fmt.Sprintf("must be between %d and %d, got %d", MinPeriodLengthDays, MaxPeriodLengthDays, p.PeriodLengthDays),
		}
	}
	if p.PayDateOffsetDays < 0 || p.PayDateOffsetDays > MaxPayDateOffsetDays {
		return nil, &ConfigError{
			Field:   "pay_date_offset_days",
			Message: fmt.Sprintf("must be between 0 and %d, got %d", MaxPayDateOffsetDays, p.PayDateOffsetDays),
		}
	}

	loc, err := LoadZone(p.Timezone)
	if err != nil {
		return nil, err
	}

	anchor, err := ParseLocal(p.AnchorStartLocal, loc)
	if err != nil {
		return nil, &ConfigError{Field: "anchor_start_local", Message: err.Error()}
	}
	if anchor.Weekday() != time.Sunday ||
		anchor.Hour() != 6 || anchor.Minute() != 0 || anchor.Second() != 0 || anchor.Nanosecond() != 0 {
		return nil, &ConfigError{
			Field:   "anchor_start_local",
			Message: fmt.Sprintf("%q must fall on a Sunday at 06:00:00 local time", p.AnchorStartLocal),
		}
	}

	effectiveFrom, err := ParseDate(p.EffectiveFrom)
	if err != nil {
		return nil, &ConfigError{Field: "effective_from", Message: err.Error()}
	}

	now := s.now().UTC().Truncate(time.Second)
	sched := &Schedule{
		ID:                ScheduleID(uuid.NewString()),
		GroupKey:          p.GroupKey,
		Name:              p.Name,
		Timezone:          p.Timezone,
		PeriodLengthDays:  p.PeriodLengthDays,
		PayDateOffsetDays: p.PayDateOffsetDays,
		AnchorStartLocal:  anchor.Format(LayoutLocal),
		EffectiveFrom:     effectiveFrom,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.store.WithTx(ctx, func(st Store) error {
		prev, err := st.OpenSchedule(ctx, p.GroupKey)
		if err != nil {
			return err
		}
		if prev != nil {
			if err := st.CloseSchedule(ctx, prev.ID, effectiveFrom.AddDate(0, 0, -1), now); err != nil {
				return err
			}
		}
		return st.InsertSchedule(ctx, sched)
	})
	if err != nil {
		return nil, err
	}
	return sched, nil
}

// ActiveSchedule returns the group's schedule version covering the given
// civil date.
func (s *Service) ActiveSchedule(ctx context.Context, groupKey string, date time.Time) (*Schedule, error) {
	sched, err := s.store.ActiveScheduleOn(ctx, groupKey, DateOf(date))
	if err != nil {
		return nil, err
	}
	if sched == nil {
		return nil, fmt.Errorf("%w: group %q has no schedule covering %s",
			ErrNoActiveSchedule, groupKey, FormatDate(date))
	}
	return sched, nil
}

// GetSchedule returns a schedule version by id.
func (s *Service) GetSchedule(ctx context.Context, id ScheduleID) (*Schedule, error) {
	sched, err := s.store.ScheduleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched == nil {
		return nil, fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	return sched, nil
}

// HasSchedules reports whether any schedule version exists for the group.
func (s *Service) HasSchedules(ctx context.Context, groupKey string) (bool, error) {
	n, err := s.store.CountSchedules(ctx, groupKey)
	return n > 0, err
}

// =============================================================================
// PERIOD GENERATION
// =============================================================================

// EnsurePeriods idempotently materializes every period overlapping the
// half-open local window [from, to] for the schedule. Returns how many
// periods were actually inserted.
func (s *Service) EnsurePeriods(ctx context.Context, scheduleID ScheduleID, from, to time.Time) (int, error) {
	var inserted int
	err := s.store.WithTx(ctx, func(st Store) error {
		n, err := ensurePeriodsTx(ctx, st, scheduleID, from, to)
		inserted = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func ensurePeriodsTx(ctx context.Context, st Store, scheduleID ScheduleID, from, to time.Time) (int, error) {
	sched, err := st.ScheduleByID(ctx, scheduleID)
	if err != nil {
		return 0, err
	}
	if sched == nil {
		return 0, fmt.Errorf("%w: %s", ErrScheduleNotFound, scheduleID)
	}

	loc, err := sched.Location()
	if err != nil {
		return 0, err
	}
	anchor, err := sched.Anchor()
	if err != nil {
		return 0, err
	}

	fromDate, toDate := DateOf(from), DateOf(to)
	if toDate.Before(fromDate) {
		return 0, fmt.Errorf("generation window ends (%s) before it starts (%s)",
			FormatDate(toDate), FormatDate(fromDate))
	}

	// Closed-form jump to the boundary at or before fromDate.
	elapsed := DaysBetween(DateOf(anchor), fromDate)
	k := floorDiv(elapsed, sched.PeriodLengthDays)
	first := anchor.AddDate(0, 0, k*sched.PeriodLengthDays)

	var starts []time.Time
	for cur := first; !DateOf(cur).After(toDate); cur = cur.AddDate(0, 0, sched.PeriodLengthDays) {
		starts = append(starts, cur)
	}
	if len(starts) == 0 {
		return 0, nil
	}

	scanEnd := starts[len(starts)-1].AddDate(0, 0, sched.PeriodLengthDays)
	existing, err := st.PeriodStartsBetween(ctx, scheduleID, starts[0].UTC(), scanEnd.UTC())
	if err != nil {
		return 0, err
	}

	inserted := 0
	touched := map[int]bool{}
	for _, cur := range starts {
		startUTC := cur.UTC()
		if existing[FormatUTC(startUTC)] {
			continue
		}

		end := cur.AddDate(0, 0, sched.PeriodLengthDays)
		period := &Period{
			ID:           PeriodID(uuid.NewString()),
			ScheduleID:   scheduleID,
			StartAtUTC:   startUTC,
			EndAtUTC:     end.UTC(),
			PayDateLocal: LocalDateOf(end.UTC(), loc).AddDate(0, 0, sched.PayDateOffsetDays),
			LabelYear:    startUTC.Year(),
			// Provisional display id; the re-sequencing pass below assigns
			// the real one. The start string is unique per schedule.
			DisplayID: provisionalDisplayID(startUTC),
			Status:    StatusOpen,
		}
		if err := st.InsertPeriod(ctx, period); err != nil {
			if errors.Is(err, ErrDuplicatePeriodStart) {
				// A concurrent writer materialized the same boundary.
				// Expected idempotence, not an error.
				continue
			}
			return 0, err
		}
		inserted++
		touched[period.LabelYear] = true
	}

	years := make([]int, 0, len(touched))
	for y := range touched {
		years = append(years, y)
	}
	sort.Ints(years)
	for _, year := range years {
		if err := resequenceYear(ctx, st, scheduleID, year); err != nil {
			return 0, err
		}
	}
	return inserted, nil
}

func provisionalDisplayID(startUTC time.Time) string {
	return "@" + FormatUTC(startUTC)
}

// resequenceYear rewrites sequence_in_year and display_id for every period
// of the label year, in start order. SQLite checks unique constraints per
// statement, so display ids are first parked on unique placeholders before
// the final contiguous numbering is assigned.
func resequenceYear(ctx context.Context, st Store, scheduleID ScheduleID, year int) error {
	periods, err := st.PeriodsInYear(ctx, scheduleID, year)
	if err != nil {
		return err
	}
	for i := range periods {
		if err := st.UpdatePeriodSequence(ctx, periods[i].ID, i+1, provisionalDisplayID(periods[i].StartAtUTC)); err != nil {
			return err
		}
	}
	for i := range periods {
		displayID := fmt.Sprintf("%d-%02d", year, i+1)
		if err := st.UpdatePeriodSequence(ctx, periods[i].ID, i+1, displayID); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// PERIOD QUERIES
// =============================================================================

// ListPeriods returns the schedule's periods, most recent first.
// A non-positive limit defaults to 100.
func (s *Service) ListPeriods(ctx context.Context, scheduleID ScheduleID, limit, offset int) ([]Period, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	if _, err := s.GetSchedule(ctx, scheduleID); err != nil {
		return nil, err
	}
	return s.store.ListPeriods(ctx, scheduleID, limit, offset)
}

// GetPeriod returns a period by id.
func (s *Service) GetPeriod(ctx context.Context, id PeriodID) (*Period, error) {
	p, err := s.store.PeriodByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPeriodNotFound, id)
	}
	return p, nil
}

// PeriodForTimestamp returns the period containing the UTC instant,
// lazily materializing a [-BackfillDays, +ForwardDays] window around it
// when the instant falls outside the generated range.
func (s *Service) PeriodForTimestamp(ctx context.Context, scheduleID ScheduleID, ts time.Time) (*Period, error) {
	ts = ts.UTC()

	p, err := s.store.PeriodContaining(ctx, scheduleID, ts)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}

	sched, err := s.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	loc, err := sched.Location()
	if err != nil {
		return nil, err
	}

	day := LocalDateOf(ts, loc)
	if _, err := s.EnsurePeriods(ctx, scheduleID, day.AddDate(0, 0, -BackfillDays), day.AddDate(0, 0, ForwardDays)); err != nil {
		return nil, err
	}

	p, err = s.store.PeriodContaining(ctx, scheduleID, ts)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: schedule %s at %s", ErrPeriodGenerationGap, scheduleID, FormatUTC(ts))
	}
	return p, nil
}

// =============================================================================
// LIFECYCLE TRANSITIONS
// =============================================================================

// LockPeriod transitions OPEN -> LOCKED, stamping locked_at_utc.
func (s *Service) LockPeriod(ctx context.Context, id PeriodID) (*Period, error) {
	return s.transition(ctx, id, StatusOpen, StatusLocked)
}

// MarkPayed transitions LOCKED -> PAYED, stamping payed_at_utc.
func (s *Service) MarkPayed(ctx context.Context, id PeriodID) (*Period, error) {
	return s.transition(ctx, id, StatusLocked, StatusPayed)
}

func (s *Service) transition(ctx context.Context, id PeriodID, from, to PeriodStatus) (*Period, error) {
	var out *Period
	err := s.store.WithTx(ctx, func(st Store) error {
		p, err := st.PeriodByID(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("%w: %s", ErrPeriodNotFound, id)
		}
		if p.Status != from {
			return &TransitionError{PeriodID: id, Current: p.Status, Requested: to}
		}

		now := s.now().UTC().Truncate(time.Second)
		if err := st.UpdatePeriodStatus(ctx, id, from, to, now); err != nil {
			return err
		}

		p.Status = to
		switch to {
		case StatusLocked:
			p.LockedAtUTC = &now
		case StatusPayed:
			p.PayedAtUTC = &now
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// ADMIN OVERRIDES
// =============================================================================

// AdminOverridePeriod applies allow-listed field changes to a period,
// writing one audit row per actually-changed field. Fields whose new
// value equals the current one are skipped without an audit entry.
func (s *Service) AdminOverridePeriod(ctx context.Context, id PeriodID, changes map[string]string, reason, actor string) (*Period, []Override, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, nil, ErrReasonRequired
	}
	for field := range changes {
		if !OverridableFields[field] {
			return nil, nil, fmt.Errorf("%w: %q", ErrFieldNotAllowed, field)
		}
	}

	var (
		out    *Period
		audits []Override
	)
	err := s.store.WithTx(ctx, func(st Store) error {
		p, err := st.PeriodByID(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("%w: %s", ErrPeriodNotFound, id)
		}

		now := s.now().UTC().Truncate(time.Second)

		if raw, ok := changes["pay_date_local"]; ok {
			newDate, err := ParseDate(raw)
			if err != nil {
				return &ConfigError{Field: "pay_date_local", Message: err.Error()}
			}
			oldValue := FormatDate(p.PayDateLocal)
			newValue := FormatDate(newDate)
			if newValue != oldValue {
				audit := Override{
					ID:        OverrideID(uuid.NewString()),
					PeriodID:  id,
					Field:     "pay_date_local",
					OldValue:  oldValue,
					NewValue:  newValue,
					Reason:    reason,
					Actor:     actor,
					CreatedAt: now,
				}
				if err := st.InsertOverride(ctx, &audit); err != nil {
					return err
				}
				if err := st.UpdatePeriodPayDate(ctx, id, newDate); err != nil {
					return err
				}
				p.PayDateLocal = newDate
				audits = append(audits, audit)
			}
		}

		out = p
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return out, audits, nil
}

// Overrides returns a period's audit trail, oldest first.
func (s *Service) Overrides(ctx context.Context, id PeriodID) ([]Override, error) {
	if _, err := s.GetPeriod(ctx, id); err != nil {
		return nil, err
	}
	return s.store.OverridesForPeriod(ctx, id)
}
