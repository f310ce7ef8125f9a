/*
context.go - Per-group payroll façade over the pay calendar service

PURPOSE:
  Wraps the calendar Service for a single group (tenant): caches the
  active schedule, offers date/timestamp lookups, materializes rolling
  windows, and decorates raw periods into display-ready records for the
  UI and exporters.

DECORATION:
  Periods are stored half-open: the exclusive end is the next period's
  start. Humans think in inclusive last days, so the displayed end date is
  the end boundary's local date minus one day. The folder name combines
  the display id with both boundary dates and is safe as a filesystem
  path segment.

EMPTY STATUS:
  A period that is nominally OPEN but has zero distributions is displayed
  as "EMPTY", so the UI can distinguish a future untouched period from the
  period currently in use. The raw status is never altered.
*/
package payroll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mattrap/TipSplit-sub000/calendar"
)

// Default rolling window for EnsureWindow.
const (
	DefaultWindowMonthsBack    = 6
	DefaultWindowMonthsForward = 12
)

const displayDateLayout = "02/01/2006"

// Context is a thin caching/formatting façade over the calendar Service
// for one group.
type Context struct {
	svc      *calendar.Service
	dists    DistributionStore
	groupKey string

	mu    sync.RWMutex
	sched *calendar.Schedule
}

// NewContext creates a context for the group. dists may be nil, in which
// case the EMPTY decoration is omitted.
func NewContext(svc *calendar.Service, dists DistributionStore, groupKey string) *Context {
	return &Context{svc: svc, dists: dists, groupKey: groupKey}
}

// GroupKey returns the group this context serves.
func (c *Context) GroupKey() string { return c.groupKey }

// =============================================================================
// SCHEDULE CACHE
// =============================================================================

// Schedule returns the cached active schedule, resolving it for today's
// date on first use.
func (c *Context) Schedule(ctx context.Context) (*calendar.Schedule, error) {
	c.mu.RLock()
	sched := c.sched
	c.mu.RUnlock()
	if sched != nil {
		return sched, nil
	}
	return c.RefreshSchedule(ctx)
}

// RefreshSchedule discards the cache and re-resolves the active schedule.
func (c *Context) RefreshSchedule(ctx context.Context) (*calendar.Schedule, error) {
	sched, err := c.svc.ActiveSchedule(ctx, c.groupKey, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	c.SetSchedule(sched)
	return sched, nil
}

// SetSchedule replaces the cached schedule.
func (c *Context) SetSchedule(sched *calendar.Schedule) {
	c.mu.Lock()
	c.sched = sched
	c.mu.Unlock()
}

// =============================================================================
// PERIOD LOOKUPS
// =============================================================================

// EnsureWindow materializes a rolling window of periods around today.
// Non-positive arguments fall back to the defaults (6 months back, 12
// months forward). Returns how many periods were inserted.
func (c *Context) EnsureWindow(ctx context.Context, monthsBack, monthsForward int) (int, error) {
	if monthsBack <= 0 {
		monthsBack = DefaultWindowMonthsBack
	}
	if monthsForward <= 0 {
		monthsForward = DefaultWindowMonthsForward
	}

	sched, err := c.Schedule(ctx)
	if err != nil {
		return 0, err
	}
	today := calendar.DateOf(time.Now().UTC())
	return c.svc.EnsurePeriods(ctx, sched.ID,
		today.AddDate(0, -monthsBack, 0),
		today.AddDate(0, monthsForward, 0))
}

// PeriodForLocalDate returns the period containing the given local civil
// date. The date is anchored at 12:00 local, safely away from the 06:00
// period boundaries.
func (c *Context) PeriodForLocalDate(ctx context.Context, date time.Time) (*calendar.Period, error) {
	sched, err := c.svc.ActiveSchedule(ctx, c.groupKey, date)
	if err != nil {
		return nil, err
	}
	loc, err := sched.Location()
	if err != nil {
		return nil, err
	}
	d := calendar.DateOf(date)
	noon := time.Date(d.Year(), d.Month(), d.Day(), 12, 0, 0, 0, loc)
	return c.svc.PeriodForTimestamp(ctx, sched.ID, noon.UTC())
}

// PeriodForTimestamp returns the period containing the UTC instant under
// the cached schedule.
func (c *Context) PeriodForTimestamp(ctx context.Context, ts time.Time) (*calendar.Period, error) {
	sched, err := c.Schedule(ctx)
	if err != nil {
		return nil, err
	}
	return c.svc.PeriodForTimestamp(ctx, sched.ID, ts)
}

// =============================================================================
// DISPLAY-READY PERIODS
// =============================================================================

// PeriodView is a period decorated for display and export.
type PeriodView struct {
	calendar.Period

	// StartLocal / EndLocal are the boundary instants as local wall-clock
	// strings.
	StartLocal string
	EndLocal   string

	// RangeLabel is "{start DD/MM/YYYY} au {end DD/MM/YYYY}" where the
	// displayed end is the last human-visible day (exclusive end minus
	// one day).
	RangeLabel string

	// FolderName is a filesystem-safe slug: display id plus both
	// boundary dates.
	FolderName string

	// StatusDisplay mirrors Status, except an OPEN period with no
	// distributions shows as "EMPTY".
	StatusDisplay string
}

// GetPeriod returns one decorated period.
func (c *Context) GetPeriod(ctx context.Context, id calendar.PeriodID) (*PeriodView, error) {
	p, err := c.svc.GetPeriod(ctx, id)
	if err != nil {
		return nil, err
	}
	sched, err := c.Schedule(ctx)
	if err != nil {
		return nil, err
	}
	loc, err := sched.Location()
	if err != nil {
		return nil, err
	}

	hasDist := false
	if c.dists != nil {
		records, err := c.dists.ListDistributions(ctx, id)
		if err != nil {
			return nil, err
		}
		hasDist = len(records) > 0
	}

	view := c.decorate(*p, loc, hasDist)
	return &view, nil
}

// ListPeriods returns the group's periods, most recent first, decorated.
func (c *Context) ListPeriods(ctx context.Context, limit, offset int) ([]PeriodView, error) {
	sched, err := c.Schedule(ctx)
	if err != nil {
		return nil, err
	}
	loc, err := sched.Location()
	if err != nil {
		return nil, err
	}

	periods, err := c.svc.ListPeriods(ctx, sched.ID, limit, offset)
	if err != nil {
		return nil, err
	}

	var withDists map[calendar.PeriodID]bool
	if c.dists != nil {
		withDists, err = c.dists.PeriodIDsWithDistributions(ctx, sched.ID)
		if err != nil {
			return nil, err
		}
	}

	views := make([]PeriodView, len(periods))
	for i, p := range periods {
		views[i] = c.decorate(p, loc, withDists[p.ID])
	}
	return views, nil
}

func (c *Context) decorate(p calendar.Period, loc *time.Location, hasDistributions bool) PeriodView {
	startDate := calendar.LocalDateOf(p.StartAtUTC, loc)
	// Half-open storage: the human-visible last day is the day before the
	// exclusive end boundary.
	endDate := calendar.LocalDateOf(p.EndAtUTC, loc).AddDate(0, 0, -1)

	view := PeriodView{
		Period:     p,
		StartLocal: calendar.FormatLocal(p.StartAtUTC, loc),
		EndLocal:   calendar.FormatLocal(p.EndAtUTC, loc),
		RangeLabel: fmt.Sprintf("%s au %s",
			startDate.Format(displayDateLayout), endDate.Format(displayDateLayout)),
		FolderName: fmt.Sprintf("%s_%s_%s",
			p.DisplayID, calendar.FormatDate(startDate), calendar.FormatDate(endDate)),
		StatusDisplay: string(p.Status),
	}
	if c.dists != nil && p.Status == calendar.StatusOpen && !hasDistributions {
		view.StatusDisplay = "EMPTY"
	}
	return view
}

// =============================================================================
// DISTRIBUTIONS
// =============================================================================

// RecordDistribution appends a tip distribution line to a period.
func (c *Context) RecordDistribution(ctx context.Context, periodID calendar.PeriodID, employee string, amount decimal.Decimal) (*Distribution, error) {
	if c.dists == nil {
		return nil, fmt.Errorf("no distribution store configured")
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidAmount, amount)
	}
	if _, err := c.svc.GetPeriod(ctx, periodID); err != nil {
		return nil, err
	}

	d := &Distribution{
		ID:        uuid.NewString(),
		PeriodID:  periodID,
		Employee:  employee,
		Amount:    amount,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := c.dists.InsertDistribution(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}
