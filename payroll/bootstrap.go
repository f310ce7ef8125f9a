/*
bootstrap.go - One-time seeding of a default schedule and period window

PURPOSE:
  A fresh install has no schedule, and every lookup would fail with "no
  active schedule". EnsureDefaultSchedule provisions a sensible default
  (biweekly, anchored at the most recent Sunday 06:00 in
  America/Montreal) and materializes an 18-month window around today.
  Idempotent: if the group already has any schedule version, it returns
  the active one untouched.
*/
package payroll

import (
	"context"
	"time"

	"github.com/mattrap/TipSplit-sub000/calendar"
	"github.com/mattrap/TipSplit-sub000/logger"
)

// Default schedule configuration for a new group.
const (
	DefaultTimezone          = "America/Montreal"
	DefaultScheduleName      = "Horaire de paie par défaut"
	DefaultPeriodLengthDays  = 14
	DefaultPayDateOffsetDays = 4
)

// Seeded window around today, in days.
const (
	bootstrapBackDays    = 180
	bootstrapForwardDays = 365
)

// EnsureDefaultSchedule seeds the group's first schedule version and its
// initial period window. Returns the active schedule either way.
func (c *Context) EnsureDefaultSchedule(ctx context.Context) (*calendar.Schedule, error) {
	has, err := c.svc.HasSchedules(ctx, c.groupKey)
	if err != nil {
		return nil, err
	}
	if has {
		return c.Schedule(ctx)
	}

	loc, err := calendar.LoadZone(DefaultTimezone)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	anchor := calendar.MostRecentSundaySix(now, loc)
	today := calendar.LocalDateOf(now.UTC(), loc)
	windowStart := today.AddDate(0, 0, -bootstrapBackDays)
	windowEnd := today.AddDate(0, 0, bootstrapForwardDays)

	sched, err := c.svc.CreateScheduleVersion(ctx, calendar.ScheduleParams{
		GroupKey:          c.groupKey,
		Name:              DefaultScheduleName,
		Timezone:          DefaultTimezone,
		PeriodLengthDays:  DefaultPeriodLengthDays,
		PayDateOffsetDays: DefaultPayDateOffsetDays,
		AnchorStartLocal:  anchor.Format(calendar.LayoutLocal),
		// Authoritative from the start of the seeded window, so lookups
		// over the back-filled periods resolve to this version.
		EffectiveFrom: calendar.FormatDate(windowStart),
	})
	if err != nil {
		return nil, err
	}

	inserted, err := c.svc.EnsurePeriods(ctx, sched.ID, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	logger.Get().Infow("seeded default pay schedule",
		"group", c.groupKey,
		"schedule_id", sched.ID,
		"anchor", sched.AnchorStartLocal,
		"periods", inserted,
	)

	c.SetSchedule(sched)
	return sched, nil
}
