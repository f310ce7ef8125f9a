package payroll_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattrap/TipSplit-sub000/calendar"
	"github.com/mattrap/TipSplit-sub000/payroll"
	"github.com/mattrap/TipSplit-sub000/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestContext(t *testing.T) (*payroll.Context, *calendar.Service, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := calendar.NewService(store)
	return payroll.NewContext(svc, store, "resto-1"), svc, store
}

// seedSchedule creates a biweekly schedule whose effective range always
// covers the wall clock, so the context's active-schedule cache resolves
// regardless of when the test runs.
func seedSchedule(t *testing.T, svc *calendar.Service) *calendar.Schedule {
	sched, err := svc.CreateScheduleVersion(context.Background(), calendar.ScheduleParams{
		GroupKey:          "resto-1",
		Name:              "Biweekly",
		Timezone:          "America/Montreal",
		PeriodLengthDays:  14,
		PayDateOffsetDays: 4,
		AnchorStartLocal:  "2025-01-05T06:00:00",
		EffectiveFrom:     "2020-01-01",
	})
	require.NoError(t, err)
	return sched
}

func localDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// DISPLAY DECORATION
// =============================================================================

func TestGetPeriod_Decoration(t *testing.T) {
	// GIVEN: The biweekly period starting Sunday 2025-01-05 06:00 Montreal
	// WHEN: Fetching it decorated
	// THEN: The displayed end date is the last human-visible day (the
	//       exclusive boundary minus one day) and the folder name combines
	//       display id and both dates

	pc, svc, _ := newTestContext(t)
	ctx := context.Background()
	seedSchedule(t, svc)

	p, err := pc.PeriodForLocalDate(ctx, localDate(2025, time.January, 10))
	require.NoError(t, err)
	require.Equal(t, "2025-01", p.DisplayID)

	view, err := pc.GetPeriod(ctx, p.ID)
	require.NoError(t, err)

	assert.Equal(t, "2025-01-05T06:00:00", view.StartLocal)
	assert.Equal(t, "2025-01-19T06:00:00", view.EndLocal)
	assert.Equal(t, "05/01/2025 au 18/01/2025", view.RangeLabel)
	assert.Equal(t, "2025-01_2025-01-05_2025-01-18", view.FolderName)
}

func TestGetPeriod_EmptyStatusUntilDistributed(t *testing.T) {
	// GIVEN: An OPEN period with no distributions
	// WHEN: A tip line is recorded against it
	// THEN: Its display status flips EMPTY -> OPEN; the raw status never
	//       changes

	pc, svc, _ := newTestContext(t)
	ctx := context.Background()
	seedSchedule(t, svc)

	p, err := pc.PeriodForLocalDate(ctx, localDate(2025, time.January, 10))
	require.NoError(t, err)

	view, err := pc.GetPeriod(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "EMPTY", view.StatusDisplay)
	assert.Equal(t, calendar.StatusOpen, view.Status)

	_, err = pc.RecordDistribution(ctx, p.ID, "alice", decimal.NewFromFloat(123.45))
	require.NoError(t, err)

	view, err = pc.GetPeriod(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "OPEN", view.StatusDisplay)
	assert.Equal(t, calendar.StatusOpen, view.Status)
}

func TestListPeriods_MarksDistributedPeriods(t *testing.T) {
	pc, svc, _ := newTestContext(t)
	ctx := context.Background()
	seedSchedule(t, svc)

	target, err := pc.PeriodForLocalDate(ctx, localDate(2025, time.March, 3))
	require.NoError(t, err)
	_, err = pc.RecordDistribution(ctx, target.ID, "bob", decimal.NewFromInt(50))
	require.NoError(t, err)

	views, err := pc.ListPeriods(ctx, 500, 0)
	require.NoError(t, err)
	require.NotEmpty(t, views)

	var sawTarget bool
	for _, v := range views {
		if v.ID == target.ID {
			sawTarget = true
			assert.Equal(t, "OPEN", v.StatusDisplay)
		} else if v.Status == calendar.StatusOpen {
			assert.Equal(t, "EMPTY", v.StatusDisplay)
		}
	}
	assert.True(t, sawTarget)
}

// =============================================================================
// DISTRIBUTIONS
// =============================================================================

func TestRecordDistribution_RejectsNonPositiveAmounts(t *testing.T) {
	pc, svc, _ := newTestContext(t)
	ctx := context.Background()
	seedSchedule(t, svc)

	p, err := pc.PeriodForLocalDate(ctx, localDate(2025, time.January, 10))
	require.NoError(t, err)

	_, err = pc.RecordDistribution(ctx, p.ID, "alice", decimal.Zero)
	assert.ErrorIs(t, err, payroll.ErrInvalidAmount)

	_, err = pc.RecordDistribution(ctx, p.ID, "alice", decimal.NewFromInt(-5))
	assert.ErrorIs(t, err, payroll.ErrInvalidAmount)
}

func TestRecordDistribution_UnknownPeriod(t *testing.T) {
	pc, svc, _ := newTestContext(t)
	seedSchedule(t, svc)

	_, err := pc.RecordDistribution(context.Background(), "missing", "alice", decimal.NewFromInt(10))
	assert.ErrorIs(t, err, calendar.ErrPeriodNotFound)
}

func TestRecordDistribution_RoundTripsAmount(t *testing.T) {
	pc, svc, store := newTestContext(t)
	ctx := context.Background()
	seedSchedule(t, svc)

	p, err := pc.PeriodForLocalDate(ctx, localDate(2025, time.January, 10))
	require.NoError(t, err)

	amount := decimal.RequireFromString("87.35")
	_, err = pc.RecordDistribution(ctx, p.ID, "carol", amount)
	require.NoError(t, err)

	records, err := store.ListDistributions(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "carol", records[0].Employee)
	assert.True(t, amount.Equal(records[0].Amount))
}

// =============================================================================
// ROLLING WINDOW
// =============================================================================

func TestEnsureWindow_DefaultsAndIdempotence(t *testing.T) {
	pc, svc, _ := newTestContext(t)
	ctx := context.Background()
	seedSchedule(t, svc)

	inserted, err := pc.EnsureWindow(ctx, 0, 0)
	require.NoError(t, err)
	// 18 months of biweekly periods.
	assert.Greater(t, inserted, 30)

	again, err := pc.EnsureWindow(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, again)
}

func TestPeriodForTimestamp_UsesCachedSchedule(t *testing.T) {
	pc, svc, _ := newTestContext(t)
	ctx := context.Background()
	seedSchedule(t, svc)

	now := time.Now().UTC()
	p, err := pc.PeriodForTimestamp(ctx, now)
	require.NoError(t, err)
	assert.True(t, p.Contains(now))
}

// =============================================================================
// BOOTSTRAP
// =============================================================================

func TestEnsureDefaultSchedule_SeedsOnce(t *testing.T) {
	// GIVEN: A group with no schedule at all
	// WHEN: EnsureDefaultSchedule runs twice
	// THEN: The first call provisions a biweekly schedule anchored at the
	//       most recent Sunday 06:00 Montreal and materializes periods;
	//       the second call returns the same schedule untouched

	pc, svc, _ := newTestContext(t)
	ctx := context.Background()

	sched, err := pc.EnsureDefaultSchedule(ctx)
	require.NoError(t, err)
	assert.Equal(t, "resto-1", sched.GroupKey)
	assert.Equal(t, payroll.DefaultTimezone, sched.Timezone)
	assert.Equal(t, payroll.DefaultPeriodLengthDays, sched.PeriodLengthDays)
	assert.Equal(t, payroll.DefaultPayDateOffsetDays, sched.PayDateOffsetDays)

	anchor, err := sched.Anchor()
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, anchor.Weekday())
	assert.Equal(t, 6, anchor.Hour())

	periods, err := svc.ListPeriods(ctx, sched.ID, 1000, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, periods)

	again, err := pc.EnsureDefaultSchedule(ctx)
	require.NoError(t, err)
	assert.Equal(t, sched.ID, again.ID)

	// Still exactly one schedule version.
	active, err := svc.ActiveSchedule(ctx, "resto-1", calendar.DateOf(time.Now().UTC()))
	require.NoError(t, err)
	assert.Equal(t, sched.ID, active.ID)
}

func TestEnsureDefaultSchedule_KeepsExistingSchedule(t *testing.T) {
	pc, svc, _ := newTestContext(t)
	ctx := context.Background()
	existing := seedSchedule(t, svc)

	sched, err := pc.EnsureDefaultSchedule(ctx)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, sched.ID)
	assert.Equal(t, "Biweekly", sched.Name)
}
