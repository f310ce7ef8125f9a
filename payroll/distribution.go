/*
distribution.go - Tip distribution records attached to pay periods

PURPOSE:
  The minimal persistence surface for tip distributions the calendar side
  needs: appending a record and knowing which periods have at least one.
  The Context uses the cross-reference to display nominally OPEN periods
  with zero activity as "EMPTY". Full distribution math and employee
  management live outside this core.
*/
package payroll

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mattrap/TipSplit-sub000/calendar"
)

// ErrInvalidAmount is returned when a distribution amount is not strictly
// positive.
var ErrInvalidAmount = errors.New("distribution amount must be positive")

// Distribution is one tip payout line recorded against a pay period.
type Distribution struct {
	ID        string
	PeriodID  calendar.PeriodID
	Employee  string
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// DistributionStore is the persistence collaborator for distributions.
type DistributionStore interface {
	// InsertDistribution appends a distribution record.
	InsertDistribution(ctx context.Context, d *Distribution) error

	// ListDistributions returns a period's records, oldest first.
	ListDistributions(ctx context.Context, periodID calendar.PeriodID) ([]Distribution, error)

	// PeriodIDsWithDistributions returns the ids of the schedule's periods
	// that have at least one distribution record.
	PeriodIDsWithDistributions(ctx context.Context, scheduleID calendar.ScheduleID) (map[calendar.PeriodID]bool, error)
}
