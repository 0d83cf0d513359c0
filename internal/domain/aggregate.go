package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ComputeTotals folds a user's complete event history into week-to-date,
// month-to-date, and all-time sums relative to the supplied reference instant.
// The reference carries the caller's location; window boundaries are resolved
// at local midnight in that location.
//
// The computation is pure and order-independent: it never mutates the input,
// never fails, and yields zero totals for an empty history. Events logged at
// exactly a window boundary count toward that window. Events timestamped after
// the reference instant (clock skew) still count toward the all-time sum; the
// window checks are plain lower-bound comparisons.
func ComputeTotals(events []SavingsEvent, now time.Time) Totals {
	weekStart := StartOfWeek(now)
	monthStart := StartOfMonth(now)

	totals := Totals{
		WeekToDate:  decimal.Zero,
		MonthToDate: decimal.Zero,
		AllTime:     decimal.Zero,
	}

	for _, event := range events {
		totals.AllTime = totals.AllTime.Add(event.Amount)
		if !event.LoggedAt.Before(monthStart) {
			totals.MonthToDate = totals.MonthToDate.Add(event.Amount)
		}
		if !event.LoggedAt.Before(weekStart) {
			totals.WeekToDate = totals.WeekToDate.Add(event.Amount)
		}
	}

	return totals
}

// StartOfWeek returns midnight on the most recent Sunday at or before t, in
// t's location.
func StartOfWeek(t time.Time) time.Time {
	year, month, day := t.Date()
	midnight := time.Date(year, month, day, 0, 0, 0, 0, t.Location())
	return midnight.AddDate(0, 0, -int(t.Weekday()))
}

// StartOfMonth returns midnight on the first day of t's month, in t's location.
func StartOfMonth(t time.Time) time.Time {
	year, month, _ := t.Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, t.Location())
}
