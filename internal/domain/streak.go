package domain

import "time"

// StreakTypeDailySaving is the only streak type tracked today. The schema
// keys streak rows by (user_id, streak_type) so further types can be added
// without migration.
const StreakTypeDailySaving = "daily_saving"

// StreakRecord tracks consecutive days with at least one logged saving.
// Invariant: LongestCount >= CurrentCount >= 0.
type StreakRecord struct {
	ID           string
	UserID       string
	StreakType   string
	CurrentCount int
	LongestCount int
	// LastActiveDate is a calendar date, normalized to midnight UTC. The
	// calendar day is resolved in the user's local time before it reaches
	// the tracker, so day-boundary comparisons are timezone-stable.
	LastActiveDate time.Time
}

// StreakOutcome describes the transition AdvanceStreak decided on.
type StreakOutcome string

const (
	StreakStarted   StreakOutcome = "started"
	StreakUnchanged StreakOutcome = "unchanged"
	StreakExtended  StreakOutcome = "extended"
	StreakReset     StreakOutcome = "reset"
)

// DateOf resolves the calendar day of t in loc and returns it normalized to
// midnight UTC, the representation StreakRecord.LastActiveDate uses.
func DateOf(t time.Time, loc *time.Location) time.Time {
	year, month, day := t.In(loc).Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// AdvanceStreak decides how a newly logged activity on day affects the streak.
// It is pure decision logic: the caller persists the returned record. A nil
// record means no streak exists yet for this user and type.
//
// Same-day activity is a no-op so multiple logs on one day cannot
// double-increment. Activity on the day after LastActiveDate extends the run
// and advances the longest-streak high-water mark. Anything else, including a
// gap of two or more days or an activity dated before the record, resets the
// run to one while preserving the longest count.
func AdvanceStreak(record *StreakRecord, day time.Time) (StreakRecord, StreakOutcome) {
	if record == nil {
		return StreakRecord{
			StreakType:     StreakTypeDailySaving,
			CurrentCount:   1,
			LongestCount:   1,
			LastActiveDate: day,
		}, StreakStarted
	}

	switch {
	case day.Equal(record.LastActiveDate):
		return *record, StreakUnchanged

	case day.Equal(record.LastActiveDate.AddDate(0, 0, 1)):
		next := *record
		next.CurrentCount++
		if next.CurrentCount > next.LongestCount {
			next.LongestCount = next.CurrentCount
		}
		next.LastActiveDate = day
		return next, StreakExtended

	default:
		next := *record
		next.CurrentCount = 1
		next.LastActiveDate = day
		return next, StreakReset
	}
}
