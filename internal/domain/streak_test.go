package domain

import (
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAdvanceStreakFirstActivity(t *testing.T) {
	record, outcome := AdvanceStreak(nil, day(2024, time.January, 1))

	if outcome != StreakStarted {
		t.Fatalf("expected started outcome, got %s", outcome)
	}
	if record.CurrentCount != 1 || record.LongestCount != 1 {
		t.Fatalf("expected counts 1/1, got %d/%d", record.CurrentCount, record.LongestCount)
	}
	if !record.LastActiveDate.Equal(day(2024, time.January, 1)) {
		t.Fatalf("unexpected last active date %v", record.LastActiveDate)
	}
}

func TestAdvanceStreakSameDayNoOp(t *testing.T) {
	prior := StreakRecord{
		UserID:         "user-1",
		StreakType:     StreakTypeDailySaving,
		CurrentCount:   5,
		LongestCount:   9,
		LastActiveDate: day(2024, time.March, 10),
	}

	record, outcome := AdvanceStreak(&prior, day(2024, time.March, 10))

	if outcome != StreakUnchanged {
		t.Fatalf("expected unchanged outcome, got %s", outcome)
	}
	if record != prior {
		t.Fatalf("expected record unchanged, got %+v", record)
	}
}

func TestAdvanceStreakConsecutiveDayIncrements(t *testing.T) {
	prior := StreakRecord{
		CurrentCount:   5,
		LongestCount:   5,
		LastActiveDate: day(2024, time.March, 10),
	}

	record, outcome := AdvanceStreak(&prior, day(2024, time.March, 11))

	if outcome != StreakExtended {
		t.Fatalf("expected extended outcome, got %s", outcome)
	}
	if record.CurrentCount != 6 {
		t.Fatalf("expected current count 6, got %d", record.CurrentCount)
	}
	if record.LongestCount != 6 {
		t.Fatalf("expected longest count to track new high of 6, got %d", record.LongestCount)
	}
}

func TestAdvanceStreakIncrementKeepsHigherLongest(t *testing.T) {
	prior := StreakRecord{
		CurrentCount:   2,
		LongestCount:   8,
		LastActiveDate: day(2024, time.March, 10),
	}

	record, _ := AdvanceStreak(&prior, day(2024, time.March, 11))

	if record.CurrentCount != 3 || record.LongestCount != 8 {
		t.Fatalf("expected 3/8, got %d/%d", record.CurrentCount, record.LongestCount)
	}
}

func TestAdvanceStreakGapResets(t *testing.T) {
	prior := StreakRecord{
		CurrentCount:   5,
		LongestCount:   5,
		LastActiveDate: day(2024, time.March, 10),
	}

	record, outcome := AdvanceStreak(&prior, day(2024, time.March, 13))

	if outcome != StreakReset {
		t.Fatalf("expected reset outcome, got %s", outcome)
	}
	if record.CurrentCount != 1 {
		t.Fatalf("expected current count 1 after gap, got %d", record.CurrentCount)
	}
	if record.LongestCount != 5 {
		t.Fatalf("expected longest count preserved at 5, got %d", record.LongestCount)
	}
	if !record.LastActiveDate.Equal(day(2024, time.March, 13)) {
		t.Fatalf("unexpected last active date %v", record.LastActiveDate)
	}
}

func TestAdvanceStreakEarlierDayResets(t *testing.T) {
	prior := StreakRecord{
		CurrentCount:   5,
		LongestCount:   7,
		LastActiveDate: day(2024, time.March, 10),
	}

	record, outcome := AdvanceStreak(&prior, day(2024, time.March, 8))

	if outcome != StreakReset {
		t.Fatalf("expected reset outcome, got %s", outcome)
	}
	if record.CurrentCount != 1 || record.LongestCount != 7 {
		t.Fatalf("expected 1/7, got %d/%d", record.CurrentCount, record.LongestCount)
	}
}

func TestAdvanceStreakLongestNeverBelowCurrent(t *testing.T) {
	record, _ := AdvanceStreak(nil, day(2024, time.June, 1))
	for d := 2; d <= 30; d++ {
		record, _ = AdvanceStreak(&record, day(2024, time.June, d))
		if record.LongestCount < record.CurrentCount {
			t.Fatalf("invariant violated on day %d: %d < %d", d, record.LongestCount, record.CurrentCount)
		}
	}
	if record.CurrentCount != 30 || record.LongestCount != 30 {
		t.Fatalf("expected 30/30 after a month of daily logs, got %d/%d", record.CurrentCount, record.LongestCount)
	}
}

func TestDateOfResolvesLocalCalendarDay(t *testing.T) {
	loc := time.FixedZone("UTC-8", -8*60*60)
	// 2024-03-11 02:00 UTC is still 2024-03-10 in UTC-8.
	instant := time.Date(2024, time.March, 11, 2, 0, 0, 0, time.UTC)

	got := DateOf(instant, loc)
	if !got.Equal(day(2024, time.March, 10)) {
		t.Fatalf("expected local day 2024-03-10, got %v", got)
	}

	if got := DateOf(instant, time.UTC); !got.Equal(day(2024, time.March, 11)) {
		t.Fatalf("expected UTC day 2024-03-11, got %v", got)
	}
}
