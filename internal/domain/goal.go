package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SavingsGoal is a user-defined target tracked through accumulated entries.
// CurrentAmount only ever grows by entry application; goals are never deleted.
type SavingsGoal struct {
	ID            string
	UserID        string
	Title         string
	TargetAmount  decimal.Decimal
	CurrentAmount decimal.Decimal
	GoalType      string
	Icon          string
	Deadline      *time.Time
	CreatedAt     time.Time
}

// SavingsEntry is one append-only contribution toward a goal.
type SavingsEntry struct {
	ID        string
	GoalID    string
	Amount    decimal.Decimal
	Source    string
	Note      *string
	CreatedAt time.Time
}
