// Package events defines the payloads published through the outbox.
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// SavingsLogged is emitted when a swap or tip log becomes durable.
type SavingsLogged struct {
	EventID    string          `json:"event_id"`
	UserID     string          `json:"user_id"`
	Kind       string          `json:"kind"`
	CatalogRef string          `json:"catalog_ref"`
	Amount     decimal.Decimal `json:"amount"`
	LoggedAt   time.Time       `json:"logged_at"`
}

// StreakUpdated is emitted whenever a streak record is created or rewritten.
// Same-day no-ops do not produce an event.
type StreakUpdated struct {
	UserID         string    `json:"user_id"`
	StreakType     string    `json:"streak_type"`
	CurrentCount   int       `json:"current_count"`
	LongestCount   int       `json:"longest_count"`
	LastActiveDate time.Time `json:"last_active_date"`
	Outcome        string    `json:"outcome"`
	OccurredAt     time.Time `json:"occurred_at"`
}
