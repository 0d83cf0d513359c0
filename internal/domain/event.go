package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind distinguishes the two sources of logged savings.
type EventKind string

const (
	// EventKindSwap marks a logged product swap from the swap catalog.
	EventKindSwap EventKind = "swap"
	// EventKindTip marks an acted-on savings tip. Tip amounts are stored
	// pre-normalized to a monthly-equivalent figure by the caller.
	EventKindTip EventKind = "tip"
)

// Valid reports whether the kind is one of the known event sources.
func (k EventKind) Valid() bool {
	return k == EventKindSwap || k == EventKindTip
}

// SavingsEvent is the immutable record of a single logged saving. Events are
// append-only; totals are always derived by re-aggregating the full set, so
// late or out-of-order arrivals never corrupt state.
type SavingsEvent struct {
	ID         string
	UserID     string
	Kind       EventKind
	CatalogRef string
	Amount     decimal.Decimal
	LoggedAt   time.Time
}

// Totals holds the three rolling windows published to callers. Amounts carry
// full precision; rounding is a display concern.
type Totals struct {
	WeekToDate  decimal.Decimal
	MonthToDate decimal.Decimal
	AllTime     decimal.Decimal
}
