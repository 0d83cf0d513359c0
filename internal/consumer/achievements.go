package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"example.com/savings/internal/events"
)

const (
	criteriaStreakDays = "streak_days"
	criteriaTotalSaved = "total_saved"
)

// AchievementHandler awards achievements as savings and streak events arrive.
// Awards are idempotent; replaying an event never grants a duplicate.
type AchievementHandler struct {
	pool *pgxpool.Pool
}

// NewAchievementHandler constructs a handler backed by the provided pool.
func NewAchievementHandler(pool *pgxpool.Pool) *AchievementHandler {
	return &AchievementHandler{pool: pool}
}

// Handle inspects the event type and awards any achievements whose criteria
// the user now satisfies. Unknown event types are ignored.
func (h *AchievementHandler) Handle(ctx context.Context, msg Message) error {
	switch msg.EventType {
	case "streak.updated":
		var payload events.StreakUpdated
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("decode streak payload: %w", err)
		}
		return h.awardStreak(ctx, payload)
	case "savings.logged":
		var payload events.SavingsLogged
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("decode savings payload: %w", err)
		}
		return h.awardTotalSaved(ctx, payload.UserID)
	default:
		return nil
	}
}

func (h *AchievementHandler) awardStreak(ctx context.Context, payload events.StreakUpdated) error {
	awarded, err := h.award(ctx, payload.UserID, criteriaStreakDays, decimal.NewFromInt(int64(payload.CurrentCount)))
	if err != nil {
		return fmt.Errorf("award streak achievements: %w", err)
	}
	for i := int64(0); i < awarded; i++ {
		recordAchievementAwarded(criteriaStreakDays)
	}
	return nil
}

func (h *AchievementHandler) awardTotalSaved(ctx context.Context, userID string) error {
	var total decimal.Decimal
	err := h.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM savings_events WHERE user_id = $1`,
		userID,
	).Scan(&total)
	if err != nil {
		return fmt.Errorf("sum savings: %w", err)
	}

	awarded, err := h.award(ctx, userID, criteriaTotalSaved, total)
	if err != nil {
		return fmt.Errorf("award savings achievements: %w", err)
	}
	for i := int64(0); i < awarded; i++ {
		recordAchievementAwarded(criteriaTotalSaved)
	}
	return nil
}

// award grants every achievement of the given criteria type whose threshold is
// at or below value, skipping achievements already held.
func (h *AchievementHandler) award(ctx context.Context, userID, criteriaType string, value decimal.Decimal) (int64, error) {
	tag, err := h.pool.Exec(ctx,
		`INSERT INTO user_achievements (user_id, achievement_id)
         SELECT $1, achievement_id FROM achievements
         WHERE criteria_type = $2 AND criteria_value <= $3
         ON CONFLICT (user_id, achievement_id) DO NOTHING`,
		userID, criteriaType, value,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
