package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/savings/internal/domain"
	"example.com/savings/internal/events"
	"example.com/savings/internal/observability"
)

const uniqueViolation = "23505"

// Repository provides Postgres-backed persistence for savings events, goals,
// streak records, and the transactional outbox.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const eventColumns = `event_id, user_id, kind, catalog_ref, amount, logged_at`

func scanEvent(row pgx.Row) (*domain.SavingsEvent, error) {
	var event domain.SavingsEvent
	if err := row.Scan(&event.ID, &event.UserID, &event.Kind, &event.CatalogRef, &event.Amount, &event.LoggedAt); err != nil {
		return nil, err
	}
	return &event, nil
}

// InsertEvent persists the event and its outbox row in a single transaction.
func (r *Repository) InsertEvent(ctx context.Context, event domain.SavingsEvent, idempotencyKey string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const insertEvent = `INSERT INTO savings_events (event_id, user_id, kind, catalog_ref, amount, logged_at, idempotency_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`

	if _, err = tx.Exec(ctx, insertEvent,
		event.ID,
		event.UserID,
		event.Kind,
		event.CatalogRef,
		event.Amount,
		event.LoggedAt,
		nullIfEmpty(idempotencyKey),
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "savings_events_idempotency_idx" {
			return domain.ErrDuplicateEvent
		}
		return err
	}

	if err = insertOutbox(ctx, tx, "savings.logged", event.UserID, event.ID, events.SavingsLogged{
		EventID:    event.ID,
		UserID:     event.UserID,
		Kind:       string(event.Kind),
		CatalogRef: event.CatalogRef,
		Amount:     event.Amount,
		LoggedAt:   event.LoggedAt,
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordEventPersisted(event.LoggedAt)
	return nil
}

// FindEventByIdempotency returns the stored event for the supplied key, or nil.
func (r *Repository) FindEventByIdempotency(ctx context.Context, userID, idempotencyKey string) (*domain.SavingsEvent, error) {
	if idempotencyKey == "" {
		return nil, nil
	}

	query := `SELECT ` + eventColumns + ` FROM savings_events WHERE user_id=$1 AND idempotency_key=$2`
	event, err := scanEvent(r.pool.QueryRow(ctx, query, userID, idempotencyKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return event, err
}

// ListEventsByUser returns a user's complete event history for re-aggregation.
func (r *Repository) ListEventsByUser(ctx context.Context, userID string) ([]domain.SavingsEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM savings_events WHERE user_id=$1`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.SavingsEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	observability.RecordTotalsRecompute(len(results))
	return results, nil
}

// RecentEventsByUser returns a user's newest events with keyset pagination.
func (r *Repository) RecentEventsByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.SavingsEvent, *domain.Cursor, error) {
	args := []interface{}{userID, limit}
	query := `SELECT ` + eventColumns + ` FROM savings_events WHERE user_id=$1`

	if cursor != nil {
		query += ` AND (logged_at, event_id) < ($3, $4)`
		args = append(args, cursor.LoggedAt, cursor.ID)
	}

	query += ` ORDER BY logged_at DESC, event_id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.SavingsEvent, 0, limit)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{LoggedAt: last.LoggedAt, ID: last.ID}
	}
	return results, next, nil
}

// GetStreak fetches the streak record for (user, type); nil when absent.
func (r *Repository) GetStreak(ctx context.Context, userID, streakType string) (*domain.StreakRecord, error) {
	const query = `SELECT streak_id, user_id, streak_type, current_count, longest_count, last_active_date
        FROM user_streaks WHERE user_id=$1 AND streak_type=$2`

	var record domain.StreakRecord
	err := r.pool.QueryRow(ctx, query, userID, streakType).Scan(
		&record.ID, &record.UserID, &record.StreakType,
		&record.CurrentCount, &record.LongestCount, &record.LastActiveDate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	record.LastActiveDate = asUTCDate(record.LastActiveDate)
	return &record, nil
}

// InsertStreak creates the first record for a user/type pair. A concurrent
// first insert loses on the unique key and surfaces as a conflict.
func (r *Repository) InsertStreak(ctx context.Context, record domain.StreakRecord) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const stmt = `INSERT INTO user_streaks (streak_id, user_id, streak_type, current_count, longest_count, last_active_date)
        VALUES ($1,$2,$3,$4,$5,$6)`

	if _, err = tx.Exec(ctx, stmt,
		record.ID, record.UserID, record.StreakType,
		record.CurrentCount, record.LongestCount, record.LastActiveDate,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			observability.RecordStreakConflict()
			return domain.ErrStreakConflict
		}
		return err
	}

	if err = insertStreakOutbox(ctx, tx, record, string(domain.StreakStarted)); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordStreakTransition(string(domain.StreakStarted))
	return nil
}

// UpdateStreak rewrites the record only if the stored row still matches the
// prior state the decision was computed from. Zero rows affected means another
// writer got there first.
func (r *Repository) UpdateStreak(ctx context.Context, prior, next domain.StreakRecord) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const stmt = `UPDATE user_streaks
        SET current_count=$1, longest_count=$2, last_active_date=$3
        WHERE user_id=$4 AND streak_type=$5 AND current_count=$6 AND last_active_date=$7`

	tag, err := tx.Exec(ctx, stmt,
		next.CurrentCount, next.LongestCount, next.LastActiveDate,
		prior.UserID, prior.StreakType, prior.CurrentCount, prior.LastActiveDate,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		observability.RecordStreakConflict()
		return domain.ErrStreakConflict
	}

	outcome := domain.StreakExtended
	if next.CurrentCount <= prior.CurrentCount {
		outcome = domain.StreakReset
	}
	if err = insertStreakOutbox(ctx, tx, next, string(outcome)); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordStreakTransition(string(outcome))
	return nil
}

// CreateGoal persists a new goal row.
func (r *Repository) CreateGoal(ctx context.Context, goal domain.SavingsGoal) error {
	const stmt = `INSERT INTO savings_goals (goal_id, user_id, title, target_amount, current_amount, goal_type, icon, deadline, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err := r.pool.Exec(ctx, stmt,
		goal.ID, goal.UserID, goal.Title,
		goal.TargetAmount, goal.CurrentAmount,
		goal.GoalType, goal.Icon, goal.Deadline, goal.CreatedAt,
	)
	return err
}

const goalColumns = `goal_id, user_id, title, target_amount, current_amount, goal_type, icon, deadline, created_at`

func scanGoal(row pgx.Row) (*domain.SavingsGoal, error) {
	var goal domain.SavingsGoal
	if err := row.Scan(&goal.ID, &goal.UserID, &goal.Title, &goal.TargetAmount, &goal.CurrentAmount,
		&goal.GoalType, &goal.Icon, &goal.Deadline, &goal.CreatedAt); err != nil {
		return nil, err
	}
	return &goal, nil
}

// GetGoal fetches a goal by ID.
func (r *Repository) GetGoal(ctx context.Context, goalID string) (*domain.SavingsGoal, error) {
	query := `SELECT ` + goalColumns + ` FROM savings_goals WHERE goal_id=$1`
	goal, err := scanGoal(r.pool.QueryRow(ctx, query, goalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrGoalNotFound
	}
	return goal, err
}

// ListGoalsByUser returns a user's goals, newest first.
func (r *Repository) ListGoalsByUser(ctx context.Context, userID string) ([]domain.SavingsGoal, error) {
	query := `SELECT ` + goalColumns + ` FROM savings_goals WHERE user_id=$1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.SavingsGoal, 0)
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *goal)
	}
	return results, rows.Err()
}

// ApplyEntry appends the entry and folds its amount into the goal atomically.
func (r *Repository) ApplyEntry(ctx context.Context, entry domain.SavingsEntry) (*domain.SavingsGoal, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const insertEntry = `INSERT INTO savings_entries (entry_id, goal_id, amount, source, note, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)`

	if _, err = tx.Exec(ctx, insertEntry,
		entry.ID, entry.GoalID, entry.Amount, entry.Source, entry.Note, entry.CreatedAt,
	); err != nil {
		return nil, err
	}

	const updateGoal = `UPDATE savings_goals SET current_amount = current_amount + $1 WHERE goal_id = $2
        RETURNING ` + goalColumns

	goal, err := scanGoal(tx.QueryRow(ctx, updateGoal, entry.Amount, entry.GoalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrGoalNotFound
	}
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return goal, nil
}

func insertStreakOutbox(ctx context.Context, tx pgx.Tx, record domain.StreakRecord, outcome string) error {
	return insertOutbox(ctx, tx, "streak.updated", record.UserID, record.ID, events.StreakUpdated{
		UserID:         record.UserID,
		StreakType:     record.StreakType,
		CurrentCount:   record.CurrentCount,
		LongestCount:   record.LongestCount,
		LastActiveDate: record.LastActiveDate,
		Outcome:        outcome,
		OccurredAt:     time.Now().UTC(),
	})
}

func insertOutbox(ctx context.Context, tx pgx.Tx, eventType, userID, aggregateID string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s", aggregateID, eventType)

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		meta.AggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		userID,
		body,
		dedupeKey,
	)
	return err
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

// asUTCDate normalizes a DATE column value to midnight UTC regardless of the
// session timezone pgx scanned it in.
func asUTCDate(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	AggregateType string
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	"savings.logged": {
		AggregateType: "savings_event",
		Topic:         "savings_events",
		SchemaSubject: "savings_events-value",
	},
	"streak.updated": {
		AggregateType: "streak",
		Topic:         "streak_events",
		SchemaSubject: "streak_events-value",
	},
}
