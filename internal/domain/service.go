// Package domain holds the savings ledger core: the aggregation engine, the
// streak tracker, and the facade that sequences them around persistence.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrStreakConflict signals that the streak record changed between read
	// and write. The operation is safe to retry.
	ErrStreakConflict = errors.New("streak record modified concurrently")
	// ErrGoalNotFound is returned when a goal cannot be located.
	ErrGoalNotFound = errors.New("goal not found")
	// ErrDuplicateEvent signals that a concurrent request already stored an
	// event under the same idempotency key. Callers re-read and replay.
	ErrDuplicateEvent = errors.New("event already stored for idempotency key")
	// ErrInvalidInput wraps boundary validation failures.
	ErrInvalidInput = errors.New("invalid input")
)

// Cursor models the keyset pagination token for recent-event listings.
type Cursor struct {
	LoggedAt time.Time
	ID       string
}

// Repository captures the persistence operations the facade sequences. The
// engines themselves never touch storage; they consume what the repository
// returns and hand back decisions for the facade to persist.
type Repository interface {
	InsertEvent(ctx context.Context, event SavingsEvent, idempotencyKey string) error
	FindEventByIdempotency(ctx context.Context, userID, idempotencyKey string) (*SavingsEvent, error)
	ListEventsByUser(ctx context.Context, userID string) ([]SavingsEvent, error)
	RecentEventsByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]SavingsEvent, *Cursor, error)

	GetStreak(ctx context.Context, userID, streakType string) (*StreakRecord, error)
	// InsertStreak creates the lazily-initialized first record; a unique
	// violation on (user_id, streak_type) surfaces as ErrStreakConflict.
	InsertStreak(ctx context.Context, record StreakRecord) error
	// UpdateStreak applies next only if the stored row still matches prior
	// (compare-and-set on count and last active date); a lost race surfaces
	// as ErrStreakConflict.
	UpdateStreak(ctx context.Context, prior, next StreakRecord) error

	CreateGoal(ctx context.Context, goal SavingsGoal) error
	GetGoal(ctx context.Context, goalID string) (*SavingsGoal, error)
	ListGoalsByUser(ctx context.Context, userID string) ([]SavingsGoal, error)
	// ApplyEntry appends the entry and folds its amount into the goal's
	// current_amount in one transaction, returning the refreshed goal.
	ApplyEntry(ctx context.Context, entry SavingsEntry) (*SavingsGoal, error)
}

// Service is the goal/ledger facade. It owns orchestration and side-effect
// ordering; the engines stay pure. Dependencies are injected so the whole
// surface is testable without a store or a wall clock.
type Service struct {
	repo Repository
	now  func() time.Time
}

// Option configures optional Service behaviour.
type Option func(*Service)

// WithNow overrides the clock, keeping window math reproducible in tests.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService constructs a Service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LogActivityInput captures a swap or tip log from the API layer. Timezone is
// an IANA name used to resolve window boundaries and the streak calendar day;
// empty means UTC.
type LogActivityInput struct {
	UserID         string
	Kind           EventKind
	CatalogRef     string
	Amount         decimal.Decimal
	Timezone       string
	IdempotencyKey string
}

func (in LogActivityInput) validate() error {
	if in.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if !in.Kind.Valid() {
		return fmt.Errorf("%w: unknown event kind %q", ErrInvalidInput, in.Kind)
	}
	if in.CatalogRef == "" {
		return fmt.Errorf("%w: catalog ref is required", ErrInvalidInput)
	}
	if in.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must be non-negative", ErrInvalidInput)
	}
	return nil
}

// LogResult is what a completed log-activity operation publishes back to the
// caller: the durable event, totals recomputed over the refreshed event set,
// and the streak state after advancement.
type LogResult struct {
	Event   SavingsEvent
	Totals  Totals
	Streak  StreakRecord
	Outcome StreakOutcome
	Replay  bool
}

// LogActivity runs the full sequence for one logged saving: persist the raw
// event, re-aggregate totals from the complete event set, then advance the
// streak for the event's local calendar day. The event insert happens first
// and alone decides durability; aggregation is a pure read and the streak
// write is guarded by compare-and-set with one retry.
func (s *Service) LogActivity(ctx context.Context, input LogActivityInput) (*LogResult, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	loc, err := resolveLocation(input.Timezone)
	if err != nil {
		return nil, err
	}

	if input.IdempotencyKey != "" {
		existing, err := s.repo.FindEventByIdempotency(ctx, input.UserID, input.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return s.replayResult(ctx, *existing, loc)
		}
	}

	event := SavingsEvent{
		ID:         uuid.NewString(),
		UserID:     input.UserID,
		Kind:       input.Kind,
		CatalogRef: input.CatalogRef,
		Amount:     input.Amount,
		LoggedAt:   s.now().UTC(),
	}

	if err := s.repo.InsertEvent(ctx, event, input.IdempotencyKey); err != nil {
		// Two requests carrying the same key can both pass the lookup above;
		// the loser of the insert race replays the winner's event.
		if errors.Is(err, ErrDuplicateEvent) && input.IdempotencyKey != "" {
			existing, findErr := s.repo.FindEventByIdempotency(ctx, input.UserID, input.IdempotencyKey)
			if findErr != nil {
				return nil, findErr
			}
			if existing != nil {
				return s.replayResult(ctx, *existing, loc)
			}
		}
		return nil, err
	}

	totals, err := s.totalsAt(ctx, input.UserID, event.LoggedAt.In(loc))
	if err != nil {
		return nil, err
	}

	streak, outcome, err := s.advanceStreak(ctx, input.UserID, DateOf(event.LoggedAt, loc))
	if err != nil {
		return nil, err
	}

	return &LogResult{
		Event:   event,
		Totals:  totals,
		Streak:  streak,
		Outcome: outcome,
	}, nil
}

// replayResult rebuilds the response for an idempotent replay without logging
// a second event or re-advancing the streak.
func (s *Service) replayResult(ctx context.Context, event SavingsEvent, loc *time.Location) (*LogResult, error) {
	totals, err := s.totalsAt(ctx, event.UserID, s.now().In(loc))
	if err != nil {
		return nil, err
	}
	streak, err := s.repo.GetStreak(ctx, event.UserID, StreakTypeDailySaving)
	if err != nil {
		return nil, err
	}
	result := &LogResult{
		Event:   event,
		Totals:  totals,
		Outcome: StreakUnchanged,
		Replay:  true,
	}
	if streak != nil {
		result.Streak = *streak
	}
	return result, nil
}

// advanceStreak performs the read-decide-write cycle with optimistic
// concurrency. Two sessions logging simultaneously race on the same record;
// the loser re-reads once and re-applies its day, which converges because
// AdvanceStreak is a pure function of (record, day).
func (s *Service) advanceStreak(ctx context.Context, userID string, day time.Time) (StreakRecord, StreakOutcome, error) {
	const attempts = 2

	var lastErr error
	for i := 0; i < attempts; i++ {
		prior, err := s.repo.GetStreak(ctx, userID, StreakTypeDailySaving)
		if err != nil {
			return StreakRecord{}, "", err
		}

		next, outcome := AdvanceStreak(prior, day)
		if outcome == StreakUnchanged {
			return next, outcome, nil
		}

		if prior == nil {
			next.ID = uuid.NewString()
			next.UserID = userID
			err = s.repo.InsertStreak(ctx, next)
		} else {
			err = s.repo.UpdateStreak(ctx, *prior, next)
		}
		if err == nil {
			return next, outcome, nil
		}
		if !errors.Is(err, ErrStreakConflict) {
			return StreakRecord{}, "", err
		}
		lastErr = err
	}
	return StreakRecord{}, "", lastErr
}

// Totals recomputes the rolling windows for a user at the current instant in
// the supplied timezone. It never trusts cached sums.
func (s *Service) Totals(ctx context.Context, userID, timezone string) (Totals, error) {
	loc, err := resolveLocation(timezone)
	if err != nil {
		return Totals{}, err
	}
	return s.totalsAt(ctx, userID, s.now().In(loc))
}

func (s *Service) totalsAt(ctx context.Context, userID string, now time.Time) (Totals, error) {
	events, err := s.repo.ListEventsByUser(ctx, userID)
	if err != nil {
		return Totals{}, err
	}
	return ComputeTotals(events, now), nil
}

// Streak fetches the user's streak record; nil means no activity was ever
// logged.
func (s *Service) Streak(ctx context.Context, userID string) (*StreakRecord, error) {
	return s.repo.GetStreak(ctx, userID, StreakTypeDailySaving)
}

// RecentEvents lists a user's latest events with keyset pagination.
func (s *Service) RecentEvents(ctx context.Context, userID string, cursor *Cursor, limit int) ([]SavingsEvent, *Cursor, error) {
	return s.repo.RecentEventsByUser(ctx, userID, cursor, limit)
}

// CreateGoalInput captures the payload for a new goal.
type CreateGoalInput struct {
	UserID       string
	Title        string
	TargetAmount decimal.Decimal
	GoalType     string
	Icon         string
	Deadline     *time.Time
}

// CreateGoal persists a new goal with a zero current amount.
func (s *Service) CreateGoal(ctx context.Context, input CreateGoalInput) (*SavingsGoal, error) {
	if input.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if input.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if !input.TargetAmount.IsPositive() {
		return nil, fmt.Errorf("%w: target amount must be positive", ErrInvalidInput)
	}

	goal := SavingsGoal{
		ID:            uuid.NewString(),
		UserID:        input.UserID,
		Title:         input.Title,
		TargetAmount:  input.TargetAmount,
		CurrentAmount: decimal.Zero,
		GoalType:      input.GoalType,
		Icon:          input.Icon,
		Deadline:      input.Deadline,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.repo.CreateGoal(ctx, goal); err != nil {
		return nil, err
	}
	return &goal, nil
}

// ListGoals returns all goals owned by the user, newest first.
func (s *Service) ListGoals(ctx context.Context, userID string) ([]SavingsGoal, error) {
	return s.repo.ListGoalsByUser(ctx, userID)
}

// ApplyEntry appends a contribution to one of the user's goals and returns the
// goal with the entry's amount folded in. A goal owned by someone else is
// indistinguishable from a missing one.
func (s *Service) ApplyEntry(ctx context.Context, userID, goalID string, amount decimal.Decimal, source string, note *string) (*SavingsGoal, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if goalID == "" {
		return nil, fmt.Errorf("%w: goal id is required", ErrInvalidInput)
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must be non-negative", ErrInvalidInput)
	}
	if source == "" {
		return nil, fmt.Errorf("%w: source is required", ErrInvalidInput)
	}

	goal, err := s.repo.GetGoal(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if goal.UserID != userID {
		return nil, ErrGoalNotFound
	}

	entry := SavingsEntry{
		ID:        uuid.NewString(),
		GoalID:    goalID,
		Amount:    amount,
		Source:    source,
		Note:      note,
		CreatedAt: s.now().UTC(),
	}
	return s.repo.ApplyEntry(ctx, entry)
}

func resolveLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidInput, name)
	}
	return loc, nil
}
