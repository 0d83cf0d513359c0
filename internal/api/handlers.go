// Package api exposes HTTP handlers for the savings service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"example.com/savings/internal/auth"
	"example.com/savings/internal/domain"
	"example.com/savings/internal/persistence"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/savings/events", h.events)
	mux.HandleFunc("/v1/savings/totals", h.totals)
	mux.HandleFunc("/v1/savings/streak", h.streak)
	mux.HandleFunc("/v1/goals", h.goals)
	mux.HandleFunc("/v1/goals/", h.goalEntries)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.logEvent(w, r)
	case http.MethodGet:
		h.listEvents(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) logEvent(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeSavingsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope savings:write required")
		return
	}

	var req LogEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")

	result, err := h.service.LogActivity(r.Context(), domain.LogActivityInput{
		UserID:         claims.Subject,
		Kind:           domain.EventKind(req.Kind),
		CatalogRef:     req.CatalogRef,
		Amount:         req.Amount,
		Timezone:       req.Timezone,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := LogEventResponse{
		Event:  toEventView(result.Event),
		Totals: toTotalsView(result.Totals),
		Streak: StreakView{
			CurrentCount:   result.Streak.CurrentCount,
			LongestCount:   result.Streak.LongestCount,
			LastActiveDate: result.Streak.LastActiveDate.Format("2006-01-02"),
			Outcome:        string(result.Outcome),
		},
		Replay: result.Replay,
	}

	status := http.StatusAccepted
	if result.Replay {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireRead(w, r)
	if !ok {
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	cursorToken := r.URL.Query().Get("cursor")
	cursor, err := persistence.DecodeCursor(cursorToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	events, next, err := h.service.RecentEvents(r.Context(), claims.Subject, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]EventView, 0, len(events))
	for _, event := range events {
		items = append(items, toEventView(event))
	}

	resp := ListEventsResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) totals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := h.requireRead(w, r)
	if !ok {
		return
	}

	totals, err := h.service.Totals(r.Context(), claims.Subject, r.URL.Query().Get("tz"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTotalsView(totals))
}

func (h *Handler) streak(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := h.requireRead(w, r)
	if !ok {
		return
	}

	record, err := h.service.Streak(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := StreakView{}
	if record != nil {
		resp = StreakView{
			CurrentCount:   record.CurrentCount,
			LongestCount:   record.LongestCount,
			LastActiveDate: record.LastActiveDate.Format("2006-01-02"),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) goals(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createGoal(w, r)
	case http.MethodGet:
		h.listGoals(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) createGoal(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeSavingsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope savings:write required")
		return
	}

	var req CreateGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	goal, err := h.service.CreateGoal(r.Context(), domain.CreateGoalInput{
		UserID:       claims.Subject,
		Title:        req.Title,
		TargetAmount: req.TargetAmount,
		GoalType:     req.GoalType,
		Icon:         req.Icon,
		Deadline:     req.Deadline,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toGoalView(*goal))
}

func (h *Handler) listGoals(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireRead(w, r)
	if !ok {
		return
	}

	goals, err := h.service.ListGoals(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]GoalView, 0, len(goals))
	for _, goal := range goals {
		items = append(items, toGoalView(goal))
	}
	writeJSON(w, http.StatusOK, ListGoalsResponse{Items: items})
}

func (h *Handler) goalEntries(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/goals/")
	goalID, sub, _ := strings.Cut(rest, "/")
	if goalID == "" || sub != "entries" {
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeSavingsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope savings:write required")
		return
	}

	var req AddEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	goal, err := h.service.ApplyEntry(r.Context(), claims.Subject, goalID, req.Amount, req.Source, req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toGoalView(*goal))
}

// requireRead authenticates the request and checks for a read-capable scope.
func (h *Handler) requireRead(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(auth.ScopeSavingsRead) && !claims.HasScope(auth.ScopeSavingsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope savings:read required")
		return nil, false
	}
	return claims, true
}

// LogEventRequest is the payload for POST /v1/savings/events.
type LogEventRequest struct {
	Kind       string          `json:"kind"`
	CatalogRef string          `json:"catalog_ref"`
	Amount     decimal.Decimal `json:"amount"`
	Timezone   string          `json:"timezone"`
}

// Validate ensures request correctness.
func (r LogEventRequest) Validate() error {
	if strings.TrimSpace(r.Kind) == "" {
		return errors.New("kind is required")
	}
	if strings.TrimSpace(r.CatalogRef) == "" {
		return errors.New("catalog_ref is required")
	}
	if r.Amount.IsNegative() {
		return errors.New("amount must be non-negative")
	}
	return nil
}

// LogEventResponse describes the response body for a logged event.
type LogEventResponse struct {
	Event  EventView  `json:"event"`
	Totals TotalsView `json:"totals"`
	Streak StreakView `json:"streak"`
	Replay bool       `json:"idempotent_replay"`
}

// EventView exposes details about a durable savings event.
type EventView struct {
	EventID    string          `json:"event_id"`
	UserID     string          `json:"user_id"`
	Kind       string          `json:"kind"`
	CatalogRef string          `json:"catalog_ref"`
	Amount     decimal.Decimal `json:"amount"`
	LoggedAt   time.Time       `json:"logged_at"`
}

// TotalsView reports the rolling aggregation windows.
type TotalsView struct {
	WeekToDate  decimal.Decimal `json:"week_to_date"`
	MonthToDate decimal.Decimal `json:"month_to_date"`
	AllTime     decimal.Decimal `json:"all_time"`
}

// StreakView reports the daily-saving streak state.
type StreakView struct {
	CurrentCount   int    `json:"current_count"`
	LongestCount   int    `json:"longest_count"`
	LastActiveDate string `json:"last_active_date,omitempty"`
	Outcome        string `json:"outcome,omitempty"`
}

// ListEventsResponse packages paginated event listings.
type ListEventsResponse struct {
	Items      []EventView `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// CreateGoalRequest is the payload for POST /v1/goals.
type CreateGoalRequest struct {
	Title        string          `json:"title"`
	TargetAmount decimal.Decimal `json:"target_amount"`
	GoalType     string          `json:"goal_type"`
	Icon         string          `json:"icon"`
	Deadline     *time.Time      `json:"deadline,omitempty"`
}

// Validate ensures request correctness.
func (r CreateGoalRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("title is required")
	}
	if !r.TargetAmount.IsPositive() {
		return errors.New("target_amount must be > 0")
	}
	return nil
}

// GoalView exposes a savings goal with its running total.
type GoalView struct {
	GoalID        string          `json:"goal_id"`
	UserID        string          `json:"user_id"`
	Title         string          `json:"title"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	GoalType      string          `json:"goal_type,omitempty"`
	Icon          string          `json:"icon,omitempty"`
	Deadline      *time.Time      `json:"deadline,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ListGoalsResponse packages goal listings.
type ListGoalsResponse struct {
	Items []GoalView `json:"items"`
}

// AddEntryRequest is the payload for POST /v1/goals/{id}/entries.
type AddEntryRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Source string          `json:"source"`
	Note   *string         `json:"note,omitempty"`
}

// Validate ensures request correctness.
func (r AddEntryRequest) Validate() error {
	if r.Amount.IsNegative() {
		return errors.New("amount must be non-negative")
	}
	if strings.TrimSpace(r.Source) == "" {
		return errors.New("source is required")
	}
	return nil
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrGoalNotFound):
		writeError(w, http.StatusNotFound, "not_found", "goal not found")
	case errors.Is(err, domain.ErrStreakConflict):
		writeError(w, http.StatusConflict, "conflict", "streak updated concurrently, retry the request")
	case errors.Is(err, domain.ErrDuplicateEvent):
		writeError(w, http.StatusConflict, "conflict", "duplicate idempotency key, retry the request")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toEventView(event domain.SavingsEvent) EventView {
	return EventView{
		EventID:    event.ID,
		UserID:     event.UserID,
		Kind:       string(event.Kind),
		CatalogRef: event.CatalogRef,
		Amount:     event.Amount,
		LoggedAt:   event.LoggedAt,
	}
}

func toTotalsView(totals domain.Totals) TotalsView {
	return TotalsView{
		WeekToDate:  totals.WeekToDate,
		MonthToDate: totals.MonthToDate,
		AllTime:     totals.AllTime,
	}
}

func toGoalView(goal domain.SavingsGoal) GoalView {
	return GoalView{
		GoalID:        goal.ID,
		UserID:        goal.UserID,
		Title:         goal.Title,
		TargetAmount:  goal.TargetAmount,
		CurrentAmount: goal.CurrentAmount,
		GoalType:      goal.GoalType,
		Icon:          goal.Icon,
		Deadline:      goal.Deadline,
		CreatedAt:     goal.CreatedAt,
	}
}
