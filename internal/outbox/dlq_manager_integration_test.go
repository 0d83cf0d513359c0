//go:build integration

package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func TestDLQManagerRequeuesEntry(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	aggregateID := uuid.NewString()
	seedDLQ(t, ctx, pool, aggregateID, "savings.logged", "savings_events", "savings_events-value", 0, nil)

	manager := NewDLQManager(pool, 3, time.Second)
	processed, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	var requeued int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE aggregate_id = $1 AND event_type = 'savings.logged' AND published_at IS NULL`,
		aggregateID,
	).Scan(&requeued))
	require.Equal(t, 1, requeued, "entry should be back in the primary outbox")

	var remaining int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&remaining))
	require.Equal(t, 0, remaining, "requeued entry should leave the DLQ")
}

func TestDLQManagerSchedulesRetryWhenRequeueFails(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	// An empty schema_subject makes the requeue insert fail validation.
	aggregateID := uuid.NewString()
	dlqID := seedDLQ(t, ctx, pool, aggregateID, "streak.updated", "streak_events", "", 0, nil)

	manager := NewDLQManager(pool, 3, time.Minute)
	processed, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	var retryCount int
	var nextRetryAt *time.Time
	var reason string
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT retry_count, next_retry_at, reason FROM outbox_dlq WHERE dlq_id = $1`, dlqID,
	).Scan(&retryCount, &nextRetryAt, &reason))
	require.Equal(t, 1, retryCount)
	require.NotNil(t, nextRetryAt)
	require.True(t, nextRetryAt.After(time.Now()), "retry must be deferred into the future")
	require.Contains(t, reason, "missing schema_subject")

	var requeued int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE aggregate_id = $1`, aggregateID).Scan(&requeued))
	require.Equal(t, 0, requeued)

	// Deferred entries are invisible until next_retry_at passes.
	processed, err = manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 0, processed)
}

func TestDLQManagerQuarantinesAfterRetryLimit(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	aggregateID := uuid.NewString()
	dlqID := seedDLQ(t, ctx, pool, aggregateID, "streak.updated", "streak_events", "", 2, nil)

	manager := NewDLQManager(pool, 2, time.Second)
	processed, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	var quarantinedAt *time.Time
	var quarantineReason *string
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT quarantined_at, quarantine_reason FROM outbox_dlq WHERE dlq_id = $1`, dlqID,
	).Scan(&quarantinedAt, &quarantineReason))
	require.NotNil(t, quarantinedAt)
	require.NotNil(t, quarantineReason)
	require.Equal(t, "retry limit reached", *quarantineReason)

	var requeued int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE aggregate_id = $1`, aggregateID).Scan(&requeued))
	require.Equal(t, 0, requeued, "quarantined entry must not be requeued")

	// Quarantined rows fall out of the working set entirely.
	processed, err = manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 0, processed)
}

func seedDLQ(t *testing.T, ctx context.Context, pool *pgxpool.Pool, aggregateID, eventType, topic, schemaSubject string, retryCount int, nextRetryAt *time.Time) int64 {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"event_id": aggregateID,
		"user_id":  uuid.NewString(),
	})
	require.NoError(t, err)

	row := pool.QueryRow(ctx,
		`INSERT INTO outbox_dlq (event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count, next_retry_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
         RETURNING dlq_id`,
		1, eventType, topic, payload, "kafka write failed", "savings", aggregateID, schemaSubject, aggregateID, retryCount, nextRetryAt,
	)

	var dlqID int64
	require.NoError(t, row.Scan(&dlqID))
	return dlqID
}
