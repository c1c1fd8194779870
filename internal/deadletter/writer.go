// Package deadletter queues activities whose recommendation fell back to the
// default so that a later pass can regenerate them.
package deadletter

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/recommendation/internal/domain"
)

// Writer records activities in the recommendation_dlq table.
type Writer struct {
	pool *pgxpool.Pool
}

// NewWriter initialises a writer backed by the provided connection pool.
func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// Write queues activity for regeneration. An activity already queued keeps its
// retry state and only has its reason refreshed.
func (w *Writer) Write(ctx context.Context, activity domain.ActivityRecord, reason string) error {
	payload, err := json.Marshal(activity)
	if err != nil {
		return err
	}

	if _, err := w.pool.Exec(ctx,
		`INSERT INTO recommendation_dlq (activity_id, user_id, payload, reason, retry_count, next_retry_at)
         VALUES ($1,$2,$3,$4,0,NOW())
         ON CONFLICT (activity_id) DO UPDATE SET reason = EXCLUDED.reason`,
		activity.ID, activity.UserID, payload, reason,
	); err != nil {
		return err
	}
	recordWritten()
	return nil
}
