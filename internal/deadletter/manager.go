package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/observability"
	"example.com/recommendation/internal/synthesis"
)

const maxBackoff = time.Hour

// Synthesizer regenerates a recommendation for a queued activity.
type Synthesizer interface {
	Run(ctx context.Context, activity domain.ActivityRecord) synthesis.Result
}

// Saver persists a regenerated recommendation.
type Saver interface {
	Save(ctx context.Context, rec domain.Recommendation) error
}

// Manager retries queued activities and quarantines exhausted entries.
type Manager struct {
	pool       *pgxpool.Pool
	synth      Synthesizer
	saver      Saver
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewManager constructs a Manager with the provided pool and retry configuration.
func NewManager(pool *pgxpool.Pool, synth Synthesizer, saver Saver, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *Manager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		pool:       pool,
		synth:      synth,
		saver:      saver,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger.With("component", "dlq-manager"),
	}
}

// RunOnce processes a batch of due entries and returns how many were recovered
// with a model-generated recommendation.
func (m *Manager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	entries, err := m.due(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, entry := range entries {
		ok, procErr := m.handleEntry(ctx, entry)
		if procErr != nil {
			err = errors.Join(err, fmt.Errorf("dlq entry %d: %w", entry.ID, procErr))
			continue
		}
		if ok {
			recovered++
		}
	}
	m.updateBacklog(ctx)
	return recovered, err
}

// due loads the batch up front so that no rows cursor is held open while
// synthesis runs.
func (m *Manager) due(ctx context.Context, batchSize int) ([]entry, error) {
	rows, err := m.pool.Query(ctx,
		`SELECT dlq_id, activity_id, payload, reason, retry_count
           FROM recommendation_dlq
          WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
          ORDER BY created_at
          LIMIT $1`,
		batchSize,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []entry
	var scanErrs error
	for rows.Next() {
		var e entry
		if scanErr := rows.Scan(&e.ID, &e.ActivityID, &e.Payload, &e.Reason, &e.RetryCount); scanErr != nil {
			scanErrs = errors.Join(scanErrs, scanErr)
			continue
		}
		entries = append(entries, e)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, errors.Join(scanErrs, rowsErr)
	}
	return entries, scanErrs
}

// handleEntry applies the regenerate/reschedule/quarantine logic for one entry.
func (m *Manager) handleEntry(ctx context.Context, e entry) (bool, error) {
	logger := m.logger.With("dlq_id", e.ID, "activity_id", e.ActivityID, "retry_count", e.RetryCount)

	if e.RetryCount >= m.maxRetries {
		if _, err := m.pool.Exec(ctx,
			`UPDATE recommendation_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`,
			"retry limit reached", e.ID,
		); err != nil {
			return false, err
		}
		logger.Warn("dead letter quarantined")
		recordQuarantined()
		return false, nil
	}

	var activity domain.ActivityRecord
	if err := json.Unmarshal(e.Payload, &activity); err != nil {
		if _, qErr := m.pool.Exec(ctx,
			`UPDATE recommendation_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`,
			"undecodable payload: "+err.Error(), e.ID,
		); qErr != nil {
			return false, qErr
		}
		recordQuarantined()
		return false, nil
	}

	result := m.synth.Run(ctx, activity)
	if result.Source != synthesis.SourceModel {
		return false, m.reschedule(ctx, logger, e, string(result.Source)+": "+errText(result.Err))
	}

	if err := m.saver.Save(ctx, result.Recommendation); err != nil {
		return false, m.reschedule(ctx, logger, e, "save failed: "+err.Error())
	}

	if _, err := m.pool.Exec(ctx, `DELETE FROM recommendation_dlq WHERE dlq_id = $1`, e.ID); err != nil {
		return false, err
	}
	logger.Info("default recommendation regenerated")
	recordRecovered()
	observability.RecordRecommendationRegenerated(result.Recommendation.CreatedAt)
	return true, nil
}

func (m *Manager) reschedule(ctx context.Context, logger *slog.Logger, e entry, reason string) error {
	delay := backoffDelay(m.baseDelay, e.RetryCount+1)
	if _, err := m.pool.Exec(ctx,
		`UPDATE recommendation_dlq
            SET retry_count = retry_count + 1,
                last_attempt_at = NOW(),
                next_retry_at = NOW() + make_interval(secs => $1),
                reason = $2
          WHERE dlq_id = $3`,
		delay.Seconds(), reason, e.ID,
	); err != nil {
		return err
	}
	logger.Info("dead letter rescheduled", "delay", delay, "reason", reason)
	recordRetryScheduled()
	return nil
}

func (m *Manager) updateBacklog(ctx context.Context) {
	var count int
	if err := m.pool.QueryRow(ctx, `SELECT COUNT(*) FROM recommendation_dlq WHERE quarantined_at IS NULL`).Scan(&count); err != nil {
		return
	}
	backlogGauge.Set(float64(count))
}

// backoffDelay calculates exponential backoff capped at one hour.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt && delay < maxBackoff; i++ {
		delay *= 2
	}
	return min(delay, maxBackoff)
}

type entry struct {
	ID         int64
	ActivityID string
	Payload    []byte
	Reason     string
	RetryCount int
}

func errText(err error) string {
	if err == nil {
		return "unknown"
	}
	return err.Error()
}
