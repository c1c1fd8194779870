package cache

import (
	"context"
	"log/slog"

	"example.com/recommendation/internal/domain"
)

// Invalidator defines a cache invalidation contract.
type Invalidator interface {
	Invalidate(ctx context.Context, activityID string) error
}

// NoopInvalidator is a no-op implementation.
type NoopInvalidator struct{}

// Invalidate performs no action.
func (NoopInvalidator) Invalidate(context.Context, string) error { return nil }

// Saver persists recommendations.
type Saver interface {
	Save(ctx context.Context, rec domain.Recommendation) error
}

// InvalidatingSaver evicts the cached copy after every successful save so a
// regenerated recommendation replaces the stale default on the next read.
type InvalidatingSaver struct {
	next        Saver
	invalidator Invalidator
	logger      *slog.Logger
}

// NewInvalidatingSaver wraps next. A nil invalidator disables eviction.
func NewInvalidatingSaver(next Saver, invalidator Invalidator, logger *slog.Logger) *InvalidatingSaver {
	if invalidator == nil {
		invalidator = NoopInvalidator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InvalidatingSaver{next: next, invalidator: invalidator, logger: logger}
}

// Save persists rec and then evicts its cache entry. Eviction errors are logged only.
func (s *InvalidatingSaver) Save(ctx context.Context, rec domain.Recommendation) error {
	if err := s.next.Save(ctx, rec); err != nil {
		return err
	}
	if err := s.invalidator.Invalidate(ctx, rec.ActivityID); err != nil {
		s.logger.Warn("cache invalidation failed", "activity_id", rec.ActivityID, "error", err)
	}
	return nil
}
