package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/synthesis"
)

// Synthesizer produces a recommendation for an activity. It never fails.
type Synthesizer interface {
	Run(ctx context.Context, activity domain.ActivityRecord) synthesis.Result
	Timeout(activity domain.ActivityRecord, err error) synthesis.Result
}

// Saver persists recommendations.
type Saver interface {
	Save(ctx context.Context, rec domain.Recommendation) error
}

// Publisher announces generated recommendations.
type Publisher interface {
	PublishRecommendation(ctx context.Context, rec domain.Recommendation, source string) error
}

// DeadLetterWriter queues activities whose recommendation should be regenerated later.
type DeadLetterWriter interface {
	Write(ctx context.Context, activity domain.ActivityRecord, reason string) error
}

// HandlerOption configures a RecommendationHandler.
type HandlerOption func(*RecommendationHandler)

// WithHandlerLogger overrides the handler logger.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *RecommendationHandler) { h.logger = logger }
}

// WithPublisher enables recommendation.generated events.
func WithPublisher(pub Publisher) HandlerOption {
	return func(h *RecommendationHandler) { h.publisher = pub }
}

// WithDeadLetter routes activities that defaulted because the upstream was
// unavailable to w.
func WithDeadLetter(w DeadLetterWriter) HandlerOption {
	return func(h *RecommendationHandler) { h.deadLetter = w }
}

// WithSynthesisTimeout bounds a single synthesis run. Zero disables the bound.
func WithSynthesisTimeout(d time.Duration) HandlerOption {
	return func(h *RecommendationHandler) { h.timeout = d }
}

// RecommendationHandler decodes activity events, synthesizes a recommendation
// and stores it. Undecodable messages produce ErrMalformedMessage. A run cut
// short by cancellation returns the context error and stores nothing, so the
// message is redelivered.
type RecommendationHandler struct {
	synth      Synthesizer
	saver      Saver
	publisher  Publisher
	deadLetter DeadLetterWriter
	timeout    time.Duration
	logger     *slog.Logger
}

// NewRecommendationHandler constructs a handler.
func NewRecommendationHandler(synth Synthesizer, saver Saver, opts ...HandlerOption) *RecommendationHandler {
	h := &RecommendationHandler{
		synth:  synth,
		saver:  saver,
		logger: slog.Default().With("component", "recommendation-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle processes one activity event.
func (h *RecommendationHandler) Handle(ctx context.Context, msg Message) error {
	var activity domain.ActivityRecord
	if err := json.Unmarshal(msg.Payload, &activity); err != nil {
		return fmt.Errorf("%w: decode activity: %v", ErrMalformedMessage, err)
	}
	if activity.ID == "" {
		return fmt.Errorf("%w: activity id missing", ErrMalformedMessage)
	}

	logger := h.logger.With("activity_id", activity.ID, "user_id", activity.UserID)
	logger.Info("received activity for processing", "type", activity.Type, "offset", msg.Offset)

	// The message is committed whatever happens below, so persistence must
	// outlive a shutdown cancellation.
	persistCtx := context.WithoutCancel(ctx)

	result := h.synthesize(ctx, activity)
	if result.Source.Defaulted() && errors.Is(ctx.Err(), context.Canceled) {
		logger.Info("synthesis interrupted, leaving activity for redelivery", "source", result.Source)
		return fmt.Errorf("synthesize activity %s: %w", activity.ID, ctx.Err())
	}
	if result.Source.Defaulted() {
		logger.Warn("storing default recommendation", "source", result.Source, "error", result.Err)
	}

	if err := h.saver.Save(persistCtx, result.Recommendation); err != nil {
		logger.Error("failed to save recommendation", "error", err)
		recordSaveError()
		h.writeDeadLetter(persistCtx, logger, activity, "save failed: "+err.Error())
		return nil
	}

	if h.publisher != nil {
		if err := h.publisher.PublishRecommendation(persistCtx, result.Recommendation, string(result.Source)); err != nil {
			logger.Error("failed to publish recommendation event", "error", err)
		}
	}

	if result.Source == synthesis.SourceDefaultUpstream || result.Source == synthesis.SourceDefaultTimeout {
		h.writeDeadLetter(persistCtx, logger, activity, string(result.Source)+": "+errorText(result.Err))
	}
	return nil
}

// synthesize runs the synthesizer under the handler timeout. On expiry the
// default is returned and the in-flight run finishes in the background.
func (h *RecommendationHandler) synthesize(ctx context.Context, activity domain.ActivityRecord) synthesis.Result {
	if h.timeout <= 0 {
		return h.synth.Run(ctx, activity)
	}

	runCtx := context.WithoutCancel(ctx)
	done := make(chan synthesis.Result, 1)
	go func() {
		done <- h.synth.Run(runCtx, activity)
	}()

	timer := time.NewTimer(h.timeout)
	defer timer.Stop()

	select {
	case result := <-done:
		return result
	case <-timer.C:
		return h.synth.Timeout(activity, fmt.Errorf("synthesis exceeded %s", h.timeout))
	case <-ctx.Done():
		return h.synth.Timeout(activity, ctx.Err())
	}
}

func (h *RecommendationHandler) writeDeadLetter(ctx context.Context, logger *slog.Logger, activity domain.ActivityRecord, reason string) {
	if h.deadLetter == nil {
		return
	}
	if err := h.deadLetter.Write(ctx, activity, reason); err != nil {
		logger.Error("failed to write dead letter", "error", err)
		return
	}
	logger.Info("activity queued for regeneration", "reason", reason)
}

func errorText(err error) string {
	if err == nil {
		return "unknown"
	}
	return err.Error()
}
