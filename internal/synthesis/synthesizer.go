// Package synthesis turns an activity into a recommendation by prompting the
// completion API and parsing its reply, substituting a default whenever the
// reply cannot be used.
package synthesis

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"example.com/recommendation/internal/domain"
)

// DefaultRecommendationText is stored when nothing usable came back from the model.
const DefaultRecommendationText = "Based on your recent activity, maintain a consistent pace and monitor your heart rate to optimize performance. Consider incorporating interval training to enhance endurance and calorie burn. Always ensure proper hydration and warm-up routines to prevent injuries."

// Completer executes a prompt and returns the raw response body.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Source records where a recommendation's content came from.
type Source string

const (
	SourceModel           Source = "model"
	SourceDefaultUpstream Source = "default_upstream"
	SourceDefaultEnvelope Source = "default_envelope"
	SourceDefaultPayload  Source = "default_payload"
	SourceDefaultTimeout  Source = "default_timeout"
)

// Defaulted reports whether the default recommendation was substituted.
func (s Source) Defaulted() bool { return s != SourceModel }

// Result pairs a recommendation with its source and, for defaults, the cause.
type Result struct {
	Recommendation domain.Recommendation
	Source         Source
	Err            error
}

// Option configures optional behaviour for the Synthesizer.
type Option func(*Synthesizer)

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synthesizer) { s.logger = logger }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Synthesizer) { s.now = now }
}

// WithIDGenerator overrides recommendation id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Synthesizer) { s.newID = fn }
}

// Synthesizer produces recommendations. It keeps no per-run state and may be
// shared by concurrent runs.
type Synthesizer struct {
	completer Completer
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// New constructs a Synthesizer backed by completer.
func New(completer Completer, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		completer: completer,
		logger:    slog.Default().With("component", "synthesis"),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize returns a recommendation for activity. It never fails.
func (s *Synthesizer) Synthesize(ctx context.Context, activity domain.ActivityRecord) domain.Recommendation {
	return s.Run(ctx, activity).Recommendation
}

// Run is Synthesize with the source of the recommendation attached.
func (s *Synthesizer) Run(ctx context.Context, activity domain.ActivityRecord) Result {
	prompt := BuildPrompt(activity)
	s.logger.Debug("generating recommendation", "activity_id", activity.ID, "prompt", prompt)

	raw, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		s.logger.Error("completion call failed, using default recommendation", "activity_id", activity.ID, "error", err)
		return s.defaulted(activity, SourceDefaultUpstream, err)
	}
	s.logger.Debug("received completion response", "activity_id", activity.ID, "response", compact(raw))

	return s.Parse(activity, raw)
}

// Parse converts a raw completion response into a recommendation for activity.
func (s *Synthesizer) Parse(activity domain.ActivityRecord, raw string) Result {
	text, ok, err := extractEnvelopeText(raw)
	if err != nil {
		s.logger.Error("failed to parse completion envelope, using default recommendation", "activity_id", activity.ID, "error", err)
		return s.defaulted(activity, SourceDefaultEnvelope, err)
	}
	if !ok {
		s.logger.Error("completion envelope missing candidates[0].content.parts[0].text, using default recommendation", "activity_id", activity.ID)
		return s.defaulted(activity, SourceDefaultEnvelope, errMissingText)
	}

	payload, ok := parsePayload(stripCodeFence(text))
	if !ok {
		s.logger.Warn("model output is not valid JSON after cleaning, using default recommendation", "activity_id", activity.ID)
		return s.defaulted(activity, SourceDefaultPayload, errInvalidPayload)
	}

	fields := mapPayload(payload)
	rec := s.base(activity)
	rec.Recommendation = fields.Analysis
	rec.Improvements = fields.Improvements
	rec.Suggestions = fields.Suggestions
	rec.Safety = fields.Safety
	rec.Normalize()

	recordResult(SourceModel)
	s.logger.Info("recommendation generated", "activity_id", activity.ID,
		"improvements", len(rec.Improvements),
		"suggestions", len(rec.Suggestions),
		"safety", len(rec.Safety),
	)
	return Result{Recommendation: rec, Source: SourceModel}
}

// Default builds the fallback recommendation for activity.
func (s *Synthesizer) Default(activity domain.ActivityRecord) domain.Recommendation {
	rec := s.base(activity)
	rec.Recommendation = DefaultRecommendationText
	rec.Normalize()
	return rec
}

// Timeout returns the default result used when a caller's deadline expires.
func (s *Synthesizer) Timeout(activity domain.ActivityRecord, err error) Result {
	return s.defaulted(activity, SourceDefaultTimeout, err)
}

func (s *Synthesizer) defaulted(activity domain.ActivityRecord, source Source, err error) Result {
	recordResult(source)
	return Result{Recommendation: s.Default(activity), Source: source, Err: err}
}

func (s *Synthesizer) base(activity domain.ActivityRecord) domain.Recommendation {
	return domain.Recommendation{
		ID:           s.newID(),
		ActivityID:   activity.ID,
		UserID:       activity.UserID,
		ActivityType: activity.Type.String(),
		CreatedAt:    s.now(),
	}
}
