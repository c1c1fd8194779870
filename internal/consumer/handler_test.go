package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/synthesis"
)

const activityJSON = `{"id":"act-1","userId":"user-1","type":"CYCLING","duration":60,"caloriesBurned":700,"startTime":"2025-03-14T07:00:00","additionalMetrics":{"distanceKm":25}}`

func TestHandlerSavesModelRecommendation(t *testing.T) {
	synth := &stubSynthesizer{source: synthesis.SourceModel}
	saver := &recordingSaver{}
	publisher := &recordingPublisher{}
	dlq := &recordingDeadLetter{}
	handler := NewRecommendationHandler(synth, saver,
		WithHandlerLogger(testLogger()),
		WithPublisher(publisher),
		WithDeadLetter(dlq),
	)

	require.NoError(t, handler.Handle(context.Background(), Message{Payload: []byte(activityJSON)}))

	require.Len(t, saver.saved, 1)
	rec := saver.saved[0]
	require.Equal(t, "act-1", rec.ActivityID)
	require.Equal(t, "user-1", rec.UserID)
	require.Equal(t, "CYCLING", rec.ActivityType)
	require.Equal(t, []string{"model"}, publisher.sources)
	require.Empty(t, dlq.reasons)

	activity := synth.lastActivity()
	require.Equal(t, domain.ActivityCycling, activity.Type)
	require.Equal(t, 60, activity.Duration)
	require.Equal(t, "2025-03-14T07:00:00", activity.StartTime)
	require.EqualValues(t, 25, activity.AdditionalMetrics["distanceKm"])
}

func TestHandlerRejectsMalformedPayload(t *testing.T) {
	handler := NewRecommendationHandler(&stubSynthesizer{}, &recordingSaver{}, WithHandlerLogger(testLogger()))

	err := handler.Handle(context.Background(), Message{Payload: []byte(`{"id":`)})
	require.ErrorIs(t, err, ErrMalformedMessage)

	err = handler.Handle(context.Background(), Message{Payload: []byte(`{"userId":"u"}`)})
	require.ErrorIs(t, err, ErrMalformedMessage)
}

func TestHandlerDeadLettersUpstreamDefaults(t *testing.T) {
	synth := &stubSynthesizer{source: synthesis.SourceDefaultUpstream, err: errors.New("503 after 3 attempts")}
	saver := &recordingSaver{}
	dlq := &recordingDeadLetter{}
	handler := NewRecommendationHandler(synth, saver, WithHandlerLogger(testLogger()), WithDeadLetter(dlq))

	require.NoError(t, handler.Handle(context.Background(), Message{Payload: []byte(activityJSON)}))

	require.Len(t, saver.saved, 1, "default is persisted before the dead letter")
	require.Equal(t, synthesis.DefaultRecommendationText, saver.saved[0].Recommendation)
	require.Len(t, dlq.reasons, 1)
	require.Contains(t, dlq.reasons[0], "default_upstream")
}

func TestHandlerDoesNotDeadLetterUnusableContent(t *testing.T) {
	dlq := &recordingDeadLetter{}
	handler := NewRecommendationHandler(&stubSynthesizer{source: synthesis.SourceDefaultPayload}, &recordingSaver{},
		WithHandlerLogger(testLogger()), WithDeadLetter(dlq))

	require.NoError(t, handler.Handle(context.Background(), Message{Payload: []byte(activityJSON)}))
	require.Empty(t, dlq.reasons)
}

func TestHandlerSwallowsSaveErrors(t *testing.T) {
	saver := &recordingSaver{err: errors.New("connection refused")}
	dlq := &recordingDeadLetter{}
	publisher := &recordingPublisher{}
	handler := NewRecommendationHandler(&stubSynthesizer{source: synthesis.SourceModel}, saver,
		WithHandlerLogger(testLogger()), WithDeadLetter(dlq), WithPublisher(publisher))

	require.NoError(t, handler.Handle(context.Background(), Message{Payload: []byte(activityJSON)}))
	require.Empty(t, publisher.sources)
	require.Len(t, dlq.reasons, 1)
	require.Contains(t, dlq.reasons[0], "save failed")
}

func TestHandlerIgnoresPublishErrors(t *testing.T) {
	saver := &recordingSaver{}
	handler := NewRecommendationHandler(&stubSynthesizer{source: synthesis.SourceModel}, saver,
		WithHandlerLogger(testLogger()), WithPublisher(&recordingPublisher{err: errors.New("kafka down")}))

	require.NoError(t, handler.Handle(context.Background(), Message{Payload: []byte(activityJSON)}))
	require.Len(t, saver.saved, 1)
}

func TestHandlerSubstitutesDefaultOnTimeout(t *testing.T) {
	release := make(chan struct{})
	synth := &stubSynthesizer{source: synthesis.SourceModel, block: release}
	saver := &recordingSaver{}
	dlq := &recordingDeadLetter{}
	handler := NewRecommendationHandler(synth, saver,
		WithHandlerLogger(testLogger()),
		WithSynthesisTimeout(20*time.Millisecond),
		WithDeadLetter(dlq),
	)

	require.NoError(t, handler.Handle(context.Background(), Message{Payload: []byte(activityJSON)}))
	close(release)

	require.Len(t, saver.saved, 1)
	require.Equal(t, synthesis.DefaultRecommendationText, saver.saved[0].Recommendation)
	require.Len(t, dlq.reasons, 1)
	require.Contains(t, dlq.reasons[0], "default_timeout")

	// The abandoned run still completes, and its result is discarded.
	require.Eventually(t, func() bool { return synth.finished() == 1 }, time.Second, 5*time.Millisecond)
	require.Len(t, saver.saved, 1)
}

func TestHandlerReturnsRunResultWithinTimeout(t *testing.T) {
	saver := &recordingSaver{}
	handler := NewRecommendationHandler(&stubSynthesizer{source: synthesis.SourceModel}, saver,
		WithHandlerLogger(testLogger()), WithSynthesisTimeout(time.Second))

	require.NoError(t, handler.Handle(context.Background(), Message{Payload: []byte(activityJSON)}))
	require.Equal(t, "model text", saver.saved[0].Recommendation)
}

func TestHandlerLeavesCancelledSynthesisForRedelivery(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	synth := &stubSynthesizer{source: synthesis.SourceModel, block: release}
	saver := &recordingSaver{}
	dlq := &recordingDeadLetter{}
	publisher := &recordingPublisher{}
	handler := NewRecommendationHandler(synth, saver,
		WithHandlerLogger(testLogger()),
		WithSynthesisTimeout(time.Minute),
		WithDeadLetter(dlq),
		WithPublisher(publisher),
	)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := handler.Handle(ctx, Message{Payload: []byte(activityJSON)})
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrMalformedMessage)
	require.Empty(t, saver.saved)
	require.Empty(t, publisher.sources)
	require.Empty(t, dlq.reasons)
}

func TestHandlerLeavesCancelledUpstreamFailureForRedelivery(t *testing.T) {
	synth := &stubSynthesizer{source: synthesis.SourceDefaultUpstream, err: context.Canceled}
	saver := &recordingSaver{}
	handler := NewRecommendationHandler(synth, saver, WithHandlerLogger(testLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := handler.Handle(ctx, Message{Payload: []byte(activityJSON)})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, saver.saved)
}

func TestHandlerSubstitutesDefaultOnCallerDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	saver := &recordingSaver{}
	handler := NewRecommendationHandler(&stubSynthesizer{source: synthesis.SourceModel, block: release}, saver,
		WithHandlerLogger(testLogger()), WithSynthesisTimeout(time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, handler.Handle(ctx, Message{Payload: []byte(activityJSON)}))
	require.Len(t, saver.saved, 1)
	require.Equal(t, synthesis.DefaultRecommendationText, saver.saved[0].Recommendation)
}

type stubSynthesizer struct {
	mu     sync.Mutex
	source synthesis.Source
	err    error
	block  chan struct{}
	last   domain.ActivityRecord
	done   int
}

func (s *stubSynthesizer) Run(_ context.Context, activity domain.ActivityRecord) synthesis.Result {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = activity
	s.done++
	if s.source.Defaulted() {
		return s.Timeout(activity, s.err)
	}
	return synthesis.Result{Recommendation: recommendationFor(activity, "model text"), Source: synthesis.SourceModel}
}

func (s *stubSynthesizer) Timeout(activity domain.ActivityRecord, err error) synthesis.Result {
	source := s.source
	if source == synthesis.SourceModel {
		source = synthesis.SourceDefaultTimeout
	}
	return synthesis.Result{
		Recommendation: recommendationFor(activity, synthesis.DefaultRecommendationText),
		Source:         source,
		Err:            err,
	}
}

func (s *stubSynthesizer) lastActivity() domain.ActivityRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *stubSynthesizer) finished() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func recommendationFor(activity domain.ActivityRecord, text string) domain.Recommendation {
	rec := domain.Recommendation{
		ID:             "rec-" + activity.ID,
		ActivityID:     activity.ID,
		UserID:         activity.UserID,
		ActivityType:   activity.Type.String(),
		Recommendation: text,
		CreatedAt:      time.Now().UTC(),
	}
	rec.Normalize()
	return rec
}

type recordingSaver struct {
	mu    sync.Mutex
	saved []domain.Recommendation
	err   error
}

func (s *recordingSaver) Save(_ context.Context, rec domain.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, rec)
	return nil
}

type recordingPublisher struct {
	sources []string
	err     error
}

func (p *recordingPublisher) PublishRecommendation(_ context.Context, _ domain.Recommendation, source string) error {
	if p.err != nil {
		return p.err
	}
	p.sources = append(p.sources, source)
	return nil
}

type recordingDeadLetter struct {
	reasons []string
}

func (d *recordingDeadLetter) Write(_ context.Context, _ domain.ActivityRecord, reason string) error {
	d.reasons = append(d.reasons, reason)
	return nil
}
