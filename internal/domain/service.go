// Package domain defines the recommendation model and the read-side service.
package domain

import (
	"context"
	"errors"
	"time"
)

// ErrRecommendationNotFound is returned when no recommendation exists for an activity.
var ErrRecommendationNotFound = errors.New("recommendation not found")

// Recommendation is the typed result of one pipeline run. List fields are never nil.
type Recommendation struct {
	ID             string    `json:"id"`
	ActivityID     string    `json:"activityId"`
	UserID         string    `json:"userId"`
	ActivityType   string    `json:"activityType"`
	Recommendation string    `json:"recommendation"`
	Improvements   []string  `json:"improvements"`
	Suggestions    []string  `json:"suggestions"`
	Safety         []string  `json:"safety"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Normalize replaces nil list fields with empty slices.
func (r *Recommendation) Normalize() {
	if r.Improvements == nil {
		r.Improvements = []string{}
	}
	if r.Suggestions == nil {
		r.Suggestions = []string{}
	}
	if r.Safety == nil {
		r.Safety = []string{}
	}
}

// RecommendationRepository captures the read operations of the recommendation store.
type RecommendationRepository interface {
	FindByUser(ctx context.Context, userID string) ([]Recommendation, error)
	FindByActivity(ctx context.Context, activityID string) (*Recommendation, error)
}

// RecommendationCache is an optional read-through cache keyed by activity id.
type RecommendationCache interface {
	Get(ctx context.Context, activityID string) (*Recommendation, error)
	Put(ctx context.Context, rec Recommendation) error
}

// Service answers recommendation queries.
type Service struct {
	repo  RecommendationRepository
	cache RecommendationCache
}

// NewService constructs a Service. cache may be nil.
func NewService(repo RecommendationRepository, cache RecommendationCache) *Service {
	return &Service{repo: repo, cache: cache}
}

// GetRecommendationsForUser returns the user's recommendations, newest first.
func (s *Service) GetRecommendationsForUser(ctx context.Context, userID string) ([]Recommendation, error) {
	recs, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []Recommendation{}
	}
	return recs, nil
}

// GetActivityRecommendation returns the recommendation generated for an activity.
func (s *Service) GetActivityRecommendation(ctx context.Context, activityID string) (*Recommendation, error) {
	if s.cache != nil {
		// Cache errors degrade to a store read.
		if cached, err := s.cache.Get(ctx, activityID); err == nil && cached != nil {
			return cached, nil
		}
	}

	rec, err := s.repo.FindByActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrRecommendationNotFound
	}

	if s.cache != nil {
		_ = s.cache.Put(ctx, *rec)
	}
	return rec, nil
}
