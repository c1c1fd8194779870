package api

import (
	"time"

	"example.com/recommendation/internal/domain"
)

// RecommendationView is the JSON representation of a recommendation.
type RecommendationView struct {
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

// RecommendationListResponse wraps a user's recommendations.
type RecommendationListResponse struct {
	Items []RecommendationView `json:"items"`
}

func toView(rec domain.Recommendation) RecommendationView {
	rec.Normalize()
	return RecommendationView{
		ID:             rec.ID,
		ActivityID:     rec.ActivityID,
		UserID:         rec.UserID,
		ActivityType:   rec.ActivityType,
		Recommendation: rec.Recommendation,
		Improvements:   rec.Improvements,
		Suggestions:    rec.Suggestions,
		Safety:         rec.Safety,
		CreatedAt:      rec.CreatedAt,
	}
}
